package cmd

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/hildam/fin-flow-go/entity/conf"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Print dependency health",
	RunE: func(cmd *cobra.Command, args []string) error {
		return health(cmd.Context(), *conf.GetCfg())
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}

func health(ctx context.Context, cfg conf.AppConfig) error {
	a := newApp(ctx, cfg)
	defer a.Close()

	status := a.engine.Health(ctx)
	keys := make([]string, 0, len(status))
	for k := range status {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	overall := "healthy"
	if !status["engine"] || !status["mcp_tools"] {
		overall = "degraded"
	}
	fmt.Println(styleTitle.Render("finflow " + overall))
	for _, k := range keys {
		fmt.Printf("  %s %s\n", mark(status[k]), k)
	}
	return nil
}
