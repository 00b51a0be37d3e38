package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hildam/fin-flow-go/agent"
	"github.com/hildam/fin-flow-go/entity/conf"
	"github.com/hildam/fin-flow-go/entity/consts"
	"github.com/hildam/fin-flow-go/entity/model"
	"github.com/hildam/fin-flow-go/repo/bus"
	"github.com/hildam/fin-flow-go/repo/callback"
)

var (
	depositUser     string
	depositAmount   int64
	depositApprove  bool
	depositReject   bool
	depositResponse string
)

var depositCmd = &cobra.Command{
	Use:   "deposit",
	Short: "Run one deposit in-process",
	Long: `Run one salary deposit through the pipeline in-process and print every
event until the final proposal. With --approve, --reject or --response the
decision is submitted and the execution events are printed too.`,
	Example: `  finflow deposit --user web_ui_user --amount 25000
  finflow deposit --user web_ui_user --amount 25000 --approve
  finflow deposit --user web_ui_user --amount 25000 --response "Sadece tahvil yatırımı yapmak istiyorum"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return deposit(cmd.Context(), *conf.GetCfg())
	},
}

func init() {
	depositCmd.Flags().StringVar(&depositUser, "user", "web_ui_user", "user id")
	depositCmd.Flags().Int64Var(&depositAmount, "amount", 25000, "deposit amount")
	depositCmd.Flags().BoolVar(&depositApprove, "approve", false, "approve all proposals")
	depositCmd.Flags().BoolVar(&depositReject, "reject", false, "reject all proposals")
	depositCmd.Flags().StringVar(&depositResponse, "response", "", "free-text reply to the proposal")
	depositCmd.MarkFlagsMutuallyExclusive("approve", "reject", "response")
	rootCmd.AddCommand(depositCmd)
}

func deposit(ctx context.Context, cfg conf.AppConfig) error {
	cfg.Setting.AutoApprove = false
	a := newApp(ctx, cfg)
	defer a.Close()

	sub := a.engine.Subscribe()
	defer a.engine.Unsubscribe(sub)

	id, err := a.engine.StartRun(ctx, depositUser, depositAmount, "")
	if err != nil {
		return err
	}
	fmt.Println(styleTitle.Render("Run " + id))
	if !a.engine.IsReady() {
		fmt.Println(styleError.Render("engine not ready, using the degraded path"))
	}

	if err := printUntil(ctx, id, sub, consts.EventNotification); err != nil {
		return err
	}

	req := agent.UserActionRequest{UserID: depositUser, CorrelationID: id, Response: depositResponse}
	switch {
	case depositApprove:
		req.Kind = model.UserActionApprove
	case depositReject:
		req.Kind = model.UserActionReject
	case depositResponse != "":
		req.Kind = model.UserActionCustom
	default:
		return nil
	}
	if err := a.engine.SubmitUserAction(ctx, req); err != nil {
		return err
	}
	return printUntil(ctx, id, sub, consts.EventExecution)
}

// printUntil 打印该运行的事件直到收到 last
func printUntil(ctx context.Context, id string, sub *bus.Subscription, last string) error {
	out := make(chan string, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for line := range out {
			name, rest, _ := strings.Cut(strings.TrimPrefix(line, "["), "] ")
			fmt.Printf("%s %s\n", eventStyle(name).Render(name), styleMuted.Render(rest))
		}
	}()

	p := &callback.EventPusher{ID: id, Out: out}
	err := p.Pump(ctx, sub, func(ev model.Event) bool { return ev.Name == last })
	close(out)
	<-done
	return err
}
