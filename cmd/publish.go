package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hildam/fin-flow-go/entity/conf"
	"github.com/hildam/fin-flow-go/repo/broker"
)

var (
	publishTopic string
	publishData  string
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish a message to the broker",
	Long: `Publish a message to the configured broker. JSON data is sent as is,
any other text is sent verbatim.`,
	Example: `  finflow publish --topic payments.salary.received --data '{"userId":"web_ui_user","amount":25000}'`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return publish(cmd.Context(), *conf.GetCfg(), publishTopic, publishData)
	},
}

func init() {
	publishCmd.Flags().StringVarP(&publishTopic, "topic", "t", "", "topic name")
	publishCmd.Flags().StringVarP(&publishData, "data", "d", "", "message body")
	_ = publishCmd.MarkFlagRequired("topic")
	_ = publishCmd.MarkFlagRequired("data")
	rootCmd.AddCommand(publishCmd)
}

func publish(ctx context.Context, cfg conf.AppConfig, topic, data string) error {
	b, err := broker.New(cfg.Broker)
	if err != nil {
		return err
	}
	defer b.Close()

	var payload any = data
	if json.Valid([]byte(data)) {
		payload = json.RawMessage(data)
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.Broker.PublishTimeout)
	defer cancel()
	if err := b.Publish(ctx, topic, payload); err != nil {
		fmt.Println(styleError.Render("publish failed: " + err.Error()))
		return err
	}
	fmt.Println(styleSuccess.Render("published to " + topic))
	return nil
}
