package main

import (
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "stagebot",
		Short:         "Telegram bot driven by staged conversations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to the YAML config (default $CONFIG_PATH)")

	root.AddCommand(
		newServeCmd(opts),
		newWebhookCmd(opts),
		newVersionCmd(),
	)
	return root
}
