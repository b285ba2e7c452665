package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	corecmd "github.com/m3rciful/stagebot/core/cmd"
	coretelegram "github.com/m3rciful/stagebot/core/telegram"
)

// webhookAdmin is satisfied by *coretelegram.Admin.
type webhookAdmin interface {
	SetWebhook(ctx context.Context, publicURL string, dropPending bool) error
	RemoveWebhook(ctx context.Context, dropPending bool) error
}

// dialAdmin is replaced in tests.
var dialAdmin = func(root *rootOptions) (webhookAdmin, error) {
	cfg, err := corecmd.LoadConfig(corecmd.ResolveConfigPath(root.configPath, "", ""))
	if err != nil {
		return nil, err
	}
	return coretelegram.DialAdmin(cfg.Telegram.Token)
}

func newWebhookCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Register or remove the Telegram webhook",
	}

	var setDrop bool
	set := &cobra.Command{
		Use:   "set <https-url>",
		Short: "Point Telegram at the bot's public webhook URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			admin, err := dialAdmin(root)
			if err != nil {
				return err
			}
			if err := admin.SetWebhook(cmd.Context(), args[0], setDrop); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "webhook set to %s\n", args[0])
			return nil
		},
	}
	set.Flags().BoolVar(&setDrop, "drop-pending", false, "discard updates queued while no webhook was set")

	var deleteDrop bool
	del := &cobra.Command{
		Use:   "delete",
		Short: "Remove the webhook so the bot can long poll",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			admin, err := dialAdmin(root)
			if err != nil {
				return err
			}
			if err := admin.RemoveWebhook(cmd.Context(), deleteDrop); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "webhook deleted")
			return nil
		},
	}
	del.Flags().BoolVar(&deleteDrop, "drop-pending", false, "discard pending updates")

	cmd.AddCommand(set, del)
	return cmd
}
