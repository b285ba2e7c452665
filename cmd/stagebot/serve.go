package main

import (
	"github.com/spf13/cobra"

	"github.com/m3rciful/stagebot/commands"
	corecmd "github.com/m3rciful/stagebot/core/cmd"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var imageURL string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bot until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := commands.Registry(commands.Options{ImageURL: imageURL})
			if err != nil {
				return err
			}
			return corecmd.Run(cmd.Context(), corecmd.Options{
				ConfigPath:        root.configPath,
				DefaultConfigPath: "config.yaml",
				Registry:          reg,
			})
		},
	}
	cmd.Flags().StringVar(&imageURL, "image-url", commands.DefaultImageURL, "image sent by the menu's random image button")
	return cmd
}
