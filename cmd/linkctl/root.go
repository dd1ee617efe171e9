package main

import (
	"github.com/spf13/cobra"

	"github.com/moonsong-labs/conversation-linker/internal/config"
)

func newRootCmd(cfg config.Config) *cobra.Command {
	var configFile string
	root := &cobra.Command{
		Use:   "linkctl",
		Short: "Resolve conversation linking for LLM proxy traffic",
		Long:  "linkctl runs requests through the conversation linking core and reports how each one was attached to its conversation, branch, and parent.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configFile == "" {
				return nil
			}
			merged, err := config.LoadYAML(cfg, configFile)
			if err != nil {
				return err
			}
			cfg = merged
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "optional YAML config overlay, read after environment variables")
	root.AddCommand(newLinkCmd(&cfg))
	root.AddCommand(newMigrateCmd(&cfg))
	return root
}
