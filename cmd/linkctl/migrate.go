package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/moonsong-labs/conversation-linker/internal/config"
	"github.com/moonsong-labs/conversation-linker/internal/linkstore"
)

func newMigrateCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the Postgres schema for the configured store backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Store.Backend != "postgres" {
				return fmt.Errorf("migrate requires LINKER_STORE_BACKEND=postgres, got %q", cfg.Store.Backend)
			}
			store, err := linkstore.OpenPostgresStore(cmd.Context(), cfg.Store.DSN)
			if err != nil {
				return err
			}
			defer store.Close()
			return store.Migrate(cmd.Context())
		},
	}
}
