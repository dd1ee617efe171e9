// Command linkctl runs a single LinkingRequest (read as JSON) through the
// linking pipeline against a configured Store backend, and prints the
// resulting LinkResult as JSON.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/moonsong-labs/conversation-linker/internal/config"
	"github.com/moonsong-labs/conversation-linker/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	observability.InitLogger(cfg.LogPath, cfg.LogLevel)

	shutdown, err := observability.InitOTel(context.Background(), cfg.OTel)
	if err != nil {
		log.Warn().Err(err).Msg("otel init failed, continuing without tracing")
		shutdown = nil
	}
	if shutdown != nil {
		defer func() { _ = shutdown(context.Background()) }()
	}

	if err := newRootCmd(cfg).Execute(); err != nil {
		log.Error().Err(err).Msg("linkctl_failed")
		os.Exit(1)
	}
}
