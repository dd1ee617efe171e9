package linkstore

import (
	"context"
	"fmt"

	"github.com/moonsong-labs/conversation-linker/internal/config"
	"github.com/moonsong-labs/conversation-linker/internal/linking"
	"github.com/moonsong-labs/conversation-linker/internal/observability"
)

// Closer is implemented by stores that hold resources needing an orderly
// shutdown with an error result, such as CachedStore's Redis client.
// PostgresStore.Close returns no error, so New adapts it separately.
type Closer interface {
	Close() error
}

// Writer is the persistence half the linking core deliberately excludes
// from linking.Store (§9: the linker decides, it never writes). Callers
// that want to actually record a LinkResult use this against the same
// backend Store wraps.
type Writer interface {
	Insert(ctx context.Context, row Row) error
}

// New builds the linking.Store described by cfg: a backend (memory or
// postgres), optionally wrapped in a Redis parent cache, optionally traced.
// It also returns the backend's Writer so callers can persist the rows Link
// decides on, and a closer that releases any resources the store opened
// (never nil; a no-op when nothing needs closing).
func New(ctx context.Context, cfg config.Config) (linking.Store, Writer, func() error, error) {
	var base linking.Store
	var writer Writer
	var closers []func() error

	switch cfg.Store.Backend {
	case "", "memory":
		mem := NewMemoryStore()
		base, writer = mem, mem
	case "postgres":
		if cfg.Store.DSN == "" {
			return nil, nil, nil, fmt.Errorf("store backend postgres requires a DSN")
		}
		pg, err := OpenPostgresStore(ctx, cfg.Store.DSN)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, nil, nil, fmt.Errorf("migrate postgres store: %w", err)
		}
		base, writer = pg, pg
		closers = append(closers, func() error { pg.Close(); return nil })
	default:
		return nil, nil, nil, fmt.Errorf("unsupported store backend: %q", cfg.Store.Backend)
	}

	cached, err := NewCachedStore(cfg.Cache, base)
	if err != nil {
		for _, c := range closers {
			_ = c()
		}
		return nil, nil, nil, err
	}
	if closer, ok := cached.(Closer); ok && cached != base {
		closers = append(closers, closer.Close)
	}

	traced := observability.NewTracedStore(cached)

	closeAll := func() error {
		var first error
		for _, c := range closers {
			if err := c(); err != nil && first == nil {
				first = err
			}
		}
		return first
	}
	return traced, writer, closeAll, nil
}
