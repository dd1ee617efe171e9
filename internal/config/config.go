// Package config loads runtime configuration the way the rest of this
// codebase's pack does: environment variables (optionally via a .env file),
// applied over zero-value defaults, with an optional YAML overlay for
// values that are awkward to hand-edit as env vars.
package config

// Config is the top-level configuration for the linking service and the
// linkctl CLI.
type Config struct {
	Store   StoreConfig
	Cache   CacheConfig
	OTel    OTelConfig
	LogLevel string
	LogPath  string
}

// StoreConfig selects and configures the linking.Store backend.
type StoreConfig struct {
	// Backend is "memory" or "postgres". Defaults to "memory".
	Backend string
	// DSN is the Postgres connection string, required when Backend is
	// "postgres".
	DSN string
	// SubtaskWindowSeconds overrides §4.5's W, the sub-task lookback window
	// (linking.SubtaskWindow), when non-zero. Passed to linking.Linker via
	// WithSubtaskWindow by cmd/linkctl; most deployments leave this at the
	// spec default.
	SubtaskWindowSeconds int
}

// CacheConfig configures the optional Redis-backed parent cache in front of
// Store.FindParents. Caching is disabled unless RedisAddr is set.
type CacheConfig struct {
	RedisAddr              string
	RedisPassword          string
	RedisDB                int
	ParentCacheTTLMinutes  int
}

// OTelConfig configures OpenTelemetry tracing of Store calls.
type OTelConfig struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
}
