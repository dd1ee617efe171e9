package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	yaml "gopkg.in/yaml.v3"
)

// Load reads configuration from environment variables (optionally from a
// .env file) and applies defaults for anything left unset.
func Load() (Config, error) {
	_ = godotenv.Overload()

	cfg := Config{}

	if v := strings.TrimSpace(os.Getenv("LINKER_STORE_BACKEND")); v != "" {
		cfg.Store.Backend = v
	}
	if v := strings.TrimSpace(os.Getenv("LINKER_STORE_DSN")); v != "" {
		cfg.Store.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("LINKER_SUBTASK_WINDOW_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Store.SubtaskWindowSeconds = n
		}
	}

	if v := strings.TrimSpace(os.Getenv("LINKER_REDIS_ADDR")); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("LINKER_REDIS_PASSWORD")); v != "" {
		cfg.Cache.RedisPassword = v
	}
	if v := strings.TrimSpace(os.Getenv("LINKER_REDIS_DB")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Cache.RedisDB = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("LINKER_PARENT_CACHE_TTL_MINUTES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Cache.ParentCacheTTLMinutes = n
		}
	}

	if v := strings.TrimSpace(os.Getenv("LINKER_OTEL_ENABLED")); v != "" {
		cfg.OTel.Enabled = strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
	}
	if v := strings.TrimSpace(os.Getenv("LINKER_OTEL_ENDPOINT")); v != "" {
		cfg.OTel.Endpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("LINKER_OTEL_SERVICE_NAME")); v != "" {
		cfg.OTel.ServiceName = v
	}

	cfg.LogLevel = strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	cfg.LogPath = strings.TrimSpace(os.Getenv("LOG_PATH"))

	applyDefaults(&cfg)
	return cfg, nil
}

// LoadYAML reads a YAML overlay of Config from path and layers it under
// whatever Load() already populated from the environment: fields left zero
// in cfg are filled from the file, env vars still win. Mirrors the
// teacher's env-then-YAML-defaults order in internal/config/loader.go.
func LoadYAML(cfg Config, path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	fileCfg := Config{}
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return cfg, err
	}
	merge(&cfg, fileCfg)
	applyDefaults(&cfg)
	return cfg, nil
}

func merge(cfg *Config, file Config) {
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = file.Store.Backend
	}
	if cfg.Store.DSN == "" {
		cfg.Store.DSN = file.Store.DSN
	}
	if cfg.Store.SubtaskWindowSeconds == 0 {
		cfg.Store.SubtaskWindowSeconds = file.Store.SubtaskWindowSeconds
	}
	if cfg.Cache.RedisAddr == "" {
		cfg.Cache.RedisAddr = file.Cache.RedisAddr
	}
	if cfg.Cache.RedisPassword == "" {
		cfg.Cache.RedisPassword = file.Cache.RedisPassword
	}
	if cfg.Cache.RedisDB == 0 {
		cfg.Cache.RedisDB = file.Cache.RedisDB
	}
	if cfg.Cache.ParentCacheTTLMinutes == 0 {
		cfg.Cache.ParentCacheTTLMinutes = file.Cache.ParentCacheTTLMinutes
	}
	if !cfg.OTel.Enabled {
		cfg.OTel.Enabled = file.OTel.Enabled
	}
	if cfg.OTel.Endpoint == "" {
		cfg.OTel.Endpoint = file.OTel.Endpoint
	}
	if cfg.OTel.ServiceName == "" {
		cfg.OTel.ServiceName = file.OTel.ServiceName
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = file.LogLevel
	}
	if cfg.LogPath == "" {
		cfg.LogPath = file.LogPath
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "memory"
	}
	if cfg.Store.SubtaskWindowSeconds == 0 {
		cfg.Store.SubtaskWindowSeconds = 30
	}
	if cfg.Cache.ParentCacheTTLMinutes == 0 {
		cfg.Cache.ParentCacheTTLMinutes = 5
	}
	if cfg.OTel.ServiceName == "" {
		cfg.OTel.ServiceName = "conversation-linker"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}
