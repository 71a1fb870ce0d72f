package matchengine

import (
	"matchengine/pkg/config"
)

// EngineConfig is the viper-unmarshalled shape of config/matchengine.yaml.
// TickSizes is a per-symbol override; symbols not listed fall back to
// DefaultTickSize. Both are decimal strings (e.g. "0.01") because viper's
// YAML decoder doesn't know about decimal.Decimal.
type EngineConfig struct {
	MailboxSize     int               `mapstructure:"mailbox_size"`
	BatchMax        int               `mapstructure:"batch_max"`
	EventBusSize    int               `mapstructure:"event_bus_size"`
	DefaultTickSize string            `mapstructure:"default_tick_size"`
	TickSizes       map[string]string `mapstructure:"tick_sizes"`
	LogLevel        string            `mapstructure:"log_level"`
}

// LoadEngineConfig loads config/matchengine.yaml (or ./matchengine.yaml),
// applying MATCHENGINE_-prefixed env overrides, and keeps watching the file
// for hot-reload via the same fsnotify-backed mechanism the rest of the
// stack uses.
func LoadEngineConfig() (*EngineConfig, error) {
	cfg := &EngineConfig{
		MailboxSize:     4096,
		BatchMax:        256,
		EventBusSize:    1 << 12,
		DefaultTickSize: "0.01",
		LogLevel:        "info",
	}
	if _, err := config.LoadAndWatch("matchengine", cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
