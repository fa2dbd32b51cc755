package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/latticedb/resolver/internal/apperr"
)

// Settings is the flat runtime configuration read from settings.yaml (or
// env/flags layered over it by the caller): which driver to dial, the
// connection pool shape, and the admin secret used as privateKey.
type Settings struct {
	DriverName   string        `mapstructure:"driver"`
	DSN          string        `mapstructure:"dsn"`
	MaxOpenConns int           `mapstructure:"maxOpenConns"`
	QueryTimeout time.Duration `mapstructure:"queryTimeout"`
	PrivateKey   string        `mapstructure:"privateKey"`
	OTLPEndpoint string        `mapstructure:"otlpEndpoint"`

	// NATSURL, when set, connects the plugin dispatcher's JetStream
	// publisher so lifecycle events reach external/distributed consumers
	// in addition to running local plugin callbacks. Empty disables it.
	NATSURL string `mapstructure:"natsUrl"`
}

// defaultSettings mirrors the values the prior art hard-coded (a five
// second soft timeout per driver call, see spec.md §5).
func defaultSettings() Settings {
	return Settings{
		DriverName:   "dolt",
		MaxOpenConns: 16,
		QueryTimeout: 5 * time.Second,
	}
}

// LoadSettings reads settings.yaml (if present) at path through viper,
// layering it over defaultSettings, same pattern the teacher's own
// config.go uses for its yaml-only settings (read once, no implicit env
// override — callers that want env overrides call BindEnv themselves
// before Unmarshal).
func LoadSettings(path string) (Settings, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	settings := defaultSettings()
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); notFound {
			return settings, nil
		}
		return Settings{}, apperr.Wrap(apperr.BadRequest, err, "reading settings file %s", path)
	}
	if err := v.Unmarshal(&settings); err != nil {
		return Settings{}, apperr.Wrap(apperr.BadRequest, err, "decoding settings file %s", path)
	}
	return settings, nil
}

// Validate rejects a Settings that can't be used to dial a driver.
func (s Settings) Validate() error {
	if s.DriverName == "" {
		return fmt.Errorf("settings: driver is required")
	}
	if s.DSN == "" {
		return fmt.Errorf("settings: dsn is required")
	}
	if s.PrivateKey == "" {
		return fmt.Errorf("settings: privateKey is required (admin auth bypasses access control otherwise)")
	}
	return nil
}
