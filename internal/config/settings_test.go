package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSettingsMissingFileReturnsDefaults(t *testing.T) {
	settings, err := LoadSettings(filepath.Join(t.TempDir(), "missing-settings.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "dolt", settings.DriverName)
	assert.Equal(t, 16, settings.MaxOpenConns)
	assert.Equal(t, 5*time.Second, settings.QueryTimeout)
	assert.Empty(t, settings.DSN)
}

func TestLoadSettingsParsesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	content := []byte(`
driver: mysql
dsn: "user:pass@tcp(127.0.0.1:3306)/resolver"
maxOpenConns: 4
queryTimeout: 2s
privateKey: "secret"
otlpEndpoint: "collector:4318"
natsUrl: "nats://127.0.0.1:4222"
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	settings, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, "mysql", settings.DriverName)
	assert.Equal(t, "user:pass@tcp(127.0.0.1:3306)/resolver", settings.DSN)
	assert.Equal(t, 4, settings.MaxOpenConns)
	assert.Equal(t, 2*time.Second, settings.QueryTimeout)
	assert.Equal(t, "secret", settings.PrivateKey)
	assert.Equal(t, "collector:4318", settings.OTLPEndpoint)
	assert.Equal(t, "nats://127.0.0.1:4222", settings.NATSURL)
}

func TestSettingsValidate(t *testing.T) {
	s := defaultSettings()
	assert.Error(t, s.Validate(), "missing dsn and privateKey")

	s.DSN = "file://./data"
	assert.Error(t, s.Validate(), "still missing privateKey")

	s.PrivateKey = "k"
	assert.NoError(t, s.Validate())
}
