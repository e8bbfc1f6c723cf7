package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/delmic/odemis-sub003/errors"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8, cfg.Stream.DiscardBound)
	assert.Positive(t, cfg.Executor.Workers)
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing platform name", func(c *Config) { c.Platform.Name = "" }},
		{"bad log level", func(c *Config) { c.Platform.LogLevel = "verbose" }},
		{"negative workers", func(c *Config) { c.Executor.Workers = -1 }},
		{"negative queue size", func(c *Config) { c.Executor.QueueSize = -2 }},
		{"negative discard bound", func(c *Config) { c.Stream.DiscardBound = -1 }},
		{"empty NATS url", func(c *Config) { c.NATS.URLs = []string{""} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestZeroDiscardBoundIsValid(t *testing.T) {
	// Zero is the explicit "deliver everything" policy, not a mistake
	cfg := Default()
	cfg.Stream.DiscardBound = 0
	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "substrate.json")
	data := `{
		"platform": {"name": "secom-1", "log_level": "debug"},
		"stream": {"discard_bound": 2},
		"executor": {"workers": 2, "queue_size": 16}
	}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "secom-1", cfg.Platform.Name)
	assert.Equal(t, 2, cfg.Stream.DiscardBound)
	assert.Equal(t, 2, cfg.Executor.Workers)
	// Defaults fill what the file omits
	assert.NotEmpty(t, cfg.NATS.URLs)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.True(t, errors.IsInvalid(err))

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	_, err = Load(path)
	assert.True(t, errors.IsInvalid(err))
}

func TestSafeConfig(t *testing.T) {
	sc := NewSafeConfig(nil)
	got := sc.Get()
	require.NotNil(t, got)

	// Mutating the copy must not affect the stored config
	got.Platform.Name = "mutated"
	assert.NotEqual(t, "mutated", sc.Get().Platform.Name)

	update := Default()
	update.Platform.Name = "secom-2"
	require.NoError(t, sc.Update(update))
	assert.Equal(t, "secom-2", sc.Get().Platform.Name)

	bad := Default()
	bad.Executor.Workers = -1
	err := sc.Update(bad)
	require.Error(t, err)
	assert.Equal(t, "secom-2", sc.Get().Platform.Name, "failed update must not change config")

	assert.Error(t, sc.Update(nil))
}
