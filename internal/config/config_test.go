package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		App: AppConfig{
			Environment: "development",
		},
		Logger: LoggerConfig{
			Level: "info",
		},
		Storage: StorageConfig{
			DataPath: "/some/path",
		},
		Engagement: EngagementConfig{
			WriteRPS:   2,
			WriteBurst: 5,
		},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_AllEnvironments(t *testing.T) {
	tests := []struct {
		env   string
		valid bool
	}{
		{"development", true},
		{"staging", true},
		{"production", true},
		{"test", false},
		{"", false},
		{"DEVELOPMENT", false}, // case sensitive
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			cfg := validConfig()
			cfg.App.Environment = tt.env

			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidate_LogLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "WARN"} {
		cfg := validConfig()
		cfg.Logger.Level = level
		assert.NoError(t, cfg.Validate(), "level %q should be accepted", level)
	}

	cfg := validConfig()
	cfg.Logger.Level = "verbose"
	assert.Error(t, cfg.Validate())
}

func TestValidate_EngagementLimits(t *testing.T) {
	cfg := validConfig()
	cfg.Engagement.WriteRPS = 0
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Engagement.WriteBurst = -1
	assert.Error(t, cfg.Validate())
}

func TestValidate_EmptyDataPath(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.DataPath = ""
	assert.Error(t, cfg.Validate())
}

func TestExpandContentPath(t *testing.T) {
	// Empty stays empty: the server can run without content configured.
	cfg := validConfig()
	require.NoError(t, cfg.expandContentPath())
	assert.Empty(t, cfg.Content.Path)

	cfg.Content.Path = "content"
	require.NoError(t, cfg.expandContentPath())
	assert.True(t, len(cfg.Content.Path) > len("content"), "relative path should become absolute")
}

func TestSplitOrigins(t *testing.T) {
	assert.Nil(t, splitOrigins(""))
	assert.Equal(t,
		[]string{"https://marginalia.press", "http://localhost:3000"},
		splitOrigins(" https://marginalia.press , http://localhost:3000 "))
}
