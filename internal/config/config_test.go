// File: internal/config/config_test.go
package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "deskpilot", cfg.Logger().ServiceName)
	assert.Equal(t, VariantElement, cfg.Agent().Variant)
	assert.Equal(t, 20, cfg.Agent().MaxSteps)
	assert.Equal(t, 10, cfg.Agent().VisionMaxSteps)
	assert.Equal(t, 2*time.Second, cfg.Agent().SuccessCooldown)
	assert.Equal(t, 3*time.Second, cfg.Agent().ErrorCooldown)
	assert.Equal(t, 10*time.Second, cfg.Desktop().LocateTimeout)
	assert.Equal(t, 10*time.Second, cfg.Desktop().ResolveWait)
	assert.Equal(t, 500*time.Millisecond, cfg.Desktop().SettleDelay)
	assert.Contains(t, cfg.Desktop().BrowserMarkers, "chrome")
	assert.ElementsMatch(t, []string{"ListItem", "Document", "Text"}, cfg.Redaction().SensitiveTypes)
	assert.Contains(t, cfg.Redaction().SafeTitles, "Archived chats")
	assert.Equal(t, ProviderGemini, cfg.Oracle().Provider)
	assert.False(t, cfg.Store().Enabled)
}

func TestAgentConfig_StepBudget(t *testing.T) {
	a := NewDefaultConfig().Agent()
	assert.Equal(t, 20, a.StepBudget())

	a.Variant = VariantVision
	assert.Equal(t, 10, a.StepBudget())
}

// -- Validation Logic Tests --

func validConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.DesktopCfg.Backend = BackendMemory
	cfg.DesktopCfg.Fixture = "desk.yaml"
	return cfg
}

func TestConfigValidation(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate())
	})

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"unknown variant", func(c *Config) { c.AgentCfg.Variant = "pixel" }, "variant must be"},
		{"zero steps", func(c *Config) { c.AgentCfg.MaxSteps = 0 }, "max_steps and vision_max_steps must be positive"},
		{"zero concurrency", func(c *Config) { c.AgentCfg.Concurrency = 0 }, "concurrency must be a positive integer"},
		{"negative cooldown", func(c *Config) { c.AgentCfg.ErrorCooldown = -time.Second }, "cooldowns must not be negative"},
		{"memory without fixture", func(c *Config) { c.DesktopCfg.Fixture = "" }, "fixture is required"},
		{"unknown backend", func(c *Config) { c.DesktopCfg.Backend = "x11" }, "backend must be"},
		{"zero poll interval", func(c *Config) { c.DesktopCfg.PollInterval = 0 }, "poll_interval must be a positive duration"},
		{"script without path", func(c *Config) { c.OracleCfg.Provider = ProviderScript }, "script is required"},
		{"unknown provider", func(c *Config) { c.OracleCfg.Provider = "openai" }, "unsupported provider"},
		{"temperature too high", func(c *Config) { c.OracleCfg.Temperature = 2.5 }, "temperature must be between"},
		{"no sensitive types", func(c *Config) { c.RedactionCfg.SensitiveTypes = nil }, "sensitive_types must not be empty"},
		{"store without url", func(c *Config) { c.StoreCfg.Enabled = true }, "store.url is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// -- Viper Integration Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("overrides from yaml", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		yamlConfig := []byte(`
agent:
  variant: vision
  vision_max_steps: 6
desktop:
  backend: memory
  fixture: ./fixtures/desk.yaml
  browser_markers: [chrome]
oracle:
  provider: script
  script: ./replies.yaml
`)
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlConfig)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, VariantVision, cfg.Agent().Variant)
		assert.Equal(t, 6, cfg.Agent().StepBudget())
		assert.Equal(t, BackendMemory, cfg.Desktop().Backend)
		assert.Equal(t, []string{"chrome"}, cfg.Desktop().BrowserMarkers)
		assert.Equal(t, ProviderScript, cfg.Oracle().Provider)
		// Untouched sections keep their defaults.
		assert.Equal(t, 20, cfg.Agent().MaxSteps)
	})

	t.Run("api key from environment", func(t *testing.T) {
		t.Setenv("DESKPILOT_ORACLE_API_KEY", "test-key")
		v := viper.New()
		SetDefaults(v)
		v.Set("desktop.backend", "cdp")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "test-key", cfg.Oracle().APIKey)
	})

	t.Run("expands home directory in paths", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("desktop.backend", "memory")
		v.Set("desktop.fixture", "~/desk.yaml")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		want, err := homedir.Expand("~/desk.yaml")
		require.NoError(t, err)
		assert.Equal(t, want, cfg.Desktop().Fixture)
	})

	t.Run("invalid configuration is wrapped", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("agent.concurrency", 0)

		_, err := NewConfigFromViper(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid configuration")
	})
}

func TestSetters(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.SetAgentMaxSteps(7)
	cfg.SetAgentVariant(VariantVision)
	cfg.SetAgentConcurrency(3)
	cfg.SetDesktopBackend(BackendMemory)
	cfg.SetDesktopFixture("f.yaml")
	cfg.SetOracleProvider(ProviderScript)
	cfg.SetOracleScript("s.yaml")

	assert.Equal(t, 7, cfg.Agent().MaxSteps)
	assert.Equal(t, VariantVision, cfg.Agent().Variant)
	assert.Equal(t, 3, cfg.Agent().Concurrency)
	assert.Equal(t, BackendMemory, cfg.Desktop().Backend)
	assert.Equal(t, "f.yaml", cfg.Desktop().Fixture)
	assert.Equal(t, ProviderScript, cfg.Oracle().Provider)
	assert.Equal(t, "s.yaml", cfg.Oracle().Script)
}
