// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Agent() AgentConfig
	Desktop() DesktopConfig
	Redaction() RedactionConfig
	Oracle() OracleConfig
	Store() StoreConfig

	// Agent Setters
	SetAgentMaxSteps(int)
	SetAgentVariant(Variant)
	SetAgentConcurrency(int)

	// Desktop Setters
	SetDesktopBackend(Backend)
	SetDesktopFixture(string)

	// Oracle Setters
	SetOracleProvider(OracleProvider)
	SetOracleScript(string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	AgentCfg     AgentConfig     `mapstructure:"agent" yaml:"agent"`
	DesktopCfg   DesktopConfig   `mapstructure:"desktop" yaml:"desktop"`
	RedactionCfg RedactionConfig `mapstructure:"redaction" yaml:"redaction"`
	OracleCfg    OracleConfig    `mapstructure:"oracle" yaml:"oracle"`
	StoreCfg     StoreConfig     `mapstructure:"store" yaml:"store"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig       { return c.LoggerCfg }
func (c *Config) Agent() AgentConfig         { return c.AgentCfg }
func (c *Config) Desktop() DesktopConfig     { return c.DesktopCfg }
func (c *Config) Redaction() RedactionConfig { return c.RedactionCfg }
func (c *Config) Oracle() OracleConfig       { return c.OracleCfg }
func (c *Config) Store() StoreConfig         { return c.StoreCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetAgentMaxSteps(n int)       { c.AgentCfg.MaxSteps = n }
func (c *Config) SetAgentVariant(v Variant)    { c.AgentCfg.Variant = v }
func (c *Config) SetAgentConcurrency(n int)    { c.AgentCfg.Concurrency = n }
func (c *Config) SetDesktopBackend(b Backend)  { c.DesktopCfg.Backend = b }
func (c *Config) SetDesktopFixture(p string)   { c.DesktopCfg.Fixture = p }
func (c *Config) SetOracleScript(p string)     { c.OracleCfg.Script = p }
func (c *Config) SetOracleProvider(p OracleProvider) {
	c.OracleCfg.Provider = p
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// Variant selects which toolkit the agent loop drives.
type Variant string

const (
	VariantElement Variant = "element" // accessibility-tree driven
	VariantVision  Variant = "vision"  // coordinate grid driven
)

// AgentConfig configures the plan-act-observe loop.
type AgentConfig struct {
	Variant        Variant       `mapstructure:"variant" yaml:"variant"`
	MaxSteps       int           `mapstructure:"max_steps" yaml:"max_steps"`
	VisionMaxSteps int           `mapstructure:"vision_max_steps" yaml:"vision_max_steps"`
	Concurrency    int           `mapstructure:"concurrency" yaml:"concurrency"`
	OracleTimeout  time.Duration `mapstructure:"oracle_timeout" yaml:"oracle_timeout"`
	// Cooldowns applied after each step.
	SuccessCooldown       time.Duration `mapstructure:"success_cooldown" yaml:"success_cooldown"`
	ErrorCooldown         time.Duration `mapstructure:"error_cooldown" yaml:"error_cooldown"`
	OracleFailureCooldown time.Duration `mapstructure:"oracle_failure_cooldown" yaml:"oracle_failure_cooldown"`
}

// StepBudget returns the step budget for the configured variant.
func (a AgentConfig) StepBudget() int {
	if a.Variant == VariantVision {
		return a.VisionMaxSteps
	}
	return a.MaxSteps
}

// Validate checks the agent configuration.
func (a *AgentConfig) Validate() error {
	switch a.Variant {
	case VariantElement, VariantVision:
	default:
		return fmt.Errorf("variant must be %q or %q, got %q", VariantElement, VariantVision, a.Variant)
	}
	if a.MaxSteps <= 0 || a.VisionMaxSteps <= 0 {
		return fmt.Errorf("max_steps and vision_max_steps must be positive integers")
	}
	if a.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be a positive integer")
	}
	if a.SuccessCooldown < 0 || a.ErrorCooldown < 0 || a.OracleFailureCooldown < 0 {
		return fmt.Errorf("cooldowns must not be negative")
	}
	return nil
}

// Backend selects the desktop substrate implementation.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendCDP    Backend = "cdp"
)

// DesktopConfig holds settings for the UI-interaction substrate.
type DesktopConfig struct {
	Backend        Backend           `mapstructure:"backend" yaml:"backend"`
	Fixture        string            `mapstructure:"fixture" yaml:"fixture"`
	LocateTimeout  time.Duration     `mapstructure:"locate_timeout" yaml:"locate_timeout"`
	ResolveWait    time.Duration     `mapstructure:"resolve_wait" yaml:"resolve_wait"`
	PollInterval   time.Duration     `mapstructure:"poll_interval" yaml:"poll_interval"`
	SettleDelay    time.Duration     `mapstructure:"settle_delay" yaml:"settle_delay"`
	KeySettle      time.Duration     `mapstructure:"key_settle" yaml:"key_settle"`
	LaunchSettle   time.Duration     `mapstructure:"launch_settle" yaml:"launch_settle"`
	BrowserMarkers []string          `mapstructure:"browser_markers" yaml:"browser_markers"`
	CDP            CDPConfig         `mapstructure:"cdp" yaml:"cdp"`
	Apps           map[string]string `mapstructure:"apps" yaml:"apps"`
}

// CDPConfig configures the Chrome DevTools Protocol backend.
type CDPConfig struct {
	RemoteURL string        `mapstructure:"remote_url" yaml:"remote_url"`
	ExecPath  string        `mapstructure:"exec_path" yaml:"exec_path"`
	Headless  bool          `mapstructure:"headless" yaml:"headless"`
	NoSandbox bool          `mapstructure:"no_sandbox" yaml:"no_sandbox"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// Validate checks the desktop configuration.
func (d *DesktopConfig) Validate() error {
	switch d.Backend {
	case BackendMemory:
		if d.Fixture == "" {
			return fmt.Errorf("fixture is required for the %q backend", BackendMemory)
		}
	case BackendCDP:
	default:
		return fmt.Errorf("backend must be %q or %q, got %q", BackendMemory, BackendCDP, d.Backend)
	}
	if d.LocateTimeout <= 0 || d.ResolveWait <= 0 {
		return fmt.Errorf("locate_timeout and resolve_wait must be positive durations")
	}
	if d.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be a positive duration")
	}
	return nil
}

// RedactionConfig defines which element text is withheld from observations.
type RedactionConfig struct {
	SensitiveTypes   []string `mapstructure:"sensitive_types" yaml:"sensitive_types"`
	SafeTitles       []string `mapstructure:"safe_titles" yaml:"safe_titles"`
	PassthroughTypes []string `mapstructure:"passthrough_types" yaml:"passthrough_types"`
}

// OracleProvider defines the supported decision backends.
type OracleProvider string

const (
	ProviderGemini OracleProvider = "gemini"
	ProviderScript OracleProvider = "script"
)

// OracleConfig defines the configuration for the decision oracle.
type OracleConfig struct {
	Provider          OracleProvider `mapstructure:"provider" yaml:"provider"`
	Model             string         `mapstructure:"model" yaml:"model"`
	APIKey            string         `mapstructure:"api_key" yaml:"api_key"`
	Temperature       float32        `mapstructure:"temperature" yaml:"temperature"`
	MaxOutputTokens   int            `mapstructure:"max_output_tokens" yaml:"max_output_tokens"`
	RequestsPerMinute int            `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	Script            string         `mapstructure:"script" yaml:"script"`
}

// Validate checks the oracle configuration.
func (o *OracleConfig) Validate() error {
	switch o.Provider {
	case ProviderGemini:
		if o.Model == "" {
			return fmt.Errorf("model is required for the %q provider", ProviderGemini)
		}
	case ProviderScript:
		if o.Script == "" {
			return fmt.Errorf("script is required for the %q provider", ProviderScript)
		}
	default:
		return fmt.Errorf("unsupported provider %q", o.Provider)
	}
	if o.Temperature < 0 || o.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0.0 and 2.0")
	}
	if o.RequestsPerMinute < 0 {
		return fmt.Errorf("requests_per_minute must not be negative")
	}
	return nil
}

// StoreConfig holds the transcript database connection details.
type StoreConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	URL     string `mapstructure:"url" yaml:"url"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "deskpilot")
	v.SetDefault("logger.log_file", "deskpilot.log")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "red")

	// -- Agent --
	v.SetDefault("agent.variant", string(VariantElement))
	v.SetDefault("agent.max_steps", 20)
	v.SetDefault("agent.vision_max_steps", 10)
	v.SetDefault("agent.concurrency", 1)
	v.SetDefault("agent.oracle_timeout", "60s")
	v.SetDefault("agent.success_cooldown", "2s")
	v.SetDefault("agent.error_cooldown", "3s")
	v.SetDefault("agent.oracle_failure_cooldown", "3s")

	// -- Desktop --
	v.SetDefault("desktop.backend", string(BackendCDP))
	v.SetDefault("desktop.locate_timeout", "10s")
	v.SetDefault("desktop.resolve_wait", "10s")
	v.SetDefault("desktop.poll_interval", "250ms")
	v.SetDefault("desktop.settle_delay", "500ms")
	v.SetDefault("desktop.key_settle", "1s")
	v.SetDefault("desktop.launch_settle", "3s")
	v.SetDefault("desktop.browser_markers", []string{
		"chrome", "chromium", "firefox", "edge", "msedge", "brave", "opera", "safari",
	})
	v.SetDefault("desktop.cdp.headless", false)
	v.SetDefault("desktop.cdp.no_sandbox", false)
	v.SetDefault("desktop.cdp.timeout", "30s")
	v.SetDefault("desktop.apps", map[string]string{
		"calculator": "https://www.desmos.com/scientific",
		"notepad":    "https://www.rapidtables.com/tools/notepad.html",
	})

	// -- Redaction --
	v.SetDefault("redaction.sensitive_types", []string{"ListItem", "Document", "Text"})
	v.SetDefault("redaction.safe_titles", []string{
		"Chats", "Calls", "Status", "Settings", "Profile", "Archived chats", "Starred messages",
	})
	v.SetDefault("redaction.passthrough_types", []string{
		"Button", "SplitButton", "MenuItem", "Menu", "MenuBar", "TabItem", "Tab",
		"CheckBox", "RadioButton", "ComboBox", "Hyperlink", "Link", "Image", "Edit",
		"Slider", "Spinner", "ScrollBar", "ToolBar", "StatusBar", "TitleBar", "Pane",
		"Window", "Group", "Header", "HeaderItem", "Separator", "Thumb", "ProgressBar",
		"Tree", "TreeItem", "List", "Table", "DataGrid", "Calendar", "AppBar",
	})

	// -- Oracle --
	v.SetDefault("oracle.provider", string(ProviderGemini))
	v.SetDefault("oracle.model", "gemini-2.5-flash")
	v.SetDefault("oracle.temperature", 0.2)
	v.SetDefault("oracle.max_output_tokens", 512)
	v.SetDefault("oracle.requests_per_minute", 30)

	// -- Store --
	v.SetDefault("store.enabled", false)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("oracle.api_key", "DESKPILOT_ORACLE_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("store.url", "DESKPILOT_STORE_URL", "DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Manually load the key if Unmarshal didn't pick it up
	if cfg.OracleCfg.Provider == ProviderGemini && cfg.OracleCfg.APIKey == "" {
		cfg.OracleCfg.APIKey = os.Getenv("GEMINI_API_KEY")
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandPaths resolves a leading ~ in every file path setting.
func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.LoggerCfg.LogFile, &c.DesktopCfg.Fixture, &c.OracleCfg.Script} {
		if !strings.HasPrefix(*p, "~") {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.AgentCfg.Validate(); err != nil {
		return fmt.Errorf("agent configuration invalid: %w", err)
	}
	if err := c.DesktopCfg.Validate(); err != nil {
		return fmt.Errorf("desktop configuration invalid: %w", err)
	}
	if err := c.OracleCfg.Validate(); err != nil {
		return fmt.Errorf("oracle configuration invalid: %w", err)
	}
	if len(c.RedactionCfg.SensitiveTypes) == 0 {
		return fmt.Errorf("redaction.sensitive_types must not be empty")
	}
	if c.StoreCfg.Enabled && c.StoreCfg.URL == "" {
		return fmt.Errorf("store.url is required when the store is enabled")
	}
	return nil
}
