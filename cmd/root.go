package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/xkilldash9x/deskpilot/internal/config"
	"github.com/xkilldash9x/deskpilot/internal/observability"
	"go.uber.org/zap"
)

type contextKey string

const configKey contextKey = "config"

// flagBindings maps persistent flags onto their configuration keys.
var flagBindings = map[string]string{
	"backend":   "desktop.backend",
	"fixture":   "desktop.fixture",
	"oracle":    "oracle.provider",
	"script":    "oracle.script",
	"model":     "oracle.model",
	"variant":   "agent.variant",
	"max-steps": "agent.max_steps",
	"log-level": "logger.level",
}

// Execute builds the root command and runs it with ctx.
func Execute(ctx context.Context) error {
	err := NewRootCommand().ExecuteContext(ctx)
	if err != nil {
		logger := observability.GetLogger()
		if errors.Is(err, context.Canceled) {
			logger.Warn("Command aborted by user signal.")
		} else {
			logger.Error("Command execution failed", zap.Error(err))
		}
	}
	observability.Sync()
	return err
}

// NewRootCommand returns a fresh command tree wired to the production
// providers.
func NewRootCommand() *cobra.Command {
	return newRootCmd(defaultDeps())
}

func newRootCmd(d *deps) *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:           "deskpilot",
		Short:         "deskpilot drives desktop applications toward a natural-language objective.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(cmd, v, cfgFile); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "deskpilot"})
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Starting deskpilot", zap.String("version", Version))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml or ~/.deskpilot/config.yaml)")
	flags.String("backend", "", "desktop backend: 'cdp' or 'memory'")
	flags.String("fixture", "", "desktop fixture for the memory backend")
	flags.String("oracle", "", "oracle provider: 'gemini' or 'script'")
	flags.String("script", "", "reply script for the script oracle")
	flags.String("model", "", "model name for the gemini oracle")
	flags.String("variant", "", "toolkit variant: 'element' or 'vision'")
	flags.Int("max-steps", 0, "step budget for the element variant")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(
		newRunCmd(d),
		newBatchCmd(d),
		newWindowsCmd(d),
		newInspectCmd(d),
		newReplayCmd(),
		newHistoryCmd(d),
	)
	return rootCmd
}

// initializeConfig reads the config file and environment into v and layers
// explicitly set flags on top.
func initializeConfig(cmd *cobra.Command, v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(home + "/.deskpilot")
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("DESKPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	for name, key := range flagBindings {
		f := cmd.Flags().Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}
	if f := cmd.Flags().Lookup("concurrency"); f != nil && f.Changed {
		if err := v.BindPFlag("agent.concurrency", f); err != nil {
			return err
		}
	}
	return nil
}

// getConfigFromContext returns the configuration stored by the root command.
func getConfigFromContext(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, fmt.Errorf("configuration not found in command context")
	}
	return cfg, nil
}
