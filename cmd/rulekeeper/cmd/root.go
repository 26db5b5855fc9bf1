package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/solatis/rulekeeper/internal/core/config"
	"github.com/solatis/rulekeeper/internal/core/logging"
)

const Version = "0.1.0"

var (
	configFile string
	dbURL      string
	logLevel   string
	logFormat  string

	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "rulekeeper",
	Short: "RuleKeeper rule engine",
	Long: `RuleKeeper evaluates ordered rule sets against key/value inputs.

Rules are simple field comparisons, expressions in one of several dialects
(expression, lua, expr, cel) or And/Or/Not composites of other rules.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := logging.New(logLevel, logFormat, os.Stderr)
		if err != nil {
			return err
		}
		logger = l
		slog.SetDefault(l)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db-url", "", "database connection URL (sqlite://path or postgres://...)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "log format (json, text)")
	rootCmd.Version = Version
}

func Execute() error {
	return rootCmd.Execute()
}

// loadConfig merges defaults, the config file, RK_* variables and the given
// command flags (highest precedence). bindings maps config keys to flag names.
func loadConfig(flags *pflag.FlagSet, bindings map[string]string) (*config.Config, error) {
	v := viper.New()
	if err := v.BindPFlag("database.url", rootCmd.PersistentFlags().Lookup("db-url")); err != nil {
		return nil, err
	}
	for key, name := range bindings {
		f := flags.Lookup(name)
		if f == nil {
			return nil, fmt.Errorf("unknown flag %q", name)
		}
		if err := v.BindPFlag(key, f); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load(v, configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}
