// Command qpac serves a PAC file generated from a hostname whitelist and
// administers that whitelist remotely.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var (
	cfgFile   string
	verbose   int
	logFormat string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "qpac",
	Short: "PAC file whitelist server",
	Long: `qpac keeps a whitelist of hostnames and serves a proxy auto-config
file routing those hosts (and their subdomains) through a local SOCKS proxy.

The generated file is content addressed: GET / returns the latest one and
GET /<hash> returns any earlier generation.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			viper.SetConfigName("qpac")
			viper.SetConfigType("yaml")
			viper.AddConfigPath(".")
			if home, err := os.UserHomeDir(); err == nil {
				viper.AddConfigPath(home + "/.qpac")
			}
		}
		viper.SetEnvPrefix("qpac")
		viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
		viper.AutomaticEnv()

		if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return fmt.Errorf("read config: %w", err)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./qpac.yaml or ~/.qpac/qpac.yaml)")
	rootCmd.PersistentFlags().CountVarP(&verbose, "verbose", "v", "enable debug logs")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log output: console or json (env QPAC_LOGGER)")

	_ = viper.BindPFlag("verbosity", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("logger", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(hashCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(versionCmd)
}

// newLogger builds the process logger from --log-format and -v.
func newLogger() (*zap.Logger, error) {
	var cfg zap.Config
	switch format := viper.GetString("logger"); format {
	case "", "console":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.Development = false
	case "json":
		cfg = zap.NewProductionConfig()
	default:
		return nil, fmt.Errorf("unknown log format %q (want console or json)", format)
	}

	level := zapcore.InfoLevel
	if viper.GetInt("verbosity") > 0 {
		level = zapcore.DebugLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the qpac version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "qpac %s\n", version)
	},
}
