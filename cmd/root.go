// Package cmd provides the reheat command-line interface.
//
// Configuration is layered: command-line flags override REHEAT_*
// environment variables, which override the .reheat.yml configuration
// file, which overrides built-in defaults.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "reheat",
	Short: "A hot-update dev server for component-based web UIs",
	Long: `Reheat is a development server that rewrites compiled module output so
individual local imports become live-swappable, and patches the running
component tree in place instead of forcing a full page reload.

Key Features:
  • Static imports rewritten to cache-busted dynamic loads
  • Bounded content and syntax-tree caches for fast rebuilds
  • In-place component patching with safe full-reload fallback
  • WebSocket update channel with reconnection backoff
  • Bare-import resolution against node_modules

Quick Start:
  reheat serve                    Start the dev server
  reheat transform file.js        Print a file's transformed output
  reheat version                  Show version information`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

// normalizeFlags lets users type underscores or dashes interchangeably
// (--log_level and --log-level both work).
func normalizeFlags(f *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().SetNormalizeFunc(normalizeFlags)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .reheat.yml, can also use REHEAT_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log-format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig locates the configuration file and enables REHEAT_*
// environment variable overrides.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("REHEAT_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".reheat")
	}

	viper.SetEnvPrefix("REHEAT")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// A missing or malformed config file falls back to defaults.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
