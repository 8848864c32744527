// Package cmd implements evfsctl, the command-line surface spec.md §1
// excludes from the core ("out of scope: ... a command-line tool") but
// SPEC_FULL.md adds back as the hosting program every embedded store
// needs for manual inspection and scripting, grounded on the teacher's
// cmd/root.go cobra-plus-viper wiring.
package cmd

import (
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nax-project/evfs/cfg"
	"github.com/nax-project/evfs/internal/config"
	"github.com/nax-project/evfs/internal/logger"
)

var (
	cfgFile string
	bindErr error
)

var rootCmd = &cobra.Command{
	Use:   "evfsctl",
	Short: "Create, inspect, and manipulate EVFS volume files",
	Long: `evfsctl is a command-line client for EVFS, the single-file
embedded object store. It does not mount anything: every subcommand
opens the volume file directly, performs one operation, and closes it.`,
}

// Execute runs the root command, exiting the process with status 1 on
// error, the same top-level error handling the teacher's Execute uses.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "Path to a YAML config file overlaying flag defaults.")
	bindErr = cfg.BindFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(createCmd, openCmd, catCmd, putCmd, statCmd, rmCmd)
}

func initConfig() {
	if cfgFile == "" {
		return
	}
	viper.SetConfigFile(cfgFile)
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil && bindErr == nil {
		bindErr = fmt.Errorf("reading config file %q: %w", cfgFile, err)
	}
}

// loadConfig resolves the fully bound cfg.Config, surfacing any error
// BindFlags or initConfig recorded instead of unmarshaling over it.
func loadConfig() (cfg.Config, error) {
	if bindErr != nil {
		return cfg.Config{}, bindErr
	}
	var c cfg.Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(cfg.DecodeHook(), mapstructure.StringToTimeDurationHookFunc()))
	if err := viper.Unmarshal(&c, hook); err != nil {
		return cfg.Config{}, fmt.Errorf("unmarshaling config: %w", err)
	}
	return c, nil
}

// initLogging points internal/logger at c.Logging, the way every
// subcommand wires the ambient logger before touching a volume.
func initLogging(c cfg.Config) error {
	return logger.InitLogFile(config.LogConfig{LogRotateConfig: config.DefaultLogRotateConfig()}, c.Logging)
}
