// Package main is the entry point for the tiercache CLI.
package main

import (
	"context"
	"os"

	"charm.land/fang/v2"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tiercache/tiercache"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "tiercache",
	Short: "Benchmark and inspect tiered caches",
	Long: `tiercache drives the tiered cache library from the command line:
run synthetic workloads against a configured cache, inspect a durable
tier database, and print version information.`,
}

func init() {
	// Global flags available to all subcommands
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file path (YAML or TOML); built-in defaults apply when omitted")
}

// setupLogging wires the cache's package logger to stderr: pretty console
// output when stderr is a terminal, JSON otherwise.
func setupLogging(verbose bool) {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	var logger zerolog.Logger
	if isatty.IsTerminal(os.Stderr.Fd()) {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	logger = logger.Level(level).With().Timestamp().Logger()
	tiercache.SetLogger(&logger)
}

// loadBenchConfig resolves the effective configuration: the --config file
// when given, built-in defaults otherwise.
func loadBenchConfig() (tiercache.Config, error) {
	if cfgFile == "" {
		return tiercache.DefaultConfig(), nil
	}
	cfg, err := tiercache.LoadConfig(cfgFile)
	if err != nil {
		return tiercache.Config{}, err
	}
	return cfg, cfg.Validate()
}

func main() {
	if err := fang.Execute(context.Background(), rootCmd); err != nil {
		os.Exit(1)
	}
}
