package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/netdumpsystems/netdump-go"
	"github.com/netdumpsystems/netdump-go/pkg/disklru"
)

var (
	// Global flags
	cfgFile string
	dirFlag string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "netdump",
	Short: "netdump - record and inspect HTTP client transcripts",
	Long: `netdump records HTTP exchanges as plain text transcripts in a
size-bounded directory and lets you inspect what was stored.

Configuration is read from a YAML file (--config) and the environment
variables NETDUMP_LEVEL, NETDUMP_DIR and NETDUMP_MAX_SIZE.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&dirFlag, "dir", "", "transcript directory (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// loadConfig reads the configuration and applies the persistent flags.
func loadConfig() (*Config, error) {
	cfg, err := LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}
	if dirFlag != "" {
		cfg.Dir = dirFlag
	}
	return cfg, nil
}

// openService creates a service from the configuration. The returned
// service always has a store.
func openService(cfg *Config, logger *zerolog.Logger) (*netdump.Service, error) {
	var openErr error
	o, err := cfg.Options()
	if err != nil {
		return nil, err
	}
	o.Logger = logger
	o.OnError = func(e error) {
		if openErr == nil {
			openErr = e
		}
		logger.Warn().Err(e).Msg("netdump error")
	}

	nd, err := netdump.New(o)
	if err != nil {
		return nil, err
	}
	if nd.Store() == nil {
		if openErr == nil {
			openErr = errors.New("store unavailable")
		}
		return nil, openErr
	}
	return nd, nil
}

// openStore opens the transcript store of the configuration for
// inspection. Values beyond the configured capacity are kept: the store may
// have been written with a larger one.
func openStore() (*disklru.Cache, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg.Log, verbose)
	if err != nil {
		return nil, err
	}

	dir := cfg.Dir
	if dir == "" {
		dir = netdump.DefaultDir()
	}
	return disklru.Open(dir, max(cfg.MaxSize, netdump.MinMaxSize), &disklru.Options{
		Logger:        &logger,
		KeepOversized: true,
	})
}
