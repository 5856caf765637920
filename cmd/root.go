/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"log/slog"
	"os"

	"github.com/moamenhredeen/oasplugin/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool

	v      = viper.New()
	cfg    *config.Config
	logger *slog.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "oasplugin",
	Short: "Turn OpenAPI documents into callable plugin functions",
	Long: `oasplugin loads an OpenAPI 3.x document, or an OpenAI plugin manifest,
and exposes every operation as a function that can be listed, called and benchmarked.

Settings are read from ./oasplugin.toml (or --config) and OASPLUGIN_* environment
variables. Flags win over both.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(v, cfgFile)
		if err != nil {
			return err
		}
		if verbose {
			c.Log.Level = "debug"
		}
		cfg = c
		logger = c.Logger(os.Stderr)
		slog.SetDefault(logger)
		return nil
	},
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Config file (default ./oasplugin.toml)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Show detailed output and debug logs")
	flags.String("server", "", "Override server URL from OpenAPI spec")
	flags.Duration("timeout", 0, "Per-request timeout (default 30s)")
	flags.Bool("dynamic-payload", false, "Build request bodies from flat arguments")
	flags.Bool("namespacing", false, "Name nested payload arguments by property path")
	flags.StringSlice("exclude", nil, "Operation ids to skip")

	bind := map[string]string{
		"server":              "server",
		"timeout":             "timeout",
		"dynamic_payload":     "dynamic-payload",
		"payload_namespacing": "namespacing",
		"exclude":             "exclude",
	}
	for key, flag := range bind {
		cobra.CheckErr(v.BindPFlag(key, flags.Lookup(flag)))
	}
}
