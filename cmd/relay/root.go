package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRootCommand() *cobra.Command {
	v := newViper()

	var configPath string

	rootCmd := &cobra.Command{
		Use:   "relay",
		Short: "In-process publish/subscribe and request/response relay",
		Long: `relay exercises the in-process message relay.

Every flag can also be set through a RELAY_ environment variable (dots become
underscores, e.g. RELAY_FORWARD_TRANSPORT=nats) or a config file. A .env file in
the working directory is loaded automatically.

Examples:
  relay demo
  relay demo --publishes 500 --message "ping"
  relay demo --forward-transport nats --nats-url nats://127.0.0.1:4222`,
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a config file (yaml, json or toml)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn or error")
	bindFlag(v, rootCmd, "log_level", "log-level")

	rootCmd.AddCommand(newDemoCommand(v, &configPath))

	return rootCmd
}

func bindFlag(v *viper.Viper, cmd *cobra.Command, key, flag string) {
	f := cmd.PersistentFlags().Lookup(flag)
	if f == nil {
		f = cmd.Flags().Lookup(flag)
	}

	_ = v.BindPFlag(key, f) //nolint:errcheck // only fails for a nil flag, which is a programming error
}
