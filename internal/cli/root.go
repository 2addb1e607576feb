// Package cli implements the linkctl command tree.
package cli

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/danmuck/edgelink/internal/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
	LogJSON    bool
}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "linkctl",
		Short: "Correlated command client for edge peers",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.configureLogging()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (.toml, .yaml)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "trace|debug|info|warn|error|disabled")
	cmd.PersistentFlags().BoolVar(&opts.LogJSON, "log-json", false, "structured JSON logs")

	cmd.AddCommand(NewSendCommand(opts))
	cmd.AddCommand(NewListenCommand(opts))
	cmd.AddCommand(NewEchoCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))

	return cmd
}

func (o *RootOptions) configureLogging() error {
	cfg := logging.Resolve(logging.ProfileRuntime)
	if o.LogLevel != "" {
		lvl, ok := logging.ParseLevel(o.LogLevel)
		if !ok {
			return fmt.Errorf("invalid --log-level %q", o.LogLevel)
		}
		cfg.Level = lvl
	}
	if o.LogJSON {
		cfg.JSON = true
	}
	logging.Apply(cfg)
	log.Debug().Str("config", o.ConfigPath).Msg("linkctl logging configured")
	return nil
}
