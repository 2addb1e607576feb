package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danmuck/edgelink/internal/config"
)

type ConfigOptions struct {
	*RootOptions
	Kind  string
	Force bool
}

func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConfigOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Write or validate config files",
	}
	cmd.PersistentFlags().StringVar(&opts.Kind, "kind", "client", "config kind: client|peer")

	initCmd := &cobra.Command{
		Use:   "init <path>",
		Short: "Write a config template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteTemplate(args[0], opts.Kind, opts.Force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s config to %s\n", opts.Kind, args[0])
			return nil
		},
	}
	initCmd.Flags().BoolVar(&opts.Force, "force", false, "overwrite an existing file")

	validateCmd := &cobra.Command{
		Use:   "validate <path>",
		Short: "Load and validate a config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			switch opts.Kind {
			case "client":
				_, err = config.LoadClientConfig(args[0])
			case "peer", "echo":
				_, err = config.LoadPeerConfig(args[0])
			default:
				err = fmt.Errorf("unknown config kind: %s", opts.Kind)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "validated %s config at %s\n", opts.Kind, args[0])
			return nil
		},
	}

	cmd.AddCommand(initCmd, validateCmd)
	return cmd
}
