package cli

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/danmuck/edgelink/internal/config"
	"github.com/danmuck/edgelink/internal/connect"
)

type ListenOptions struct {
	*RootOptions
	Duration time.Duration
}

func NewListenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Print push events until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadClientConfig(opts.ConfigPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if opts.Duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, opts.Duration)
				defer cancel()
			}
			return runListen(ctx, cmd, cfg)
		},
	}

	cmd.Flags().DurationVar(&opts.Duration, "duration", 0, "stop after this long; 0 runs until interrupted")
	return cmd
}

func runListen(ctx context.Context, cmd *cobra.Command, cfg config.ClientConfig) error {
	s, err := openSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	events := make(chan connect.Message, 64)
	s.Client.SetPushEventHandler(func(msg connect.Message) {
		select {
		case events <- msg:
		default:
			s.log.Warn().Uint32("payload_type", msg.PayloadType).Msg("linkctl listen dropped push event; output is behind")
		}
	})

	out := cmd.OutOrStdout()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-events:
			if err := writeMessage(out, "push", msg); err != nil {
				return err
			}
		}
	}
}
