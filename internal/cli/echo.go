package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/danmuck/edgelink/internal/config"
	"github.com/danmuck/edgelink/internal/echo"
	"github.com/danmuck/edgelink/internal/observability"
)

func NewEchoCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "echo",
		Short: "Run the echo peer (tcp frames, /ws, /health, /metrics)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadPeerConfig(rootOpts.ConfigPath)
			if err != nil {
				return err
			}
			srv, err := echo.New(cfg, observability.InitLogger("echo"))
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return srv.Run(ctx)
		},
	}
}
