package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/danmuck/edgelink/internal/config"
	"github.com/danmuck/edgelink/internal/connect"
)

type SendOptions struct {
	*RootOptions
	Guaranteed bool
	NoResponse bool
	Count      int
	Timeout    time.Duration
}

func NewSendCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SendOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "send <payload-type> [payload]",
		Short: "Send one command and print its responses",
		Long: `Send one command to the configured peer and print correlated responses as
JSON lines.

Example:
  linkctl send 12 '{"symbol":"EURUSD"}' --count 3`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pt, err := parsePayloadType(args[0])
			if err != nil {
				return err
			}
			var payload []byte
			if len(args) == 2 {
				payload = []byte(args[1])
			}
			cfg, err := config.LoadClientConfig(opts.ConfigPath)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
			defer cancel()
			return runSend(ctx, cmd, cfg, opts, pt, payload)
		},
	}

	cmd.Flags().BoolVar(&opts.Guaranteed, "guaranteed", false, "queue until connected instead of failing")
	cmd.Flags().BoolVar(&opts.NoResponse, "no-response", false, "send without waiting for a response")
	cmd.Flags().IntVar(&opts.Count, "count", 1, "responses to collect; above 1 keeps the command subscribed")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 10*time.Second, "overall deadline")

	return cmd
}

func parsePayloadType(raw string) (uint32, error) {
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid payload type %q: %w", raw, err)
	}
	return uint32(v), nil
}

func runSend(ctx context.Context, cmd *cobra.Command, cfg config.ClientConfig, opts *SendOptions, pt uint32, payload []byte) error {
	if opts.Count < 1 {
		return errors.New("--count must be at least 1")
	}
	s, err := openSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	// guaranteed commands queue on their own; everything else needs a session
	if !opts.Guaranteed || opts.NoResponse {
		if err := s.WaitConnected(ctx); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	switch {
	case opts.NoResponse:
		return s.Client.Send(pt, payload)
	case opts.Count == 1:
		msg, err := connect.Await(ctx, s.Client, pt, payload, connect.AwaitOptions{Guaranteed: opts.Guaranteed})
		if err != nil {
			return err
		}
		return writeMessage(out, "response", msg)
	default:
		return collect(ctx, s.Client, out, opts, pt, payload)
	}
}

// collect keeps one multi-response command subscribed until Count responses
// arrive.
func collect(ctx context.Context, c *connect.Client, out io.Writer, opts *SendOptions, pt uint32, payload []byte) error {
	responses := make(chan connect.Message, opts.Count)
	failed := make(chan error, 1)
	sub := c.SendCommand(connect.Command{
		PayloadType:   pt,
		Payload:       payload,
		Guaranteed:    opts.Guaranteed,
		MultiResponse: true,
		OnResponse: func(msg connect.Message) {
			select {
			case responses <- msg:
			default:
			}
		},
		OnError: func(err error) {
			select {
			case failed <- err:
			default:
			}
		},
	})
	defer sub.Unsubscribe()

	for i := 0; i < opts.Count; i++ {
		select {
		case msg := <-responses:
			if err := writeMessage(out, "response", msg); err != nil {
				return err
			}
		case err := <-failed:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
