package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danmuck/edgelink/internal/config"
	"github.com/danmuck/edgelink/internal/echo"
	"github.com/danmuck/edgelink/internal/testutil/testlog"
)

func startPeer(t *testing.T, pushInterval time.Duration) *echo.Server {
	t.Helper()
	cfg := config.DefaultPeerConfig()
	cfg.TCPAddr = "127.0.0.1:0"
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.PushInterval = pushInterval

	srv, err := echo.New(cfg, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, srv.Listen())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return srv
}

func clientConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "client.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--log-level", "disabled"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestRootRejectsInvalidLogLevel(t *testing.T) {
	testlog.Start(t)
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--log-level", "loud", "config", "validate", "x.toml"})
	cmd.SetOut(&bytes.Buffer{})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --log-level")
}

func TestSendOverTCP(t *testing.T) {
	testlog.Start(t)
	peer := startPeer(t, 0)
	path := clientConfigFile(t, fmt.Sprintf("address = %q\n", peer.TCPAddr()))

	out, err := execute(t, "--config", path, "send", "12", `{"symbol":"EURUSD"}`, "--timeout", "5s")
	require.NoError(t, err)

	var line map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out)), &line))
	assert.Equal(t, "response", line["kind"])
	assert.Equal(t, 12.0, line["payloadType"])
	assert.Equal(t, map[string]any{"symbol": "EURUSD"}, line["payload"])
}

func TestSendGuaranteedOverWebSocket(t *testing.T) {
	testlog.Start(t)
	peer := startPeer(t, 0)
	path := clientConfigFile(t, fmt.Sprintf("transport = \"ws\"\naddress = %q\n", "ws://"+peer.HTTPAddr()+"/ws"))

	out, err := execute(t, "--config", path, "send", "4", "hello", "--guaranteed", "--timeout", "5s")
	require.NoError(t, err)
	assert.Contains(t, out, `"payload":"hello"`)
}

func TestSendNoResponse(t *testing.T) {
	testlog.Start(t)
	peer := startPeer(t, 0)
	path := clientConfigFile(t, fmt.Sprintf("address = %q\n", peer.TCPAddr()))

	out, err := execute(t, "--config", path, "send", "9", "--no-response", "--timeout", "5s")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestSendRejectsBadPayloadType(t *testing.T) {
	testlog.Start(t)
	_, err := execute(t, "send", "twelve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid payload type")
}

func TestSendFailsWhenPeerUnreachable(t *testing.T) {
	testlog.Start(t)
	path := clientConfigFile(t, "address = \"127.0.0.1:1\"\nmax_connect_attempts = 1\n")
	_, err := execute(t, "--config", path, "send", "1", "--timeout", "5s")
	require.Error(t, err)
}

func TestListenPrintsPushEvents(t *testing.T) {
	testlog.Start(t)
	peer := startPeer(t, 20*time.Millisecond)
	path := clientConfigFile(t, fmt.Sprintf("address = %q\n", peer.TCPAddr()))

	out, err := execute(t, "--config", path, "listen", "--duration", "500ms")
	require.NoError(t, err)
	assert.Contains(t, out, `"kind":"push"`)
	assert.Contains(t, out, `"payloadType":50`)
}

func TestConfigInitAndValidate(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "peer.toml")

	out, err := execute(t, "config", "init", path, "--kind", "peer")
	require.NoError(t, err)
	assert.Contains(t, out, "wrote peer config")

	out, err = execute(t, "config", "validate", path, "--kind", "peer")
	require.NoError(t, err)
	assert.Contains(t, out, "validated peer config")

	_, err = execute(t, "config", "validate", path, "--kind", "ghost")
	assert.Error(t, err)
}
