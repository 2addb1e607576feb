// Package config loads linkctl client and echo peer settings from TOML or YAML
// files with environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/danmuck/edgelink/internal/transport"
)

const (
	TransportTCP = "tcp"
	TransportWS  = "ws"
)

var (
	ErrUnknownFormat = errors.New("config: unknown file format")
	ErrInvalid       = errors.New("config: invalid")
)

type BackoffConfig struct {
	InitialDelay time.Duration `toml:"initial_delay" yaml:"initial_delay" env:"INITIAL_DELAY"`
	Multiplier   float64       `toml:"multiplier" yaml:"multiplier" env:"MULTIPLIER"`
	MaxDelay     time.Duration `toml:"max_delay" yaml:"max_delay" env:"MAX_DELAY"`
	Jitter       bool          `toml:"jitter" yaml:"jitter" env:"JITTER"`
}

type TLSConfig struct {
	Enabled            bool   `toml:"enabled" yaml:"enabled" env:"ENABLED"`
	Mutual             bool   `toml:"mutual" yaml:"mutual" env:"MUTUAL"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify" yaml:"insecure_skip_verify" env:"INSECURE_SKIP_VERIFY"`
	ServerName         string `toml:"server_name" yaml:"server_name" env:"SERVER_NAME"`
	CAFile             string `toml:"ca_file" yaml:"ca_file" env:"CA_FILE"`
	CertFile           string `toml:"cert_file" yaml:"cert_file" env:"CERT_FILE"`
	KeyFile            string `toml:"key_file" yaml:"key_file" env:"KEY_FILE"`
}

// ClientConfig describes one linkctl engine instance and its transport.
type ClientConfig struct {
	InstanceID string `toml:"instance_id" yaml:"instance_id" env:"EDGELINK_INSTANCE_ID"`
	Transport  string `toml:"transport" yaml:"transport" env:"EDGELINK_TRANSPORT"`
	Address    string `toml:"address" yaml:"address" env:"EDGELINK_ADDRESS"`
	WSOrigin   string `toml:"ws_origin" yaml:"ws_origin" env:"EDGELINK_WS_ORIGIN"`
	// Codec applies to the ws transport; tcp always carries frames.
	Codec string `toml:"codec" yaml:"codec" env:"EDGELINK_CODEC"`

	PayloadTypesNotAwaitingResponse []uint32 `toml:"payload_types_not_awaiting_response" yaml:"payload_types_not_awaiting_response" env:"EDGELINK_NOT_AWAITING" envSeparator:","`

	ConnectTimeout     time.Duration `toml:"connect_timeout" yaml:"connect_timeout" env:"EDGELINK_CONNECT_TIMEOUT"`
	HandshakeTimeout   time.Duration `toml:"handshake_timeout" yaml:"handshake_timeout" env:"EDGELINK_HANDSHAKE_TIMEOUT"`
	ReadTimeout        time.Duration `toml:"read_timeout" yaml:"read_timeout" env:"EDGELINK_READ_TIMEOUT"`
	WriteTimeout       time.Duration `toml:"write_timeout" yaml:"write_timeout" env:"EDGELINK_WRITE_TIMEOUT"`
	MaxConnectAttempts int           `toml:"max_connect_attempts" yaml:"max_connect_attempts" env:"EDGELINK_MAX_CONNECT_ATTEMPTS"`

	Backoff      BackoffConfig `toml:"backoff" yaml:"backoff" envPrefix:"EDGELINK_BACKOFF_"`
	SecurityMode string        `toml:"security_mode" yaml:"security_mode" env:"EDGELINK_SECURITY_MODE"`
	TLS          TLSConfig     `toml:"tls" yaml:"tls" envPrefix:"EDGELINK_TLS_"`

	// AuthToken is sent in the auth block of every tcp frame.
	AuthToken string `toml:"auth_token" yaml:"auth_token" env:"EDGELINK_AUTH_TOKEN"`

	// MetricsAddr serves /metrics for the client when set.
	MetricsAddr string `toml:"metrics_addr" yaml:"metrics_addr" env:"EDGELINK_METRICS_ADDR"`
}

// PeerConfig describes the echo peer.
type PeerConfig struct {
	Name            string        `toml:"name" yaml:"name" env:"EDGELINK_PEER_NAME"`
	TCPAddr         string        `toml:"tcp_addr" yaml:"tcp_addr" env:"EDGELINK_PEER_TCP_ADDR"`
	HTTPAddr        string        `toml:"http_addr" yaml:"http_addr" env:"EDGELINK_PEER_HTTP_ADDR"`
	CorsOrigins     []string      `toml:"cors_origins" yaml:"cors_origins" env:"EDGELINK_PEER_CORS_ORIGINS" envSeparator:","`
	PushInterval    time.Duration `toml:"push_interval" yaml:"push_interval" env:"EDGELINK_PEER_PUSH_INTERVAL"`
	PushPayloadType uint32        `toml:"push_payload_type" yaml:"push_payload_type" env:"EDGELINK_PEER_PUSH_PAYLOAD_TYPE"`
	// AuthToken, when set, is required on every inbound tcp frame.
	AuthToken string `toml:"auth_token" yaml:"auth_token" env:"EDGELINK_PEER_AUTH_TOKEN"`
	// WSCodec selects the envelope spoken on /ws.
	WSCodec string `toml:"ws_codec" yaml:"ws_codec" env:"EDGELINK_PEER_WS_CODEC"`
}

func DefaultClientConfig() ClientConfig {
	t := transport.DefaultConfig()
	return ClientConfig{
		InstanceID:       "linkctl",
		Transport:        TransportTCP,
		Address:          "127.0.0.1:9400",
		Codec:            "json",
		ConnectTimeout:   t.ConnectTimeout,
		HandshakeTimeout: t.HandshakeTimeout,
		WriteTimeout:     t.WriteTimeout,
		Backoff: BackoffConfig{
			InitialDelay: t.Backoff.InitialDelay,
			Multiplier:   t.Backoff.Multiplier,
			MaxDelay:     t.Backoff.MaxDelay,
			Jitter:       t.Backoff.Jitter,
		},
		SecurityMode: string(t.SecurityMode),
	}
}

func DefaultPeerConfig() PeerConfig {
	return PeerConfig{
		Name:            "echo",
		TCPAddr:         ":9400",
		HTTPAddr:        ":9401",
		CorsOrigins:     []string{"http://localhost:3000"},
		PushInterval:    5 * time.Second,
		PushPayloadType: 50,
		WSCodec:         "json",
	}
}

// LoadClientConfig overlays the file at path (if any) and the environment on
// the defaults, then validates the result.
func LoadClientConfig(path string) (ClientConfig, error) {
	cfg := DefaultClientConfig()
	if err := load(path, &cfg); err != nil {
		return ClientConfig{}, err
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

func LoadPeerConfig(path string) (PeerConfig, error) {
	cfg := DefaultPeerConfig()
	if err := load(path, &cfg); err != nil {
		return PeerConfig{}, err
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return PeerConfig{}, err
	}
	return cfg, nil
}

func load(path string, out any) error {
	if strings.TrimSpace(path) != "" {
		if err := loadFile(path, out); err != nil {
			return err
		}
	}
	return ParseEnv(out)
}

func loadFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		meta, err := toml.Decode(string(data), out)
		if err != nil {
			return fmt.Errorf("config parse failed (%s): %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("config parse failed (%s): unknown key %q", path, undecoded[0].String())
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(out); err != nil {
			return fmt.Errorf("config parse failed (%s): %w", path, err)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
	return nil
}

// ParseEnv applies environment overrides to target. Unset variables leave the
// existing field values alone.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func (c *ClientConfig) normalize() {
	c.InstanceID = strings.TrimSpace(c.InstanceID)
	c.Transport = strings.ToLower(strings.TrimSpace(c.Transport))
	c.Address = strings.TrimSpace(c.Address)
	c.Codec = strings.ToLower(strings.TrimSpace(c.Codec))
	c.SecurityMode = strings.ToLower(strings.TrimSpace(c.SecurityMode))
}

func (c ClientConfig) Validate() error {
	switch c.Transport {
	case TransportTCP, TransportWS:
	default:
		return fmt.Errorf("%w: transport must be %q or %q, got %q", ErrInvalid, TransportTCP, TransportWS, c.Transport)
	}
	if c.Address == "" {
		return fmt.Errorf("%w: address is required", ErrInvalid)
	}
	switch c.Codec {
	case "", "json", "frame", "binary":
	default:
		return fmt.Errorf("%w: unknown codec %q", ErrInvalid, c.Codec)
	}
	if c.Backoff.Multiplier != 0 && c.Backoff.Multiplier < 1 {
		return fmt.Errorf("%w: backoff multiplier must be >= 1", ErrInvalid)
	}
	if err := c.TransportConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// TransportConfig maps the file settings onto the adapter configuration.
func (c ClientConfig) TransportConfig() transport.Config {
	return transport.Config{
		ConnectTimeout:     c.ConnectTimeout,
		HandshakeTimeout:   c.HandshakeTimeout,
		ReadTimeout:        c.ReadTimeout,
		WriteTimeout:       c.WriteTimeout,
		MaxConnectAttempts: c.MaxConnectAttempts,
		Backoff: transport.BackoffConfig{
			InitialDelay: c.Backoff.InitialDelay,
			Multiplier:   c.Backoff.Multiplier,
			MaxDelay:     c.Backoff.MaxDelay,
			Jitter:       c.Backoff.Jitter,
		},
		SecurityMode: transport.SecurityMode(c.SecurityMode),
		TLS: transport.TLSConfig{
			Enabled:            c.TLS.Enabled,
			Mutual:             c.TLS.Mutual,
			InsecureSkipVerify: c.TLS.InsecureSkipVerify,
			ServerName:         c.TLS.ServerName,
			CAFile:             c.TLS.CAFile,
			CertFile:           c.TLS.CertFile,
			KeyFile:            c.TLS.KeyFile,
		},
		AuthToken: c.AuthToken,
	}
}

func (c *PeerConfig) normalize() {
	c.Name = strings.TrimSpace(c.Name)
	c.TCPAddr = strings.TrimSpace(c.TCPAddr)
	c.HTTPAddr = strings.TrimSpace(c.HTTPAddr)
	c.WSCodec = strings.ToLower(strings.TrimSpace(c.WSCodec))
	origins := make([]string, 0, len(c.CorsOrigins))
	for _, o := range c.CorsOrigins {
		if v := strings.TrimSpace(o); v != "" {
			origins = append(origins, v)
		}
	}
	c.CorsOrigins = origins
}

func (c PeerConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: peer name is required", ErrInvalid)
	}
	if c.TCPAddr == "" && c.HTTPAddr == "" {
		return fmt.Errorf("%w: peer needs tcp_addr or http_addr", ErrInvalid)
	}
	if c.PushInterval < 0 {
		return fmt.Errorf("%w: push_interval must not be negative", ErrInvalid)
	}
	switch c.WSCodec {
	case "", "json", "frame", "binary":
	default:
		return fmt.Errorf("%w: unknown ws_codec %q", ErrInvalid, c.WSCodec)
	}
	return nil
}
