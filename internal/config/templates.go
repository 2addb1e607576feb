package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "client":
		return clientTemplate, nil
	case "peer", "echo":
		return peerTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const clientTemplate = `instance_id = "linkctl"
transport = "tcp"
address = "127.0.0.1:9400"
codec = "json"
payload_types_not_awaiting_response = []
connect_timeout = "5s"
write_timeout = "15s"
max_connect_attempts = 0
security_mode = "development"
metrics_addr = ""

[backoff]
initial_delay = "250ms"
multiplier = 2.0
max_delay = "5s"
jitter = true

[tls]
enabled = false
`

const peerTemplate = `name = "echo"
tcp_addr = ":9400"
http_addr = ":9401"
cors_origins = ["http://localhost:3000"]
push_interval = "5s"
push_payload_type = 50
ws_codec = "json"
`
