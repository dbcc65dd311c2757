package mqttcore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigDefaults(t *testing.T) {
	config, err := ParseConfig([]byte("{}"))
	require.NoError(t, err)

	assert.Equal(t, ":1883", config.Listen.TCP)
	assert.Equal(t, byte(2), config.MaxQoS)
	assert.Equal(t, time.Hour, config.SessionExpiry)
	assert.Equal(t, LogLevelInfo, config.LogLevelValue())
}

func TestParseConfigOverrides(t *testing.T) {
	raw := []byte(`
listen:
  tcp: ":8883"
  ws: ":8080"
max_packet_size: 1048576
max_connections: 500
max_qos: 1
session_expiry: 30m
connect_timeout: 5s
log:
  level: debug
`)

	config, err := ParseConfig(raw)
	require.NoError(t, err)

	assert.Equal(t, ":8883", config.Listen.TCP)
	assert.Equal(t, ":8080", config.Listen.WS)
	assert.Equal(t, uint32(1048576), config.MaxPacketSize)
	assert.Equal(t, 500, config.MaxConnections)
	assert.Equal(t, byte(1), config.MaxQoS)
	assert.Equal(t, 30*time.Minute, config.SessionExpiry)
	assert.Equal(t, 5*time.Second, config.ConnectTimeout)
	assert.Equal(t, LogLevelDebug, config.LogLevelValue())
}

func TestParseConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "no listeners", raw: "listen:\n  tcp: \"\"\n"},
		{name: "bad qos", raw: "max_qos: 3\n"},
		{name: "tls cert without key", raw: "listen:\n  tls_cert: cert.pem\n"},
		{name: "unknown log level", raw: "log:\n  level: verbose\n"},
		{name: "not yaml", raw: ":\t::"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.raw))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broker.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen:\n  tcp: \":2883\"\n"), 0o600))

	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":2883", config.Listen.TCP)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestConfigServerOptions(t *testing.T) {
	config := DefaultConfig()
	config.MaxPacketSize = 2048
	config.MaxConnections = 10

	opts := config.ServerOptions(NewNoOpLogger())
	assert.NotEmpty(t, opts)

	// Applying the options must not panic and must land in the config.
	sc := defaultServerConfig()
	for _, opt := range opts {
		opt(sc)
	}
	assert.Equal(t, uint32(2048), sc.maxPacketSize)
	assert.Equal(t, 10, sc.maxConnections)
}
