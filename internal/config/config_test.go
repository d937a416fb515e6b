package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 500*time.Millisecond, cfg.DispatchInterval())
	assert.Equal(t, 5*time.Second, cfg.Bridge.Timeout())
	assert.True(t, cfg.Bridge.Insecure())
	assert.Equal(t, "hue", cfg.MQTT.TopicPrefix)
	assert.True(t, strings.HasPrefix(cfg.MQTT.ClientID, "hue-controller-"))
	assert.Len(t, cfg.MQTT.ClientID, len("hue-controller-")+8)
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "config.json", `{
		"bridge": {"ip": " 192.168.1.225 ", "app_key": "key", "light_id": "1", "insecure_tls": false},
		"dispatcher": {"interval": "250ms"},
		"mqtt": {"topic_prefix": "/lights/desk/", "client_id": "desk"}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.225", cfg.Bridge.IP)
	assert.Equal(t, "1", cfg.Bridge.LightID)
	assert.False(t, cfg.Bridge.Insecure())
	assert.Equal(t, 250*time.Millisecond, cfg.DispatchInterval())
	assert.Equal(t, "lights/desk", cfg.MQTT.TopicPrefix)
	assert.Equal(t, "desk", cfg.MQTT.ClientID)
	assert.Equal(t, 10.0, cfg.Bridge.RateLimit)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
bridge:
  ip: 10.0.0.2
  app_key: secret
  rate_limit: 4
dispatcher:
  interval: 1s
log_level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2", cfg.Bridge.IP)
	assert.Equal(t, 4.0, cfg.Bridge.RateLimit)
	assert.Equal(t, time.Second, cfg.DispatchInterval())
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadAppKeyFromEnv(t *testing.T) {
	t.Setenv("HUE_APP_KEY", "from-env")
	path := writeFile(t, "config.json", `{"bridge": {"ip": "10.0.0.2"}}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Bridge.AppKey)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errPart string
	}{
		{"missing ip", `{"bridge": {"app_key": "k"}}`, "bridge.ip"},
		{"missing key", `{"bridge": {"ip": "1.2.3.4"}}`, "bridge.app_key"},
		{"bad interval", `{"bridge": {"ip": "1.2.3.4", "app_key": "k"}, "dispatcher": {"interval": "soon"}}`, "dispatcher.interval"},
		{"zero interval", `{"bridge": {"ip": "1.2.3.4", "app_key": "k"}, "dispatcher": {"interval": "0s"}}`, "dispatcher.interval"},
		{"negative rate", `{"bridge": {"ip": "1.2.3.4", "app_key": "k", "rate_limit": -1}}`, "rate_limit"},
		{"bad json", `{"bridge": `, "decode json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("HUE_APP_KEY", "")
			_, err := Load(writeFile(t, "config.json", tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errPart)
		})
	}
}
