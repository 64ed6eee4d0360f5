package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultMatchesDocumentedValues(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "0.0.0.0:5647", cfg.ServerBindAddr)
	assert.Equal(t, "192.168.0.0/24", cfg.ClientNetwork.String())
	assert.Equal(t, 5647, cfg.ClientPort)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 1, cfg.CaptureCount)
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "compoundpi.ini")
	assert.Nil(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadOverridesOnlyPresentKeys(t *testing.T) {
	path := writeConfig(t, `[compoundpi]
server_bind = 127.0.0.1:6000
capture_count = 3
video_port = true
`)
	cfg, err := Load(path)
	assert.Nil(t, err)
	assert.Equal(t, "127.0.0.1:6000", cfg.ServerBindAddr)
	assert.Equal(t, 3, cfg.CaptureCount)
	assert.True(t, cfg.VideoPort)
	assert.Equal(t, Default().RequestTimeout, cfg.RequestTimeout)
}

func TestLoadParsesFractionalSeconds(t *testing.T) {
	path := writeConfig(t, `[compoundpi]
request_timeout = 2.5
retry_interval = 0.2
time_delta_warning = 0.25
`)
	cfg, err := Load(path)
	assert.Nil(t, err)
	assert.Equal(t, 2500*time.Millisecond, cfg.RequestTimeout)
	assert.Equal(t, 200*time.Millisecond, cfg.RetryInterval)
	assert.Equal(t, 250*time.Millisecond, cfg.TimeDeltaWarning)
}

func TestLoadRejectsBadNetwork(t *testing.T) {
	path := writeConfig(t, `[compoundpi]
client_network = not-a-cidr
`)
	_, err := Load(path)
	assert.NotNil(t, err)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.ini"))
	assert.NotNil(t, err)
}
