package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
logger:
  development: true
  level: debug
http:
  port: 8080
  wsIdleTimeout: 30s
RPCPort: 6000
engine:
  backend: opencv
  modelPath: models/nutbolt.onnx
  workersNum: 2
detection:
  confidenceThreshold: 0.6
  classNames: [Bolt, Nut]
regServer:
  addr: registry.local
  port: 9000
  interval: 10s
history:
  enabled: true
  path: /tmp/h.db
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFile(t *testing.T) {
	cfg, err := Load(writeFile(t, "config.yaml", sampleYAML))
	require.NoError(t, err)

	assert.True(t, cfg.Logger.Development)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 30*time.Second, cfg.HTTP.WSIdleTimeout)
	assert.Equal(t, 20, cfg.HTTP.MaxBodyMB, "unset keys keep defaults")
	assert.Equal(t, 6000, cfg.RPCPort)
	assert.Equal(t, 9100, cfg.MetricsPort)
	assert.Equal(t, "models/nutbolt.onnx", cfg.Engine.ModelPath)
	assert.Equal(t, 2, cfg.Engine.WorkersNum)
	assert.Equal(t, 3, cfg.Engine.Warmup)
	assert.Equal(t, 0.6, cfg.Detection.ConfidenceThreshold)
	assert.Equal(t, 0.45, cfg.Detection.IouThreshold)
	assert.Equal(t, "registry.local", cfg.RegServer.Addr)
	assert.Equal(t, 10*time.Second, cfg.RegServer.Interval)
	assert.True(t, cfg.History.Enabled)
	assert.NotEmpty(t, cfg.File)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Empty(t, cfg.File)
	assert.Equal(t, 5000, cfg.HTTP.Port)
	assert.Equal(t, BackendOpenCV, cfg.Engine.Backend)
	assert.Equal(t, []string{"Bolt", "Nut"}, cfg.Detection.ClassNames)
}

func TestLoadInvalid(t *testing.T) {
	_, err := Load(writeFile(t, "bad.yaml", "http: [unclosed"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bad.yaml", "engine:\n  backend: tensorrt\n"))
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = Load(writeFile(t, "bad.yaml", "engine:\n  backend: remote\n"))
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = Load(writeFile(t, "bad.yaml", "detection:\n  iouThreshold: 2\n"))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"NUTBOLT_BACKEND":      "remote",
		"NUTBOLT_REMOTE_URL":   "http://sidecar:8000",
		"NUTBOLT_HTTP_PORT":    "5050",
		"NUTBOLT_WORKERS":      "4",
		"NUTBOLT_CONFIDENCE":   "0.35",
		"NUTBOLT_CLASS_NAMES":  "Nut, Bolt",
		"NUTBOLT_HISTORY_PATH": "/var/lib/nutbolt.db",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, applyEnv(&cfg, lookup))
	require.NoError(t, cfg.Validate())
	assert.Equal(t, BackendRemote, cfg.Engine.Backend)
	assert.Equal(t, "http://sidecar:8000", cfg.Remote.URL)
	assert.Equal(t, 5050, cfg.HTTP.Port)
	assert.Equal(t, 4, cfg.Engine.WorkersNum)
	assert.Equal(t, 0.35, cfg.Detection.ConfidenceThreshold)
	assert.Equal(t, []string{"Nut", "Bolt"}, cfg.Detection.ClassNames)
	assert.True(t, cfg.History.Enabled)
	assert.Equal(t, "/var/lib/nutbolt.db", cfg.History.Path)

	env = map[string]string{"NUTBOLT_GRPC_PORT": "fifty"}
	cfg = Default()
	assert.ErrorIs(t, applyEnv(&cfg, lookup), ErrInvalid)
}

func TestLoadDotEnv(t *testing.T) {
	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))

	const key = "NUTBOLT_DOTENV_TEST_VALUE"
	t.Cleanup(func() { os.Unsetenv(key) })
	require.NoError(t, LoadDotEnv(writeFile(t, ".env", key+"=from-dotenv\n")))
	assert.Equal(t, "from-dotenv", os.Getenv(key))
}

func TestDetectorFactory(t *testing.T) {
	cfg := Default()
	cfg.Engine.Backend = BackendRemote
	cfg.Remote.URL = "http://sidecar:8000"
	factory, class, err := cfg.DetectorFactory(nil)
	require.NoError(t, err)
	assert.Equal(t, 0x2005, class)
	det, err := factory()
	require.NoError(t, err)
	assert.NoError(t, det.Close())
	assert.Equal(t, "http://sidecar:8000", cfg.ModelPath())

	cfg.Engine.Backend = "tflite"
	_, _, err = cfg.DetectorFactory(nil)
	assert.ErrorIs(t, err, ErrInvalid)
}
