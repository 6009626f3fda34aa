package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"NutBoltDetServer/Adhoc"
	"NutBoltDetServer/api"
	"NutBoltDetServer/detect"
	"NutBoltDetServer/logger"
	"NutBoltDetServer/remote"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	BackendOpenCV = "opencv"
	BackendRemote = "remote"

	EnvPrefix = "NUTBOLT_"
)

var ErrInvalid = errors.New("invalid server config")

type EngineConfig struct {
	Backend    string `yaml:"backend"`
	ModelPath  string `yaml:"modelPath"`
	NamesFile  string `yaml:"namesFile"`
	WorkersNum int    `yaml:"workersNum"`
	Warmup     int    `yaml:"warmup"`
}

type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type Config struct {
	Logger      logger.Config         `yaml:"logger"`
	HTTP        api.Config            `yaml:"http"`
	RPCPort     int                   `yaml:"RPCPort"`
	MetricsPort int                   `yaml:"metricsPort"`
	Engine      EngineConfig          `yaml:"engine"`
	Remote      remote.Config         `yaml:"remote"`
	Detection   detect.Config         `yaml:"detection"`
	RegServer   Adhoc.RegServerConfig `yaml:"regServer"`
	History     HistoryConfig         `yaml:"history"`

	// File is the config file that was read, empty when defaults were used.
	File string `yaml:"-"`
}

func Default() Config {
	return Config{
		Logger:      logger.Config{Level: "info"},
		HTTP:        api.DefaultConfig(),
		RPCPort:     50051,
		MetricsPort: 9100,
		Engine: EngineConfig{
			Backend:    BackendOpenCV,
			ModelPath:  "models/best.onnx",
			WorkersNum: 1,
			Warmup:     3,
		},
		Remote:    remote.Config{Timeout: remote.DefaultTimeout},
		Detection: detect.DefaultConfig(),
		History:   HistoryConfig{Path: "history.db"},
	}
}

// LoadDotEnv loads path (".env" when empty) into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads the yaml file at path over the defaults, then applies
// NUTBOLT_* environment overrides. A missing file leaves the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config file %s: %w", path, err)
			}
			cfg.File = path
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	for name, port := range map[string]int{"http.port": c.HTTP.Port, "RPCPort": c.RPCPort, "metricsPort": c.MetricsPort} {
		if port < 0 || port > 65535 {
			return fmt.Errorf("%w: %s %d out of range", ErrInvalid, name, port)
		}
	}
	switch c.Engine.Backend {
	case BackendOpenCV:
		if c.Engine.ModelPath == "" {
			return fmt.Errorf("%w: engine.modelPath is empty", ErrInvalid)
		}
	case BackendRemote:
		if c.Remote.URL == "" {
			return fmt.Errorf("%w: remote.url is required for the remote backend", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown engine.backend %q", ErrInvalid, c.Engine.Backend)
	}
	if c.Engine.WorkersNum <= 0 {
		c.Engine.WorkersNum = 1
	}
	if c.History.Enabled && c.History.Path == "" {
		return fmt.Errorf("%w: history.path is empty", ErrInvalid)
	}
	if err := c.Detection.Validate(); err != nil {
		return fmt.Errorf("%w: detection: %v", ErrInvalid, err)
	}
	return nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) error {
		v, ok := lookup(EnvPrefix + key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s%s=%q is not an integer", ErrInvalid, EnvPrefix, key, v)
		}
		*dst = n
		return nil
	}
	float := func(key string, dst *float64) error {
		v, ok := lookup(EnvPrefix + key)
		if !ok || v == "" {
			return nil
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("%w: %s%s=%q is not a number", ErrInvalid, EnvPrefix, key, v)
		}
		*dst = f
		return nil
	}

	str("LOG_LEVEL", &cfg.Logger.Level)
	str("BACKEND", &cfg.Engine.Backend)
	str("MODEL_PATH", &cfg.Engine.ModelPath)
	str("NAMES_FILE", &cfg.Engine.NamesFile)
	str("REMOTE_URL", &cfg.Remote.URL)
	str("REGSERVER_ADDR", &cfg.RegServer.Addr)
	if v, ok := lookup(EnvPrefix + "HISTORY_PATH"); ok && v != "" {
		cfg.History.Enabled = true
		cfg.History.Path = v
	}
	if v, ok := lookup(EnvPrefix + "CLASS_NAMES"); ok && v != "" {
		names := strings.Split(v, ",")
		for i := range names {
			names[i] = strings.TrimSpace(names[i])
		}
		cfg.Detection.ClassNames = names
	}

	for _, err := range []error{
		integer("HTTP_PORT", &cfg.HTTP.Port),
		integer("GRPC_PORT", &cfg.RPCPort),
		integer("METRICS_PORT", &cfg.MetricsPort),
		integer("WORKERS", &cfg.Engine.WorkersNum),
		integer("INPUT_SIZE", &cfg.Detection.InputSize),
		float("CONFIDENCE", &cfg.Detection.ConfidenceThreshold),
		float("IOU", &cfg.Detection.IouThreshold),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}
