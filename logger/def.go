// Package logger holds the process-wide zap logger. Init installs it once
// at startup; every other package reads it through Log, Named or S.
package logger

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logMu sync.RWMutex
	log   *zap.Logger
	sugar *zap.SugaredLogger
)

// Config selects the encoder flavour and minimum level.
type Config struct {
	Development bool   `yaml:"development"`
	Level       string `yaml:"level"`
}

// Init builds a logger from cfg and installs it as the package and zap global.
func Init(cfg Config) error {
	var zc zap.Config
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.EncoderConfig.TimeKey = "timestamp"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if cfg.Level != "" {
		lvl, err := zapcore.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return err
		}
		zc.Level = zap.NewAtomicLevelAt(lvl)
	}
	l, err := zc.Build()
	if err != nil {
		return err
	}
	setLogger(l)
	return nil
}

// InitProduction installs a JSON logger at info level.
func InitProduction() error {
	return Init(Config{})
}

// InitDevelopment installs a console logger at debug level.
func InitDevelopment() error {
	return Init(Config{Development: true})
}

// setLogger swaps in l, flushing the previous logger first.
func setLogger(l *zap.Logger) {
	logMu.Lock()
	defer logMu.Unlock()
	// zap.L() and zap.S() then return the same instance.
	zap.ReplaceGlobals(l)
	if log != nil {
		_ = log.Sync()
	}
	log = l
	sugar = l.Sugar()
}

// Log never returns nil; before Init it falls back to zap's global.
func Log() *zap.Logger {
	logMu.RLock()
	defer logMu.RUnlock()
	if log != nil {
		return log
	}
	return zap.L()
}

// Named returns a child of Log() scoped to a component.
func Named(component string) *zap.Logger {
	return Log().Named(component)
}

// S is the sugared form of Log, for printf-style call sites.
func S() *zap.SugaredLogger {
	logMu.RLock()
	defer logMu.RUnlock()
	if sugar != nil {
		return sugar
	}
	return zap.S()
}

// Sync flushes buffered entries; main defers it.
func Sync() {
	logMu.RLock()
	defer logMu.RUnlock()
	if log != nil {
		_ = log.Sync()
	}
}
