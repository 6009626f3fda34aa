package config

import (
	"fmt"

	"NutBoltDetServer/Adhoc"
	"NutBoltDetServer/engine"
	iface "NutBoltDetServer/interface"
	"NutBoltDetServer/remote"

	"go.uber.org/zap"
)

// DetectorFactory returns the factory for the configured backend and the
// instance class announced to the registration server.
func (c Config) DetectorFactory(log *zap.Logger) (iface.Factory, int, error) {
	switch c.Engine.Backend {
	case BackendOpenCV:
		return engine.Factory(c.Engine.ModelPath, c.Engine.NamesFile, c.Engine.Warmup, c.Detection.InputSize, log), Adhoc.CpuInstance, nil
	case BackendRemote:
		remoteCfg := c.Remote
		return func() (iface.Detector, error) {
			return remote.New(remoteCfg)
		}, Adhoc.RemoteInstance, nil
	default:
		return nil, 0, fmt.Errorf("%w: unknown engine.backend %q", ErrInvalid, c.Engine.Backend)
	}
}

// ModelPath is the path reported by /health for the configured backend.
func (c Config) ModelPath() string {
	if c.Engine.Backend == BackendRemote {
		return c.Remote.URL
	}
	return c.Engine.ModelPath
}
