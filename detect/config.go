package detect

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	iface "NutBoltDetServer/interface"
)

const (
	DefaultConfidence  = 0.5
	DefaultIou         = 0.45
	DefaultInputSize   = 640
	DefaultMinBoxSize  = 5.0
	DefaultMaxBoxSize  = 2000.0
	DefaultMaxBoxRatio = 1.0
)

var ErrInvalidConfig = errors.New("invalid detection config")

// Config is one immutable snapshot of the detection settings. Callers get
// copies; slices and maps are cloned on the way out of the Store.
type Config struct {
	ConfidenceThreshold float64        `yaml:"confidenceThreshold" json:"confidence_threshold"`
	IouThreshold        float64        `yaml:"iouThreshold" json:"iou_threshold"`
	InputSize           int            `yaml:"inputSize" json:"input_size"`
	MinBoxSize          float64        `yaml:"minBoxSize" json:"min_box_size"`
	MaxBoxSize          float64        `yaml:"maxBoxSize" json:"max_box_size"`
	MaxBoxRatio         float64        `yaml:"maxBoxRatio" json:"max_box_ratio"`
	ClassNames          []string       `yaml:"classNames" json:"class_names"`
	ClassColors         map[string]RGB `yaml:"classColors" json:"class_colors"`
}

func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: DefaultConfidence,
		IouThreshold:        DefaultIou,
		InputSize:           DefaultInputSize,
		MinBoxSize:          DefaultMinBoxSize,
		MaxBoxSize:          DefaultMaxBoxSize,
		MaxBoxRatio:         DefaultMaxBoxRatio,
		ClassNames:          slices.Clone(DefaultClassNames),
		ClassColors:         maps.Clone(DefaultClassColors),
	}
}

// Options is the slice of the config the detector itself consumes.
func (c Config) Options() iface.Options {
	return iface.Options{
		Confidence: c.ConfidenceThreshold,
		Iou:        c.IouThreshold,
		InputSize:  c.InputSize,
	}
}

func (c Config) Validate() error {
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("%w: confidence_threshold %v outside [0,1]", ErrInvalidConfig, c.ConfidenceThreshold)
	}
	if c.IouThreshold < 0 || c.IouThreshold > 1 {
		return fmt.Errorf("%w: iou_threshold %v outside [0,1]", ErrInvalidConfig, c.IouThreshold)
	}
	if c.InputSize <= 0 {
		return fmt.Errorf("%w: input_size must be positive, got %d", ErrInvalidConfig, c.InputSize)
	}
	if c.MinBoxSize < 0 || c.MaxBoxSize < 0 {
		return fmt.Errorf("%w: box size limits must be non-negative", ErrInvalidConfig)
	}
	if c.MaxBoxRatio < 0 || c.MaxBoxRatio > 1 {
		return fmt.Errorf("%w: max_box_ratio %v outside [0,1]", ErrInvalidConfig, c.MaxBoxRatio)
	}
	if len(c.ClassNames) == 0 {
		return fmt.Errorf("%w: class_names is empty", ErrInvalidConfig)
	}
	return nil
}

func (c Config) clone() Config {
	c.ClassNames = slices.Clone(c.ClassNames)
	c.ClassColors = maps.Clone(c.ClassColors)
	return c
}

// Store holds the process-wide config. Reads are lock-free loads of the
// current snapshot; writes build a new snapshot under mu and swap it in.
type Store struct {
	mu  sync.Mutex
	cur atomic.Pointer[Config]
}

func NewStore(initial Config) (*Store, error) {
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	s := &Store{}
	c := initial.clone()
	s.cur.Store(&c)
	return s, nil
}

func (s *Store) Snapshot() Config {
	return s.cur.Load().clone()
}

// Apply updates the recognised keys in values and ignores the rest. Either
// every recognised key is applied or none is.
func (s *Store) Apply(values map[string]any) (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cur.Load().clone()
	for key, raw := range values {
		switch key {
		case "confidence_threshold":
			v, err := toFloat(key, raw)
			if err != nil {
				return Config{}, err
			}
			next.ConfidenceThreshold = v
		case "iou_threshold":
			v, err := toFloat(key, raw)
			if err != nil {
				return Config{}, err
			}
			next.IouThreshold = v
		case "max_box_ratio":
			v, err := toFloat(key, raw)
			if err != nil {
				return Config{}, err
			}
			next.MaxBoxRatio = v
		case "min_box_size":
			v, err := toFloat(key, raw)
			if err != nil {
				return Config{}, err
			}
			next.MinBoxSize = v
		case "max_box_size":
			v, err := toFloat(key, raw)
			if err != nil {
				return Config{}, err
			}
			next.MaxBoxSize = v
		case "input_size":
			v, err := toFloat(key, raw)
			if err != nil {
				return Config{}, err
			}
			if v != float64(int(v)) {
				return Config{}, fmt.Errorf("%w: input_size must be an integer, got %v", ErrInvalidConfig, v)
			}
			next.InputSize = int(v)
		}
	}
	if err := next.Validate(); err != nil {
		return Config{}, err
	}
	s.cur.Store(&next)
	return next.clone(), nil
}

func toFloat(key string, raw any) (float64, error) {
	f, err := coerceFloat(key, raw)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %s must be finite", ErrInvalidConfig, key)
	}
	return f, nil
}

func coerceFloat(key string, raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case interface{ Float64() (float64, error) }:
		f, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err)
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %q is not a number", ErrInvalidConfig, key, v)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: %s: unsupported type %T", ErrInvalidConfig, key, raw)
	}
}
