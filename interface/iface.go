package iface

// Detector runs a model over one image. Implementations need not be safe for
// concurrent use; the service gives each worker its own instance.
type Detector interface {
	Detect(img RawImage, opts Options) ([]RawBox, error)
	// Names is the detector's index->name convention, nil when unknown.
	Names() []string
	Close() error
}

// Factory builds a fresh detector for one worker.
type Factory func() (Detector, error)
