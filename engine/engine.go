package engine

import (
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	iface "NutBoltDetServer/interface"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

const UNREGISTERED = 0x0001
const REGISTERED = 0x0002
const IDLE = 0x0003
const BUSY = 0x0004

var (
	ErrNotLoaded = errors.New("model not loaded")
	ErrBusy      = errors.New("detector is busy")
)

// Detector runs a YOLOv8 ONNX export through OpenCV's DNN module. One
// instance serves one goroutine at a time.
type Detector struct {
	ModelPath string
	names     []string
	net       gocv.Net
	mu        sync.Mutex
	State     int
	log       *zap.Logger
}

func New(log *zap.Logger) *Detector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Detector{State: UNREGISTERED, log: log}
}

// LoadModel reads the network and, when namesFile is set, the model's own
// class list.
func (d *Detector) LoadModel(modelPath, namesFile string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := os.Stat(modelPath); err != nil {
		return fmt.Errorf("model file not found: %s: %w", modelPath, err)
	}
	if namesFile != "" {
		names, err := ReadLinesReadFile(namesFile)
		if err != nil {
			return fmt.Errorf("read class names: %w", err)
		}
		d.names = names
	}
	net := gocv.ReadNetFromONNX(modelPath)
	if net.Empty() {
		return fmt.Errorf("failed to load network from %s", modelPath)
	}
	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		_ = net.Close()
		return fmt.Errorf("set backend: %w", err)
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		_ = net.Close()
		return fmt.Errorf("set target: %w", err)
	}
	d.net = net
	d.ModelPath = modelPath
	d.State = IDLE
	d.log.Info("model loaded", zap.String("path", modelPath), zap.Strings("names", d.names))
	return nil
}

func (d *Detector) Names() []string {
	return d.names
}

func (d *Detector) Detect(img iface.RawImage, opts iface.Options) ([]iface.RawBox, error) {
	d.mu.Lock()
	switch d.State {
	case UNREGISTERED, REGISTERED:
		d.mu.Unlock()
		return nil, ErrNotLoaded
	case BUSY:
		d.mu.Unlock()
		return nil, ErrBusy
	}
	d.State = BUSY
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.State = IDLE
		d.mu.Unlock()
	}()

	if img.Empty() {
		return nil, errors.New("empty image")
	}
	if opts.InputSize <= 0 {
		return nil, fmt.Errorf("invalid input size %d", opts.InputSize)
	}

	mat, err := gocv.NewMatFromBytes(img.Height, img.Width, gocv.MatTypeCV8UC3, img.Data)
	if err != nil {
		return nil, fmt.Errorf("wrap image: %w", err)
	}
	defer mat.Close()

	// letterbox into the top-left corner of a square canvas
	maxDim := max(img.Width, img.Height)
	square := gocv.NewMatWithSize(maxDim, maxDim, gocv.MatTypeCV8UC3)
	defer square.Close()
	roi := square.Region(image.Rect(0, 0, img.Width, img.Height))
	mat.CopyTo(&roi)
	_ = roi.Close()
	scale := float64(maxDim) / float64(opts.InputSize)

	blob := gocv.BlobFromImage(square, 1.0/255.0, image.Pt(opts.InputSize, opts.InputSize), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()
	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	defer out.Close()

	dims := out.Size()
	if len(dims) != 3 {
		return nil, fmt.Errorf("unexpected output shape %v", dims)
	}
	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}
	cands, err := DecodeYOLOv8(data, dims[1], dims[2], opts.Confidence, scale, img.Width, img.Height)
	if err != nil {
		return nil, err
	}
	if len(cands) == 0 {
		return []iface.RawBox{}, nil
	}

	rects, scores := nmsInputs(cands)
	keep := gocv.NMSBoxes(rects, scores, float32(opts.Confidence), float32(opts.Iou))
	boxes := make([]iface.RawBox, 0, len(keep))
	for _, k := range keep {
		c := cands[k]
		b := iface.RawBox{
			X1: c.X1, Y1: c.Y1, X2: c.X2, Y2: c.Y2,
			Confidence: c.Score,
			ClassID:    c.ClassID,
		}
		if c.ClassID < len(d.names) {
			b.Label = d.names[c.ClassID]
		}
		boxes = append(boxes, b)
	}
	return boxes, nil
}

// Warmup runs count inferences on a black frame so the first request does
// not pay for lazy initialisation.
func (d *Detector) Warmup(count, inputSize int) {
	blank := iface.RawImage{Width: inputSize, Height: inputSize, Data: make([]byte, inputSize*inputSize*3)}
	opts := iface.Options{Confidence: 0.5, Iou: 0.45, InputSize: inputSize}
	for i := 0; i < count; i++ {
		func() {
			defer func() {
				if r := recover(); r != nil {
					d.log.Warn("panic during warmup detect", zap.Any("panic", r))
				}
			}()
			if _, err := d.Detect(blank, opts); err != nil {
				d.log.Warn("warmup detect failed", zap.Error(err))
			}
		}()
	}
}

func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var err error
	if d.State != UNREGISTERED {
		err = d.net.Close()
	}
	d.ModelPath = ""
	d.names = nil
	d.State = UNREGISTERED
	return err
}

// Factory builds independently loaded detectors for the worker pool.
func Factory(modelPath, namesFile string, warmup, inputSize int, log *zap.Logger) iface.Factory {
	return func() (iface.Detector, error) {
		d := New(log)
		if err := d.LoadModel(modelPath, namesFile); err != nil {
			return nil, err
		}
		if warmup > 0 {
			d.Warmup(warmup, inputSize)
		}
		return d, nil
	}
}
