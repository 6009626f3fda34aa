package probe

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"math/rand/v2"
	"os"
	"strings"
	"time"

	"NutBoltDetServer/detect"
	"NutBoltDetServer/ingest"
	iface "NutBoltDetServer/interface"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

// DefaultSweep is the confidence ladder run against the noise image.
var DefaultSweep = []float64{0.25, 0.45, 0.6, 0.7, 0.8}

const (
	DefaultSize       = 640
	DefaultConfidence = 0.6
	DefaultRuns       = 10
)

type Image struct {
	Name string
	Raw  iface.RawImage
}

// SyntheticImages returns images that contain no nuts or bolts: black,
// white, seeded uniform noise and a horizontal gray gradient where column
// x has value x/3.
func SyntheticImages(size int, seed uint64) []Image {
	black := imaging.New(size, size, color.NRGBA{A: 255})
	white := imaging.New(size, size, color.NRGBA{R: 255, G: 255, B: 255, A: 255})

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	noise := image.NewNRGBA(image.Rect(0, 0, size, size))
	for i := 0; i < len(noise.Pix); i += 4 {
		noise.Pix[i] = uint8(rng.IntN(255))
		noise.Pix[i+1] = uint8(rng.IntN(255))
		noise.Pix[i+2] = uint8(rng.IntN(255))
		noise.Pix[i+3] = 255
	}

	gradient := image.NewNRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			v := uint8(min(x/3, 255))
			gradient.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}

	return []Image{
		{Name: "black", Raw: ingest.FromImage(black)},
		{Name: "white", Raw: ingest.FromImage(white)},
		{Name: "noise", Raw: ingest.FromImage(noise)},
		{Name: "gradient", Raw: ingest.FromImage(gradient)},
	}
}

type Finding struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
}

type ImageResult struct {
	Image         string    `json:"image"`
	Detections    int       `json:"detections"`
	Findings      []Finding `json:"findings"`
	FalsePositive bool      `json:"false_positive"`
}

type SweepPoint struct {
	Confidence    float64 `json:"confidence"`
	Detections    int     `json:"detections"`
	FalsePositive bool    `json:"false_positive"`
}

type Latency struct {
	Runs  int     `json:"runs"`
	AvgMs float64 `json:"avg_ms"`
	FPS   float64 `json:"fps"`
}

type ModelInfo struct {
	Path       string   `json:"path,omitempty"`
	SizeMB     float64  `json:"size_mb,omitempty"`
	Classes    []string `json:"classes"`
	ClassesOK  bool     `json:"classes_ok"`
	Unexpected []string `json:"unexpected,omitempty"`
}

type Report struct {
	Confidence     float64       `json:"confidence"`
	FalsePositives []ImageResult `json:"false_positives"`
	Sweep          []SweepPoint  `json:"sweep"`
	Latency        Latency       `json:"latency"`
	Model          ModelInfo     `json:"model"`
	Clean          bool          `json:"clean"`
}

type Prober struct {
	det  iface.Detector
	opts iface.Options
	log  *zap.Logger
}

// New probes det with base options; only the confidence changes between
// runs.
func New(det iface.Detector, base iface.Options, log *zap.Logger) *Prober {
	if log == nil {
		log = zap.NewNop()
	}
	return &Prober{det: det, opts: base, log: log}
}

func (p *Prober) detect(img iface.RawImage, conf float64) ([]iface.RawBox, error) {
	opts := p.opts
	opts.Confidence = conf
	return p.det.Detect(img, opts)
}

// FalsePositives runs every image at conf. Any detection on these images
// is a false positive.
func (p *Prober) FalsePositives(images []Image, conf float64) ([]ImageResult, error) {
	names := p.det.Names()
	results := make([]ImageResult, 0, len(images))
	for _, img := range images {
		boxes, err := p.detect(img.Raw, conf)
		if err != nil {
			return nil, fmt.Errorf("probe %s: %w", img.Name, err)
		}
		res := ImageResult{Image: img.Name, Detections: len(boxes), Findings: make([]Finding, 0, len(boxes))}
		for _, b := range boxes {
			res.Findings = append(res.Findings, Finding{
				Class:      detect.ClassName(names, b.ClassID, b.Label),
				Confidence: detect.Round(b.Confidence, 2),
			})
		}
		res.FalsePositive = len(boxes) > 0
		if res.FalsePositive {
			p.log.Warn("false positives on synthetic image", zap.String("image", img.Name), zap.Int("detections", len(boxes)))
		}
		results = append(results, res)
	}
	return results, nil
}

func (p *Prober) Sweep(img iface.RawImage, confs []float64) ([]SweepPoint, error) {
	points := make([]SweepPoint, 0, len(confs))
	for _, conf := range confs {
		boxes, err := p.detect(img, conf)
		if err != nil {
			return nil, fmt.Errorf("sweep conf=%v: %w", conf, err)
		}
		points = append(points, SweepPoint{Confidence: conf, Detections: len(boxes), FalsePositive: len(boxes) > 0})
	}
	return points, nil
}

// Benchmark times runs detections after one untimed warm-up run.
func (p *Prober) Benchmark(img iface.RawImage, runs int) (Latency, error) {
	if runs <= 0 {
		return Latency{}, errors.New("runs must be positive")
	}
	if _, err := p.detect(img, p.opts.Confidence); err != nil {
		return Latency{}, fmt.Errorf("warm-up: %w", err)
	}
	start := time.Now()
	for i := 0; i < runs; i++ {
		if _, err := p.detect(img, p.opts.Confidence); err != nil {
			return Latency{}, fmt.Errorf("run %d: %w", i, err)
		}
	}
	avg := float64(time.Since(start).Microseconds()) / 1000 / float64(runs)
	lat := Latency{Runs: runs, AvgMs: detect.Round(avg, 2)}
	if avg > 0 {
		lat.FPS = detect.Round(1000/avg, 1)
	}
	return lat, nil
}

// InspectModel reports the model file size and whether the class set is
// limited to nuts and bolts. path may be empty for remote detectors.
func InspectModel(path string, classes []string) (ModelInfo, error) {
	info := ModelInfo{Path: path, Classes: classes}
	if path != "" {
		st, err := os.Stat(path)
		if err != nil {
			return info, fmt.Errorf("stat model: %w", err)
		}
		info.SizeMB = math.Round(float64(st.Size())/(1024*1024)*100) / 100
	}
	for _, c := range classes {
		switch strings.ToLower(c) {
		case "nut", "bolt":
		default:
			info.Unexpected = append(info.Unexpected, c)
		}
	}
	info.ClassesOK = len(classes) > 0 && len(info.Unexpected) == 0
	return info, nil
}

type Options struct {
	Size       int
	Seed       uint64
	Confidence float64
	Sweep      []float64
	Runs       int
	ModelPath  string
}

func (o *Options) defaults() {
	if o.Size <= 0 {
		o.Size = DefaultSize
	}
	if o.Confidence <= 0 {
		o.Confidence = DefaultConfidence
	}
	if len(o.Sweep) == 0 {
		o.Sweep = DefaultSweep
	}
	if o.Runs <= 0 {
		o.Runs = DefaultRuns
	}
}

// Run executes the full diagnostic: false-positive probe, confidence sweep
// on noise, latency benchmark and model inspection.
func (p *Prober) Run(o Options) (Report, error) {
	o.defaults()
	images := SyntheticImages(o.Size, o.Seed)
	rep := Report{Confidence: o.Confidence}

	var err error
	if rep.FalsePositives, err = p.FalsePositives(images, o.Confidence); err != nil {
		return rep, err
	}
	var noise iface.RawImage
	for _, img := range images {
		if img.Name == "noise" {
			noise = img.Raw
		}
	}
	if rep.Sweep, err = p.Sweep(noise, o.Sweep); err != nil {
		return rep, err
	}
	if rep.Latency, err = p.Benchmark(images[0].Raw, o.Runs); err != nil {
		return rep, err
	}
	if rep.Model, err = InspectModel(o.ModelPath, p.det.Names()); err != nil {
		return rep, err
	}

	rep.Clean = true
	for _, r := range rep.FalsePositives {
		if r.FalsePositive {
			rep.Clean = false
		}
	}
	p.log.Info("probe finished",
		zap.Bool("clean", rep.Clean),
		zap.Float64("avg_ms", rep.Latency.AvgMs),
		zap.Float64("fps", rep.Latency.FPS),
		zap.Bool("classes_ok", rep.Model.ClassesOK))
	return rep, nil
}
