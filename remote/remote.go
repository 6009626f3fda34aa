package remote

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"strings"
	"sync"
	"time"

	"NutBoltDetServer/ingest"
	iface "NutBoltDetServer/interface"

	"github.com/go-resty/resty/v2"
)

const DefaultTimeout = 30 * time.Second

// Config points at an inference sidecar that owns the model.
type Config struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type inferRequest struct {
	Image      string  `json:"image"`
	Confidence float64 `json:"confidence"`
	Iou        float64 `json:"iou"`
	InputSize  int     `json:"input_size"`
}

type inferBox struct {
	X1         float64 `json:"x1"`
	Y1         float64 `json:"y1"`
	X2         float64 `json:"x2"`
	Y2         float64 `json:"y2"`
	Confidence float64 `json:"confidence"`
	ClassID    int     `json:"class_id"`
	ClassName  string  `json:"class_name"`
}

type inferResponse struct {
	Boxes []inferBox `json:"boxes"`
	Names []string   `json:"names"`
}

type inferError struct {
	Error string `json:"error"`
}

// Detector forwards images to the sidecar over HTTP. It is safe for
// concurrent use.
type Detector struct {
	client *resty.Client
	url    string
	mu     sync.RWMutex
	names  []string
}

func New(cfg Config) (*Detector, error) {
	if cfg.URL == "" {
		return nil, errors.New("remote detector url is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Detector{
		client: resty.New().SetTimeout(timeout),
		url:    strings.TrimRight(cfg.URL, "/"),
	}, nil
}

func (d *Detector) Detect(img iface.RawImage, opts iface.Options) ([]iface.RawBox, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, ingest.ToImage(img)); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	var result inferResponse
	var apiErr inferError
	resp, err := d.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(inferRequest{
			Image:      base64.StdEncoding.EncodeToString(buf.Bytes()),
			Confidence: opts.Confidence,
			Iou:        opts.Iou,
			InputSize:  opts.InputSize,
		}).
		SetResult(&result).
		SetError(&apiErr).
		Post(d.url + "/predict")
	if err != nil {
		return nil, fmt.Errorf("inference request: %w", err)
	}
	if resp.IsError() {
		if apiErr.Error != "" {
			return nil, fmt.Errorf("inference failed with status %d: %s", resp.StatusCode(), apiErr.Error)
		}
		return nil, fmt.Errorf("inference failed with status %d", resp.StatusCode())
	}

	if len(result.Names) > 0 {
		d.mu.Lock()
		d.names = result.Names
		d.mu.Unlock()
	}
	boxes := make([]iface.RawBox, 0, len(result.Boxes))
	for _, b := range result.Boxes {
		boxes = append(boxes, iface.RawBox{
			X1: b.X1, Y1: b.Y1, X2: b.X2, Y2: b.Y2,
			Confidence: b.Confidence,
			ClassID:    b.ClassID,
			Label:      b.ClassName,
		})
	}
	return boxes, nil
}

func (d *Detector) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.names
}

// CheckHealth probes the sidecar's /health endpoint.
func (d *Detector) CheckHealth() error {
	resp, err := d.client.R().Get(d.url + "/health")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("inference service unhealthy: %s", resp.Status())
	}
	return nil
}

func (d *Detector) Close() error {
	return nil
}
