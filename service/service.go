package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"NutBoltDetServer/detect"
	"NutBoltDetServer/history"
	"NutBoltDetServer/ingest"
	iface "NutBoltDetServer/interface"
	"NutBoltDetServer/monitor"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrUnavailable = errors.New("model not loaded")
	ErrDetection   = errors.New("detection failed")
	ErrNoImage     = errors.New("no image data provided")
)

// Runner executes one detection on some detector. *Pool implements it.
type Runner interface {
	Run(ctx context.Context, img iface.RawImage, opts iface.Options) ([]iface.RawBox, error)
	Names() []string
}

type ImageSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type Response struct {
	Success          bool               `json:"success"`
	Detections       []detect.Detection `json:"detections"`
	Counts           map[string]int     `json:"counts"`
	Total            int                `json:"total"`
	ProcessingTimeMs float64            `json:"processing_time_ms"`
	ImageSize        ImageSize          `json:"image_size"`
	RequestID        string             `json:"-"`
}

type Health struct {
	Status              string   `json:"status"`
	ModelLoaded         bool     `json:"model_loaded"`
	ModelPath           string   `json:"model_path"`
	ClassNames          []string `json:"class_names"`
	ConfidenceThreshold float64  `json:"confidence_threshold"`
	InputSize           int      `json:"input_size"`
}

type Options struct {
	Store     *detect.Store
	Runner    Runner // nil when no model could be loaded
	History   history.Store
	Metrics   *monitor.Metrics
	ModelPath string
	Log       *zap.Logger
}

// Service wires ingestion, the detector pool and the post-processing
// pipeline together. It is shared by every transport.
type Service struct {
	store     *detect.Store
	runner    Runner
	pipeline  *detect.Pipeline
	history   history.Store
	metrics   *monitor.Metrics
	modelPath string
	log       *zap.Logger
}

func New(opts Options) *Service {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:     opts.Store,
		runner:    opts.Runner,
		pipeline:  detect.NewPipeline(log.Named("pipeline")),
		history:   opts.History,
		metrics:   opts.Metrics,
		modelPath: opts.ModelPath,
		log:       log,
	}
}

func (s *Service) Ready() bool {
	return s.runner != nil
}

func (s *Service) Metrics() *monitor.Metrics {
	return s.metrics
}

// Detect decodes payload, runs it through the detector and post-processes
// the boxes. source names the transport for metrics and history.
func (s *Service) Detect(ctx context.Context, payload string, source string) (*Response, error) {
	start := time.Now()
	resp, err := s.detect(ctx, payload, source, start)
	s.metrics.ObserveRequest(source, Outcome(err))
	return resp, err
}

func (s *Service) detect(ctx context.Context, payload string, source string, start time.Time) (*Response, error) {
	if !s.Ready() {
		return nil, ErrUnavailable
	}
	if strings.TrimSpace(payload) == "" {
		return nil, ErrNoImage
	}
	img, err := ingest.Base64ToRaw(payload)
	if err != nil {
		return nil, err
	}

	cfg := s.store.Snapshot()
	boxes, err := s.runner.Run(ctx, img, cfg.Options())
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrDetection, err)
	}
	res := s.pipeline.Process(boxes, img.Width, img.Height, cfg)
	elapsed := time.Since(start)

	resp := &Response{
		Success:          true,
		Detections:       res.Detections,
		Counts:           res.Counts,
		Total:            res.Total,
		ProcessingTimeMs: detect.Round(float64(elapsed.Microseconds())/1000, 2),
		ImageSize:        ImageSize{Width: img.Width, Height: img.Height},
		RequestID:        uuid.NewString(),
	}
	s.metrics.ObserveDetections(res.Counts, res.Rejected, elapsed)
	s.record(ctx, resp, source)

	s.log.Info("detection done",
		zap.String("request_id", resp.RequestID),
		zap.String("source", source),
		zap.Int("total", resp.Total),
		zap.Int("width", img.Width),
		zap.Int("height", img.Height),
		zap.Float64("processing_time_ms", resp.ProcessingTimeMs))
	return resp, nil
}

// record stores resp in history. A history failure never fails the request.
func (s *Service) record(ctx context.Context, resp *Response, source string) {
	if s.history == nil {
		return
	}
	rec := &history.Record{
		ID:               resp.RequestID,
		CreatedAt:        time.Now().UTC(),
		Source:           source,
		Total:            resp.Total,
		Counts:           resp.Counts,
		ProcessingTimeMs: resp.ProcessingTimeMs,
		Width:            resp.ImageSize.Width,
		Height:           resp.ImageSize.Height,
	}
	if err := s.history.Insert(context.WithoutCancel(ctx), rec); err != nil {
		s.log.Warn("failed to record history", zap.String("request_id", rec.ID), zap.Error(err))
	}
}

func (s *Service) Health() Health {
	cfg := s.store.Snapshot()
	return Health{
		Status:              "online",
		ModelLoaded:         s.Ready(),
		ModelPath:           s.modelPath,
		ClassNames:          cfg.ClassNames,
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		InputSize:           cfg.InputSize,
	}
}

func (s *Service) Config() detect.Config {
	return s.store.Snapshot()
}

func (s *Service) UpdateConfig(values map[string]any) (detect.Config, error) {
	cfg, err := s.store.Apply(values)
	if err != nil {
		s.log.Warn("config update rejected", zap.Error(err))
		return cfg, err
	}
	s.log.Info("config updated",
		zap.Float64("confidence_threshold", cfg.ConfidenceThreshold),
		zap.Float64("iou_threshold", cfg.IouThreshold),
		zap.Int("input_size", cfg.InputSize),
		zap.Float64("min_box_size", cfg.MinBoxSize),
		zap.Float64("max_box_size", cfg.MaxBoxSize),
		zap.Float64("max_box_ratio", cfg.MaxBoxRatio))
	return cfg, nil
}

func (s *Service) History(ctx context.Context, limit int) ([]history.Record, error) {
	if s.history == nil {
		return nil, history.ErrDisabled
	}
	return s.history.Recent(ctx, limit)
}

// Outcome labels err for the request counter.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNoImage), errors.Is(err, ingest.ErrDecode):
		return "bad_request"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
