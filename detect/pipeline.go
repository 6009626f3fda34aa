package detect

import (
	"math"
	"strconv"

	iface "NutBoltDetServer/interface"

	"go.uber.org/zap"
)

const (
	RejectTooLarge = "too_large"
	RejectTooSmall = "too_small"
	RejectRatio    = "area_ratio"
	RejectInvalid  = "invalid"
)

type BBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

type Detection struct {
	ClassName  string  `json:"class"`
	Confidence float64 `json:"confidence"`
	BBox       BBox    `json:"bbox"`
	Color      RGB     `json:"color"`
}

type Result struct {
	Detections []Detection    `json:"detections"`
	Counts     map[string]int `json:"counts"`
	Total      int            `json:"total"`
	// Rejected counts skipped boxes per reason; it is not part of the
	// response body.
	Rejected map[string]int `json:"-"`
}

// Pipeline turns raw detector boxes into Detection records. It keeps no
// state between calls.
type Pipeline struct {
	log *zap.Logger
}

func NewPipeline(log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{log: log}
}

// Process filters, names, colors and rounds boxes in detector order.
// imgW and imgH are the dimensions of the image the boxes refer to.
func (p *Pipeline) Process(boxes []iface.RawBox, imgW, imgH int, cfg Config) Result {
	res := Result{
		Detections: make([]Detection, 0, len(boxes)),
		Counts:     make(map[string]int),
		Rejected:   make(map[string]int),
	}
	imgArea := float64(imgW) * float64(imgH)

	for _, b := range boxes {
		w := b.X2 - b.X1
		h := b.Y2 - b.Y1

		if !validBox(b, w, h) {
			p.reject(&res, RejectInvalid, b, w, h)
			continue
		}
		if w > cfg.MaxBoxSize || h > cfg.MaxBoxSize {
			p.reject(&res, RejectTooLarge, b, w, h)
			continue
		}
		if w < cfg.MinBoxSize || h < cfg.MinBoxSize {
			p.reject(&res, RejectTooSmall, b, w, h)
			continue
		}
		if imgArea > 0 && (w*h)/imgArea > cfg.MaxBoxRatio {
			p.reject(&res, RejectRatio, b, w, h)
			continue
		}

		name := ClassName(cfg.ClassNames, b.ClassID, b.Label)
		res.Detections = append(res.Detections, Detection{
			ClassName:  name,
			Confidence: Round(b.Confidence, 3),
			BBox: BBox{
				X1: Round(b.X1, 2),
				Y1: Round(b.Y1, 2),
				X2: Round(b.X2, 2),
				Y2: Round(b.Y2, 2),
			},
			Color: ColorFor(cfg.ClassColors, name),
		})
	}

	for _, d := range res.Detections {
		res.Counts[d.ClassName]++
	}
	res.Total = len(res.Detections)
	return res
}

func (p *Pipeline) reject(res *Result, reason string, b iface.RawBox, w, h float64) {
	res.Rejected[reason]++
	p.log.Debug("skipping box",
		zap.String("reason", reason),
		zap.Float64("width", w),
		zap.Float64("height", h),
		zap.Float64("confidence", b.Confidence),
		zap.Int("class_id", b.ClassID))
}

// validBox requires finite values and a positive extent on both axes.
func validBox(b iface.RawBox, w, h float64) bool {
	for _, v := range [...]float64{b.X1, b.Y1, b.X2, b.Y2, b.Confidence} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return w > 0 && h > 0
}

// Round rounds the exact binary value to the given number of decimals,
// sending true ties to the even digit.
func Round(v float64, decimals int) float64 {
	f, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', decimals, 64), 64)
	if err != nil {
		return v
	}
	return f
}
