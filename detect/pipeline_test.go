package detect

import (
	"math"
	"testing"

	iface "NutBoltDetServer/interface"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestPipeline_Process(t *testing.T) {
	p := NewPipeline(zaptest.NewLogger(t))
	cfg := DefaultConfig()

	t.Run("Test Single Bolt", func(t *testing.T) {
		boxes := []iface.RawBox{{X1: 10, Y1: 10, X2: 50, Y2: 50, Confidence: 0.9, ClassID: 0}}
		res := p.Process(boxes, 640, 480, cfg)
		if assert.Len(t, res.Detections, 1) {
			d := res.Detections[0]
			assert.Equal(t, "Bolt", d.ClassName)
			assert.Equal(t, 0.9, d.Confidence)
			assert.Equal(t, BBox{X1: 10, Y1: 10, X2: 50, Y2: 50}, d.BBox)
			assert.Equal(t, RGB{0, 191, 255}, d.Color)
		}
		assert.Equal(t, map[string]int{"Bolt": 1}, res.Counts)
		assert.Equal(t, 1, res.Total)
	})

	t.Run("Test Too Small", func(t *testing.T) {
		boxes := []iface.RawBox{{X1: 10, Y1: 10, X2: 13, Y2: 50, Confidence: 1.0, ClassID: 1}}
		res := p.Process(boxes, 640, 480, cfg)
		assert.Empty(t, res.Detections)
		assert.Equal(t, 0, res.Total)
		assert.Equal(t, 1, res.Rejected[RejectTooSmall])
	})

	t.Run("Test Too Large", func(t *testing.T) {
		boxes := []iface.RawBox{{X1: 0, Y1: 0, X2: 2500, Y2: 40, Confidence: 0.8}}
		res := p.Process(boxes, 3000, 3000, cfg)
		assert.Equal(t, 0, res.Total)
		assert.Equal(t, 1, res.Rejected[RejectTooLarge])
	})

	t.Run("Test Area Ratio", func(t *testing.T) {
		c := cfg
		c.MaxBoxRatio = 0.5
		boxes := []iface.RawBox{
			{X1: 0, Y1: 0, X2: 90, Y2: 90, Confidence: 1.0, ClassID: 0},
			{X1: 0, Y1: 0, X2: 50, Y2: 50, Confidence: 0.7, ClassID: 1},
		}
		res := p.Process(boxes, 100, 100, c)
		if assert.Len(t, res.Detections, 1) {
			assert.Equal(t, "Nut", res.Detections[0].ClassName)
		}
		assert.Equal(t, 1, res.Rejected[RejectRatio])
	})

	t.Run("Test Invalid Geometry", func(t *testing.T) {
		c := cfg
		c.MinBoxSize = 0
		boxes := []iface.RawBox{
			{X1: math.NaN(), Y1: 10, X2: 50, Y2: 50, Confidence: 0.9},
			{X1: 10, Y1: 10, X2: math.Inf(1), Y2: 50, Confidence: 0.9},
			{X1: 10, Y1: 10, X2: 50, Y2: 50, Confidence: math.NaN()},
			{X1: 20, Y1: 10, X2: 20, Y2: 50, Confidence: 0.9},
			{X1: 10, Y1: 40, X2: 50, Y2: 30, Confidence: 0.9},
			{X1: 10, Y1: 10, X2: 11, Y2: 11, Confidence: 0.9, ClassID: 1},
		}
		res := p.Process(boxes, 640, 480, c)
		if assert.Len(t, res.Detections, 1) {
			assert.Equal(t, BBox{X1: 10, Y1: 10, X2: 11, Y2: 11}, res.Detections[0].BBox)
		}
		assert.Equal(t, 5, res.Rejected[RejectInvalid])
		assert.Equal(t, 1, res.Total)
	})

	t.Run("Test Empty", func(t *testing.T) {
		res := p.Process(nil, 640, 640, cfg)
		assert.NotNil(t, res.Detections)
		assert.Empty(t, res.Detections)
		assert.Equal(t, map[string]int{}, res.Counts)
		assert.Equal(t, 0, res.Total)
	})

	t.Run("Test Rounding", func(t *testing.T) {
		boxes := []iface.RawBox{{X1: 10.1234, Y1: 20.5678, X2: 60.005001, Y2: 90.999, Confidence: 0.87654, ClassID: 1}}
		res := p.Process(boxes, 640, 640, cfg)
		if assert.Len(t, res.Detections, 1) {
			d := res.Detections[0]
			assert.Equal(t, 0.877, d.Confidence)
			assert.Equal(t, 10.12, d.BBox.X1)
			assert.Equal(t, 20.57, d.BBox.Y1)
			assert.Equal(t, 60.01, d.BBox.X2)
			assert.Equal(t, 91.0, d.BBox.Y2)
		}
	})

	t.Run("Test Unknown Class", func(t *testing.T) {
		boxes := []iface.RawBox{
			{X1: 0, Y1: 0, X2: 20, Y2: 20, Confidence: 0.6, ClassID: 5, Label: "Washer"},
			{X1: 0, Y1: 0, X2: 20, Y2: 20, Confidence: 0.6, ClassID: 7},
			{X1: 0, Y1: 0, X2: 20, Y2: 20, Confidence: 0.6, ClassID: -1},
		}
		res := p.Process(boxes, 640, 640, cfg)
		if assert.Len(t, res.Detections, 3) {
			assert.Equal(t, "Washer", res.Detections[0].ClassName)
			assert.Equal(t, "class_7", res.Detections[1].ClassName)
			assert.Equal(t, "class_-1", res.Detections[2].ClassName)
			assert.Equal(t, FallbackColor, res.Detections[1].Color)
		}
	})

	t.Run("Test Order And Counts", func(t *testing.T) {
		boxes := []iface.RawBox{
			{X1: 0, Y1: 0, X2: 20, Y2: 20, Confidence: 0.6, ClassID: 1},
			{X1: 5, Y1: 5, X2: 30, Y2: 30, Confidence: 0.9, ClassID: 0},
			{X1: 1, Y1: 1, X2: 2, Y2: 2, Confidence: 0.99, ClassID: 0},
			{X1: 7, Y1: 7, X2: 40, Y2: 40, Confidence: 0.7, ClassID: 1},
		}
		res := p.Process(boxes, 640, 640, cfg)
		names := make([]string, 0, len(res.Detections))
		for _, d := range res.Detections {
			names = append(names, d.ClassName)
		}
		assert.Equal(t, []string{"Nut", "Bolt", "Nut"}, names)
		assert.Equal(t, map[string]int{"Nut": 2, "Bolt": 1}, res.Counts)
		assert.Equal(t, len(res.Detections), res.Total)
	})

	t.Run("Test Idempotent", func(t *testing.T) {
		boxes := []iface.RawBox{
			{X1: 3.333, Y1: 4.444, X2: 55.555, Y2: 66.666, Confidence: 0.51234, ClassID: 0},
			{X1: 100, Y1: 100, X2: 180, Y2: 200, Confidence: 0.75, ClassID: 1},
		}
		first := p.Process(boxes, 640, 480, cfg)
		second := p.Process(boxes, 640, 480, cfg)
		assert.Equal(t, first, second)
		assert.Equal(t, 3.333, boxes[0].X1)
	})
}

func TestClassName(t *testing.T) {
	tests := []struct {
		names    []string
		id       int
		label    string
		expected string
	}{
		{[]string{"Bolt", "Nut"}, 0, "", "Bolt"},
		{[]string{"Bolt", "Nut"}, 1, "ignored", "Nut"},
		{[]string{"Bolt", "Nut"}, 2, "Screw", "Screw"},
		{[]string{"Bolt", "Nut"}, 9, "", "class_9"},
		{nil, 0, "", "class_0"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, ClassName(tt.names, tt.id, tt.label))
	}
}

func TestCheckClassOrder(t *testing.T) {
	assert.Nil(t, CheckClassOrder([]string{"Bolt", "Nut"}, nil))
	assert.Empty(t, CheckClassOrder([]string{"Bolt", "Nut"}, []string{"Bolt", "Nut"}))

	mm := CheckClassOrder([]string{"nut", "bolt"}, []string{"Bolt", "Nut"})
	assert.Equal(t, []OrderMismatch{
		{Index: 0, Configured: "nut", Detector: "Bolt"},
		{Index: 1, Configured: "bolt", Detector: "Nut"},
	}, mm)

	mm = CheckClassOrder([]string{"Bolt"}, []string{"Bolt", "Nut"})
	assert.Equal(t, []OrderMismatch{{Index: 1, Configured: "", Detector: "Nut"}}, mm)
}

func TestRound(t *testing.T) {
	assert.Equal(t, 0.9, Round(0.9, 3))
	assert.Equal(t, 1.24, Round(1.235001, 2))
	assert.Equal(t, -2.5, Round(-2.4999, 2))

	// exact binary ties go to the even digit
	assert.Equal(t, 0.12, Round(0.125, 2))
	assert.Equal(t, 10.62, Round(10.625, 2))
	assert.Equal(t, 0.062, Round(0.0625, 3))
	assert.Equal(t, 0.38, Round(0.375, 2))
	assert.Equal(t, 2.0, Round(2.5, 0))
	assert.Equal(t, -0.12, Round(-0.125, 2))
	// 2.675 is stored just below the tie
	assert.Equal(t, 2.67, Round(2.675, 2))
}
