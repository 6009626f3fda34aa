package probe

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	iface "NutBoltDetServer/interface"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// noisyDetector reports one Bolt on images whose first pixel is not black,
// scored at 0.65, so it only survives thresholds below that.
type noisyDetector struct {
	calls int
	err   error
}

func (n *noisyDetector) Detect(img iface.RawImage, opts iface.Options) ([]iface.RawBox, error) {
	n.calls++
	if n.err != nil {
		return nil, n.err
	}
	if img.Data[0] == 0 && img.Data[1] == 0 && img.Data[2] == 0 {
		return nil, nil
	}
	if opts.Confidence > 0.65 {
		return nil, nil
	}
	return []iface.RawBox{{X1: 1, Y1: 1, X2: 30, Y2: 30, Confidence: 0.654, ClassID: 0}}, nil
}
func (n *noisyDetector) Names() []string { return []string{"Bolt", "Nut"} }
func (n *noisyDetector) Close() error    { return nil }

func TestSyntheticImages(t *testing.T) {
	imgs := SyntheticImages(64, 7)
	require.Len(t, imgs, 4)
	names := []string{imgs[0].Name, imgs[1].Name, imgs[2].Name, imgs[3].Name}
	assert.Equal(t, []string{"black", "white", "noise", "gradient"}, names)

	for _, img := range imgs {
		assert.Equal(t, 64, img.Raw.Width)
		assert.Equal(t, 64, img.Raw.Height)
		assert.Len(t, img.Raw.Data, 64*64*3)
	}
	assert.Equal(t, byte(0), imgs[0].Raw.Data[100])
	assert.Equal(t, byte(255), imgs[1].Raw.Data[100])

	// gradient: column x holds x/3 in every channel
	grad := imgs[3].Raw
	px := func(x, y int) byte { return grad.Data[(y*grad.Width+x)*3] }
	assert.Equal(t, byte(0), px(2, 10))
	assert.Equal(t, byte(1), px(3, 10))
	assert.Equal(t, byte(21), px(63, 40))

	again := SyntheticImages(64, 7)
	assert.Equal(t, imgs[2].Raw.Data, again[2].Raw.Data, "noise is seeded")
	other := SyntheticImages(64, 8)
	assert.NotEqual(t, imgs[2].Raw.Data, other[2].Raw.Data)
}

func TestFalsePositives(t *testing.T) {
	p := New(&noisyDetector{}, iface.Options{Iou: 0.45, InputSize: 640}, zaptest.NewLogger(t))
	res, err := p.FalsePositives(SyntheticImages(32, 1), 0.6)
	require.NoError(t, err)
	require.Len(t, res, 4)

	assert.False(t, res[0].FalsePositive)
	assert.Empty(t, res[0].Findings)
	assert.True(t, res[1].FalsePositive)
	assert.Equal(t, []Finding{{Class: "Bolt", Confidence: 0.65}}, res[1].Findings)
}

func TestSweep(t *testing.T) {
	p := New(&noisyDetector{}, iface.Options{}, nil)
	noise := SyntheticImages(32, 3)[2].Raw
	noise.Data[0], noise.Data[1], noise.Data[2] = 10, 10, 10

	points, err := p.Sweep(noise, DefaultSweep)
	require.NoError(t, err)
	require.Len(t, points, 5)
	for _, pt := range points {
		assert.Equal(t, pt.Confidence < 0.65, pt.FalsePositive, "conf=%v", pt.Confidence)
	}
}

func TestBenchmark(t *testing.T) {
	det := &noisyDetector{}
	p := New(det, iface.Options{Confidence: 0.5}, nil)
	img := SyntheticImages(16, 1)[0].Raw

	lat, err := p.Benchmark(img, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, lat.Runs)
	assert.Equal(t, 6, det.calls, "one warm-up plus five timed runs")
	assert.GreaterOrEqual(t, lat.AvgMs, 0.0)

	_, err = p.Benchmark(img, 0)
	assert.Error(t, err)
}

func TestInspectModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "best.onnx")
	require.NoError(t, os.WriteFile(path, make([]byte, 3<<20), 0o600))

	info, err := InspectModel(path, []string{"Bolt", "Nut"})
	require.NoError(t, err)
	assert.Equal(t, 3.0, info.SizeMB)
	assert.True(t, info.ClassesOK)

	info, err = InspectModel("", []string{"bolt", "washer"})
	require.NoError(t, err)
	assert.False(t, info.ClassesOK)
	assert.Equal(t, []string{"washer"}, info.Unexpected)

	_, err = InspectModel(filepath.Join(t.TempDir(), "missing.onnx"), nil)
	assert.Error(t, err)
}

func TestRun(t *testing.T) {
	p := New(&noisyDetector{}, iface.Options{Iou: 0.45, InputSize: 640}, zaptest.NewLogger(t))
	rep, err := p.Run(Options{Size: 32, Runs: 2})
	require.NoError(t, err)
	assert.Equal(t, DefaultConfidence, rep.Confidence)
	assert.False(t, rep.Clean)
	assert.Len(t, rep.Sweep, len(DefaultSweep))
	assert.Equal(t, 2, rep.Latency.Runs)
	assert.True(t, rep.Model.ClassesOK)

	failing := New(&noisyDetector{err: errors.New("boom")}, iface.Options{}, nil)
	_, err = failing.Run(Options{Size: 16})
	assert.ErrorContains(t, err, "boom")
}
