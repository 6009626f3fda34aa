package engine

import (
	"fmt"
	"image"
)

// Candidate is one pre-NMS box in original-image pixels.
type Candidate struct {
	X1, Y1, X2, Y2 float64
	Score          float64
	ClassID        int
}

// DecodeYOLOv8 reads a [1, 4+nc, anchors] head (cx, cy, w, h, class scores)
// produced on a square letterboxed input. scale maps input pixels back to the
// original image, whose size clips the result.
func DecodeYOLOv8(out []float32, channels, anchors int, conf, scale float64, imgW, imgH int) ([]Candidate, error) {
	if channels < 5 {
		return nil, fmt.Errorf("unexpected output channels %d", channels)
	}
	if len(out) < channels*anchors {
		return nil, fmt.Errorf("output has %d values, want %d", len(out), channels*anchors)
	}
	numClasses := channels - 4
	var cands []Candidate
	for i := 0; i < anchors; i++ {
		best, bestScore := 0, float32(0)
		for c := 0; c < numClasses; c++ {
			s := out[(4+c)*anchors+i]
			if s > bestScore {
				best, bestScore = c, s
			}
		}
		if float64(bestScore) < conf {
			continue
		}
		cx := float64(out[i])
		cy := float64(out[anchors+i])
		w := float64(out[2*anchors+i])
		h := float64(out[3*anchors+i])
		cands = append(cands, Candidate{
			X1:      clamp((cx-w/2)*scale, float64(imgW)),
			Y1:      clamp((cy-h/2)*scale, float64(imgH)),
			X2:      clamp((cx+w/2)*scale, float64(imgW)),
			Y2:      clamp((cy+h/2)*scale, float64(imgH)),
			Score:   float64(bestScore),
			ClassID: best,
		})
	}
	return cands, nil
}

// classOffset keeps NMS per class: boxes of different classes never overlap
// once shifted by their class index.
const classOffset = 8192

func nmsInputs(cands []Candidate) ([]image.Rectangle, []float32) {
	rects := make([]image.Rectangle, len(cands))
	scores := make([]float32, len(cands))
	for i, c := range cands {
		off := c.ClassID * classOffset
		rects[i] = image.Rect(int(c.X1)+off, int(c.Y1)+off, int(c.X2)+off, int(c.Y2)+off)
		scores[i] = float32(c.Score)
	}
	return rects, scores
}

func clamp(v, hi float64) float64 {
	if v < 0 {
		return 0
	}
	if v > hi {
		return hi
	}
	return v
}
