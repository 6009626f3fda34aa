package iface

// RawImage is a decoded H×W×3 pixel buffer in BGR order, one byte per channel.
type RawImage struct {
	Width  int
	Height int
	Data   []byte
}

func (r RawImage) Channels() int {
	return 3
}

func (r RawImage) Empty() bool {
	return r.Width <= 0 || r.Height <= 0 || len(r.Data) < r.Width*r.Height*3
}

// Options are the inference settings handed to a detector on every call.
type Options struct {
	Confidence float64
	Iou        float64
	InputSize  int
}

// RawBox is one box as the detector emitted it, in input-image pixels.
type RawBox struct {
	X1, Y1, X2, Y2 float64
	Confidence     float64
	ClassID        int
	// Label is the detector's own name for ClassID, if it has one.
	Label string
}
