package detect

import "fmt"

// RGB is a display color, serialised as [r, g, b].
type RGB [3]int

// DefaultClassNames follows the trained model's index order {0: Bolt, 1: Nut}.
var DefaultClassNames = []string{"Bolt", "Nut"}

var DefaultClassColors = map[string]RGB{
	"Bolt": {0, 191, 255},
	"Nut":  {255, 165, 0},
}

var FallbackColor = RGB{0, 255, 0}

// ClassName resolves id against names, then the detector's own label, then a
// synthetic class_<id>.
func ClassName(names []string, id int, label string) string {
	if id >= 0 && id < len(names) {
		return names[id]
	}
	if label != "" {
		return label
	}
	return fmt.Sprintf("class_%d", id)
}

func ColorFor(colors map[string]RGB, name string) RGB {
	if c, ok := colors[name]; ok {
		return c
	}
	return FallbackColor
}

// OrderMismatch is one index where the configured names and the detector's
// names disagree.
type OrderMismatch struct {
	Index      int    `json:"index"`
	Configured string `json:"configured"`
	Detector   string `json:"detector"`
}

// CheckClassOrder compares the two index->name conventions. It only reports;
// which side is right is an operator decision.
func CheckClassOrder(configured, detector []string) []OrderMismatch {
	if len(detector) == 0 {
		return nil
	}
	var out []OrderMismatch
	n := max(len(configured), len(detector))
	for i := 0; i < n; i++ {
		var c, d string
		if i < len(configured) {
			c = configured[i]
		}
		if i < len(detector) {
			d = detector[i]
		}
		if c != d {
			out = append(out, OrderMismatch{Index: i, Configured: c, Detector: d})
		}
	}
	return out
}
