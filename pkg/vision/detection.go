// Package vision turns a PCB photograph into accepted defect detections,
// padded crops and an annotated copy of the board.
package vision

import (
	"context"
	"fmt"
	"image"
)

const (
	// AcceptanceThreshold discards detections below this confidence before
	// anything else sees them.
	AcceptanceThreshold = 0.3

	// CropSize is the edge length of every defect crop.
	CropSize = 300

	// CropPadding expands each box by this fraction of its width/height per side.
	CropPadding = 0.2
)

// CenterBox is a bounding box given by its center and size, as detectors report it.
type CenterBox struct {
	CX float64 `json:"x"`
	CY float64 `json:"y"`
	W  float64 `json:"width"`
	H  float64 `json:"height"`
}

// Corners returns the truncated top-left and bottom-right corners.
func (c CenterBox) Corners() (x1, y1, x2, y2 int) {
	x1 = int(c.CX - c.W/2)
	y1 = int(c.CY - c.H/2)
	x2 = int(c.CX + c.W/2)
	y2 = int(c.CY + c.H/2)
	return x1, y1, x2, y2
}

// Box converts to corner format.
func (c CenterBox) Box() Box {
	x1, y1, x2, y2 := c.Corners()
	return Box{X: x1, Y: y1, W: x2 - x1, H: y2 - y1}
}

// Box is a bounding box anchored at its top-left corner.
type Box struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Rect returns the box as an image rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.W, b.Y+b.H)
}

// Center converts back to center format.
func (b Box) Center() CenterBox {
	return CenterBox{
		CX: float64(b.X) + float64(b.W)/2,
		CY: float64(b.Y) + float64(b.H)/2,
		W:  float64(b.W),
		H:  float64(b.H),
	}
}

// Detection is one located defect. Confidence is in [0,1].
type Detection struct {
	Class      string    `json:"class"`
	Confidence float64   `json:"confidence"`
	Center     CenterBox `json:"center"`
	Box        Box       `json:"bbox"`
}

// NewDetection builds a detection from a center-format box.
func NewDetection(class string, confidence float64, center CenterBox) Detection {
	return Detection{Class: class, Confidence: confidence, Center: center, Box: center.Box()}
}

// Label renders "<class> <pct>%" as drawn on the annotated image.
func (d Detection) Label() string {
	return d.Class + " " + Percent(d.Confidence)
}

// Accepted keeps detections at or above threshold, preserving order.
func Accepted(dets []Detection, threshold float64) []Detection {
	out := make([]Detection, 0, len(dets))
	for _, d := range dets {
		if d.Confidence >= threshold {
			out = append(out, d)
		}
	}
	return out
}

// Percent renders a [0,1] confidence as a percentage with two decimals.
func Percent(confidence float64) string {
	return fmt.Sprintf("%.2f%%", confidence*100)
}

// Input is the image handed to a Detector, in every form a backend may need.
type Input struct {
	Path  string
	Data  []byte
	Image image.Image
}

// Detector locates defects. Implementations return raw detections; the
// pipeline applies the acceptance threshold.
type Detector interface {
	Detect(ctx context.Context, in Input) ([]Detection, error)
}

// DetectorFunc adapts a function to Detector.
type DetectorFunc func(ctx context.Context, in Input) ([]Detection, error)

func (f DetectorFunc) Detect(ctx context.Context, in Input) ([]Detection, error) {
	return f(ctx, in)
}
