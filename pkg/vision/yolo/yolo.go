// Package yolo decodes YOLOv8-style detection tensors.
package yolo

import (
	"fmt"
	"sort"

	"github.com/Protocol-Lattice/pcb-agent/pkg/vision"
)

// Layout describes an output tensor of shape [1, 4+classes, anchors].
type Layout struct {
	Classes int
	Anchors int
}

// LayoutFromDims validates dims and returns the tensor layout.
func LayoutFromDims(dims []int) (Layout, error) {
	if len(dims) != 3 || dims[0] != 1 {
		return Layout{}, fmt.Errorf("yolo: unexpected output shape %v", dims)
	}
	if dims[1] < 5 {
		return Layout{}, fmt.Errorf("yolo: output has %d rows, need at least 5", dims[1])
	}
	return Layout{Classes: dims[1] - 4, Anchors: dims[2]}, nil
}

// Frame maps model input coordinates onto the source image.
type Frame struct {
	InputWidth  int
	InputHeight int
	ImageWidth  int
	ImageHeight int
}

// Decode converts raw output into detections in source-image pixels. Anchors
// whose best class score is below floor are skipped. Coordinates at or below
// 1.0 are treated as normalized to the input size.
func Decode(out []float32, layout Layout, labels []string, frame Frame, floor float64) ([]vision.Detection, error) {
	if want := (4 + layout.Classes) * layout.Anchors; len(out) < want {
		return nil, fmt.Errorf("yolo: output has %d values, want %d", len(out), want)
	}
	at := func(row, anchor int) float64 { return float64(out[row*layout.Anchors+anchor]) }

	normalized := true
	for a := 0; a < layout.Anchors && normalized; a++ {
		if at(0, a) > 1.0 || at(2, a) > 1.0 {
			normalized = false
		}
	}
	sx := float64(frame.ImageWidth) / float64(frame.InputWidth)
	sy := float64(frame.ImageHeight) / float64(frame.InputHeight)
	if normalized {
		sx = float64(frame.ImageWidth)
		sy = float64(frame.ImageHeight)
	}

	var dets []vision.Detection
	for a := 0; a < layout.Anchors; a++ {
		best, score := -1, floor
		for c := 0; c < layout.Classes; c++ {
			if s := at(4+c, a); s >= score {
				best, score = c, s
			}
		}
		if best < 0 {
			continue
		}
		center := vision.CenterBox{
			CX: at(0, a) * sx,
			CY: at(1, a) * sy,
			W:  at(2, a) * sx,
			H:  at(3, a) * sy,
		}
		dets = append(dets, vision.NewDetection(label(labels, best), score, center))
	}
	return dets, nil
}

func label(labels []string, idx int) string {
	if idx < len(labels) {
		return labels[idx]
	}
	return fmt.Sprintf("class_%d", idx)
}

// IoU is the intersection over union of two boxes.
func IoU(a, b vision.Box) float64 {
	inter := a.Rect().Intersect(b.Rect())
	if inter.Empty() {
		return 0
	}
	i := float64(inter.Dx() * inter.Dy())
	u := float64(a.W*a.H+b.W*b.H) - i
	if u <= 0 {
		return 0
	}
	return i / u
}

// NonMaxSuppression keeps the highest-confidence box of every overlapping
// group of the same class. The result is ordered by descending confidence.
func NonMaxSuppression(dets []vision.Detection, threshold float64) []vision.Detection {
	sorted := append([]vision.Detection(nil), dets...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Confidence > sorted[j].Confidence })

	kept := make([]vision.Detection, 0, len(sorted))
	for _, d := range sorted {
		suppressed := false
		for _, k := range kept {
			if k.Class == d.Class && IoU(k.Box, d.Box) > threshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, d)
		}
	}
	return kept
}
