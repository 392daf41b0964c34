package yolo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Protocol-Lattice/pcb-agent/pkg/vision"
)

// tensor lays out anchors column-wise: rows are x, y, w, h, then class scores.
func tensor(anchors [][]float32) []float32 {
	rows := len(anchors[0])
	out := make([]float32, rows*len(anchors))
	for a, col := range anchors {
		for r, v := range col {
			out[r*len(anchors)+a] = v
		}
	}
	return out
}

func TestLayoutFromDims(t *testing.T) {
	l, err := LayoutFromDims([]int{1, 10, 8400})
	require.NoError(t, err)
	assert.Equal(t, Layout{Classes: 6, Anchors: 8400}, l)

	_, err = LayoutFromDims([]int{1, 3, 10})
	assert.Error(t, err)
	_, err = LayoutFromDims([]int{2, 10, 10})
	assert.Error(t, err)
}

func TestDecodeScalesPixelCoordinates(t *testing.T) {
	out := tensor([][]float32{
		{320, 320, 64, 32, 0.1, 0.8},
		{100, 100, 10, 10, 0.05, 0.1},
	})
	dets, err := Decode(out, Layout{Classes: 2, Anchors: 2}, []string{"short", "spur"},
		Frame{InputWidth: 640, InputHeight: 640, ImageWidth: 1280, ImageHeight: 640}, 0.25)
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.Equal(t, "spur", dets[0].Class)
	assert.InDelta(t, 0.8, dets[0].Confidence, 1e-6)
	assert.Equal(t, vision.Box{X: 576, Y: 304, W: 128, H: 32}, dets[0].Box)
}

func TestDecodeNormalizedCoordinates(t *testing.T) {
	out := tensor([][]float32{{0.5, 0.5, 0.25, 0.5, 0.9}})
	dets, err := Decode(out, Layout{Classes: 1, Anchors: 1}, nil,
		Frame{InputWidth: 640, InputHeight: 640, ImageWidth: 400, ImageHeight: 200}, 0.25)
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.Equal(t, "class_0", dets[0].Class)
	assert.Equal(t, vision.Box{X: 150, Y: 50, W: 100, H: 100}, dets[0].Box)
}

func TestDecodeRejectsShortOutput(t *testing.T) {
	_, err := Decode(make([]float32, 3), Layout{Classes: 1, Anchors: 1}, nil, Frame{1, 1, 1, 1}, 0)
	assert.Error(t, err)
}

func TestIoU(t *testing.T) {
	a := vision.Box{X: 0, Y: 0, W: 10, H: 10}
	assert.InDelta(t, 1.0, IoU(a, a), 1e-9)
	assert.InDelta(t, 25.0/175.0, IoU(a, vision.Box{X: 5, Y: 5, W: 10, H: 10}), 1e-9)
	assert.Zero(t, IoU(a, vision.Box{X: 20, Y: 20, W: 5, H: 5}))
}

func TestNonMaxSuppressionIsClassWise(t *testing.T) {
	dets := []vision.Detection{
		{Class: "short", Confidence: 0.6, Box: vision.Box{X: 1, Y: 1, W: 10, H: 10}},
		{Class: "short", Confidence: 0.9, Box: vision.Box{X: 0, Y: 0, W: 10, H: 10}},
		{Class: "spur", Confidence: 0.7, Box: vision.Box{X: 0, Y: 0, W: 10, H: 10}},
		{Class: "short", Confidence: 0.5, Box: vision.Box{X: 50, Y: 50, W: 10, H: 10}},
	}
	kept := NonMaxSuppression(dets, 0.45)
	require.Len(t, kept, 3)
	assert.InDelta(t, 0.9, kept[0].Confidence, 1e-9)
	assert.Equal(t, "spur", kept[1].Class)
	assert.Equal(t, vision.Box{X: 50, Y: 50, W: 10, H: 10}, kept[2].Box)
}
