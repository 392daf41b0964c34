// Package tflite runs a YOLO defect model locally through TensorFlow Lite.
package tflite

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"runtime"
	"sync"

	"github.com/tphakala/go-tflite"
	xdraw "golang.org/x/image/draw"

	pcberrors "github.com/Protocol-Lattice/pcb-agent/pkg/errors"
	"github.com/Protocol-Lattice/pcb-agent/pkg/vision"
	"github.com/Protocol-Lattice/pcb-agent/pkg/vision/yolo"
)

// Config selects the model file and decoding parameters.
type Config struct {
	ModelPath  string
	Labels     []string
	NumThreads int
	// ScoreFloor drops anchors before NMS; acceptance is applied later by the pipeline.
	ScoreFloor   float64
	IoUThreshold float64
}

// Detector owns one interpreter. Invocations are serialized.
type Detector struct {
	mu          sync.Mutex
	model       *tflite.Model
	interpreter *tflite.Interpreter
	cfg         Config
	inW, inH    int
	layout      yolo.Layout
	logger      *slog.Logger
}

// New loads the model and allocates tensors.
func New(cfg Config, logger *slog.Logger) (*Detector, error) {
	if logger == nil {
		logger = slog.Default()
	}
	data, err := os.ReadFile(cfg.ModelPath)
	if err != nil {
		return nil, pcberrors.New(fmt.Errorf("tflite: read model: %w", err)).
			Component("vision").
			Category(pcberrors.CategoryConfiguration).
			Context("model_path", cfg.ModelPath).
			Build()
	}
	if cfg.NumThreads <= 0 {
		cfg.NumThreads = runtime.NumCPU()
	}
	if cfg.ScoreFloor <= 0 {
		cfg.ScoreFloor = 0.1
	}
	if cfg.IoUThreshold <= 0 {
		cfg.IoUThreshold = 0.45
	}

	model := tflite.NewModel(data)
	if model == nil {
		return nil, fmt.Errorf("tflite: cannot load model from %s", cfg.ModelPath)
	}

	options := tflite.NewInterpreterOptions()
	options.SetNumThread(cfg.NumThreads)
	options.SetErrorReporter(func(msg string, _ interface{}) {
		logger.Warn("tflite", "message", msg)
	}, nil)
	defer options.Delete()

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		model.Delete()
		return nil, errors.New("tflite: cannot create interpreter")
	}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		interpreter.Delete()
		model.Delete()
		return nil, errors.New("tflite: tensor allocation failed")
	}

	// Input is NHWC float32.
	input := interpreter.GetInputTensor(0)
	if input == nil || input.NumDims() != 4 {
		interpreter.Delete()
		model.Delete()
		return nil, errors.New("tflite: unexpected input tensor")
	}
	output := interpreter.GetOutputTensor(0)
	dims := make([]int, output.NumDims())
	for i := range dims {
		dims[i] = output.Dim(i)
	}
	layout, err := yolo.LayoutFromDims(dims)
	if err != nil {
		interpreter.Delete()
		model.Delete()
		return nil, err
	}

	d := &Detector{
		model:       model,
		interpreter: interpreter,
		cfg:         cfg,
		inH:         input.Dim(1),
		inW:         input.Dim(2),
		layout:      layout,
		logger:      logger.With("component", "vision", "backend", "tflite"),
	}
	d.logger.Info("model loaded", "path", cfg.ModelPath, "input", fmt.Sprintf("%dx%d", d.inW, d.inH), "classes", layout.Classes)
	return d, nil
}

// Detect resizes the image to the model input, runs inference and decodes boxes.
func (d *Detector) Detect(ctx context.Context, in vision.Input) ([]vision.Detection, error) {
	if in.Image == nil {
		return nil, fmt.Errorf("tflite: no decoded image for %s", in.Path)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	input := d.interpreter.GetInputTensor(0)
	fillInput(input.Float32s(), in.Image, d.inW, d.inH)

	if status := d.interpreter.Invoke(); status != tflite.OK {
		return nil, pcberrors.Newf("tflite: invoke failed").
			Component("vision").
			Category(pcberrors.CategoryBackendUnavailable).
			Build()
	}

	output := d.interpreter.GetOutputTensor(0)
	raw := make([]float32, len(output.Float32s()))
	copy(raw, output.Float32s())

	b := in.Image.Bounds()
	dets, err := yolo.Decode(raw, d.layout, d.cfg.Labels, yolo.Frame{
		InputWidth:  d.inW,
		InputHeight: d.inH,
		ImageWidth:  b.Dx(),
		ImageHeight: b.Dy(),
	}, d.cfg.ScoreFloor)
	if err != nil {
		return nil, err
	}
	return yolo.NonMaxSuppression(dets, d.cfg.IoUThreshold), nil
}

// Close releases the interpreter and model.
func (d *Detector) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.interpreter != nil {
		d.interpreter.Delete()
		d.interpreter = nil
	}
	if d.model != nil {
		d.model.Delete()
		d.model = nil
	}
}

// fillInput writes img scaled to w×h as RGB floats in [0,1].
func fillInput(dst []float32, img image.Image, w, h int) {
	scaled := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.BiLinear.Scale(scaled, scaled.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	for i, p := 0, 0; p+3 < len(scaled.Pix) && i+2 < len(dst); i, p = i+3, p+4 {
		dst[i] = float32(scaled.Pix[p]) / 255
		dst[i+1] = float32(scaled.Pix[p+1]) / 255
		dst[i+2] = float32(scaled.Pix[p+2]) / 255
	}
}

var _ vision.Detector = (*Detector)(nil)
