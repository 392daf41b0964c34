package vision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	pcberrors "github.com/Protocol-Lattice/pcb-agent/pkg/errors"
)

// PipelineOptions configure a Pipeline.
type PipelineOptions struct {
	Detector  Detector
	Timeout   time.Duration
	Threshold float64
	Logger    *slog.Logger
}

// Pipeline runs detection, filtering, cropping and annotation for one image.
type Pipeline struct {
	detector  Detector
	timeout   time.Duration
	threshold float64
	logger    *slog.Logger
}

// NewPipeline builds a pipeline; a zero Threshold means AcceptanceThreshold.
func NewPipeline(opts PipelineOptions) (*Pipeline, error) {
	if opts.Detector == nil {
		return nil, errors.New("vision: pipeline requires a detector")
	}
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = AcceptanceThreshold
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		detector:  opts.Detector,
		timeout:   opts.Timeout,
		threshold: threshold,
		logger:    logger.With("component", "vision"),
	}, nil
}

// Crop is one accepted detection with its scaled image.
type Crop struct {
	Detection
	Image *image.RGBA
	PNG   []byte
}

// Result is the outcome of analyzing one image.
type Result struct {
	SourcePath string
	Width      int
	Height     int
	// Detections holds accepted detections that could be cropped, in the
	// same order as Crops.
	Detections []Detection
	Annotated  *image.RGBA
	// AnnotatedPNG is the encoded annotated image. Without detections it is the
	// unmodified board.
	AnnotatedPNG []byte
	Crops        []Crop
}

// Empty reports whether no detection passed the threshold.
func (r Result) Empty() bool { return len(r.Detections) == 0 }

// Analyze runs the full detection contract for the image at path.
func (p *Pipeline) Analyze(ctx context.Context, path string) (Result, error) {
	img, data, err := LoadImage(path)
	if err != nil {
		return Result{}, pcberrors.New(fmt.Errorf("image %s: %w", path, err)).
			Component("vision").
			Category(pcberrors.CategoryFileNotFound).
			Context("path", path).
			Build()
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	raw, err := p.detector.Detect(ctx, Input{Path: path, Data: data, Image: img})
	if err != nil {
		if pcberrors.CategoryOf(err) == pcberrors.CategoryGeneric {
			err = pcberrors.New(err).
				Component("vision").
				Category(pcberrors.CategoryBackendUnavailable).
				Build()
		}
		return Result{}, err
	}

	accepted := Accepted(raw, p.threshold)
	p.logger.Info("detection complete",
		"path", path,
		"raw", len(raw),
		"accepted", len(accepted),
		"duration_ms", time.Since(start).Milliseconds())

	bounds := img.Bounds()
	res := Result{
		SourcePath: path,
		Width:      bounds.Dx(),
		Height:     bounds.Dy(),
		Detections: make([]Detection, 0, len(accepted)),
	}
	// Detections and Crops stay index-aligned: a detection without a crop is dropped.
	for _, d := range accepted {
		cropImg, err := CropDefect(img, d.Box)
		if err != nil {
			p.logger.Warn("dropping detection outside the image", "class", d.Class, "error", err)
			continue
		}
		encoded, err := EncodePNG(cropImg)
		if err != nil {
			return Result{}, fmt.Errorf("vision: encode crop: %w", err)
		}
		res.Detections = append(res.Detections, d)
		res.Crops = append(res.Crops, Crop{Detection: d, Image: cropImg, PNG: encoded})
	}
	res.Annotated = Annotate(img, res.Detections)
	if res.AnnotatedPNG, err = EncodePNG(res.Annotated); err != nil {
		return Result{}, fmt.Errorf("vision: encode annotated image: %w", err)
	}
	return res, nil
}

// Artifacts lists the files WriteArtifacts produced.
type Artifacts struct {
	Annotated string
	Crops     []string
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// WriteArtifacts stores the annotated image and every crop under dir.
func (r Result) WriteArtifacts(dir string) (Artifacts, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Artifacts{}, fmt.Errorf("vision: create output dir: %w", err)
	}
	stem := strings.TrimSuffix(filepath.Base(r.SourcePath), filepath.Ext(r.SourcePath))

	var out Artifacts
	out.Annotated = filepath.Join(dir, "detected_"+unsafeName.ReplaceAllString(stem, "_")+".png")
	if err := os.WriteFile(out.Annotated, r.AnnotatedPNG, 0o644); err != nil {
		return Artifacts{}, fmt.Errorf("vision: write annotated image: %w", err)
	}
	for i, c := range r.Crops {
		name := fmt.Sprintf("crop_%d_%s.png", i, unsafeName.ReplaceAllString(c.Class, "_"))
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, c.PNG, 0o644); err != nil {
			return out, fmt.Errorf("vision: write crop: %w", err)
		}
		out.Crops = append(out.Crops, path)
	}
	return out, nil
}

// ListArtifacts returns the sorted .png/.jpg/.jpeg files in dir. A missing
// directory yields an empty list.
func ListArtifacts(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	files := []string{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg":
			files = append(files, e.Name())
		}
	}
	return files, nil
}

func decodeJSON(raw []byte, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
