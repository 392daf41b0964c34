package tools

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Protocol-Lattice/pcb-agent/pkg/agent"
	pcberrors "github.com/Protocol-Lattice/pcb-agent/pkg/errors"
	"github.com/Protocol-Lattice/pcb-agent/pkg/store"
	"github.com/Protocol-Lattice/pcb-agent/pkg/vision"
)

const (
	DetectToolName = "detect_pcb_defects"

	agentSaveNote = "Saved from defect-analysis-agent"
)

// Analyzer is the part of vision.Pipeline the detection tool needs.
type Analyzer interface {
	Analyze(ctx context.Context, path string) (vision.Result, error)
}

// Persister is the part of store.Service the detection tool needs.
type Persister interface {
	Persist(ctx context.Context, main store.MainUpload, crops []store.CropUpload) (store.PersistedBundle, error)
}

// DetectTool runs the vision pipeline on a local image, writes the annotated
// image and crops to OutputDir and persists them when a store is configured.
type DetectTool struct {
	analyzer  Analyzer
	persister Persister
	outputDir string
	logger    *slog.Logger
}

// NewDetectTool wires the tool. persister may be nil.
func NewDetectTool(analyzer Analyzer, persister Persister, outputDir string, logger *slog.Logger) *DetectTool {
	if outputDir == "" {
		outputDir = "processed_images"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DetectTool{
		analyzer:  analyzer,
		persister: persister,
		outputDir: outputDir,
		logger:    logger.With("component", "tools", "tool", DetectToolName),
	}
}

func (d *DetectTool) Spec() agent.ToolSpec {
	return agent.ToolSpec{
		Name: DetectToolName,
		Description: "Analyzes a PCB image with the defect detection model, draws boxes, crops every defect, " +
			"saves the annotated image and crops, and returns a summary with defect types, confidence, location and URLs.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"image_path": map[string]any{
					"type":        "string",
					"description": "Local path of the PCB image, e.g. 'uploads/board1.png'.",
				},
			},
			"required": []any{"image_path"},
		},
	}
}

func (d *DetectTool) Invoke(ctx context.Context, req agent.ToolRequest) (agent.ToolResponse, error) {
	path, err := stringArg(req.Arguments, "image_path")
	if err != nil {
		return agent.ToolResponse{}, err
	}
	path = strings.Trim(path, `"'`)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return agent.ToolResponse{}, pcberrors.Newf("Image file not found at %s", path).
			Component("tools").
			Category(pcberrors.CategoryFileNotFound).
			Build()
	}

	d.logger.Info("detection started", "path", path)
	res, err := d.analyzer.Analyze(ctx, path)
	if err != nil {
		return agent.ToolResponse{}, fmt.Errorf("during defect detection: %w", err)
	}
	if res.Empty() {
		return agent.ToolResponse{
			Content:  "Analysis complete: No defects detected in this image.",
			Metadata: map[string]string{"defects": "0"},
		}, nil
	}

	artifacts, err := res.WriteArtifacts(d.outputDir)
	if err != nil {
		return agent.ToolResponse{}, fmt.Errorf("during defect detection: %w", err)
	}

	var bundle *store.PersistedBundle
	if d.persister != nil {
		note := agentSaveNote
		main, crops := store.UploadsFromResult(res, filepath.Base(path), nil, &note)
		saved, err := d.persister.Persist(ctx, main, crops)
		if err != nil {
			return agent.ToolResponse{}, fmt.Errorf("during defect detection: %w", err)
		}
		bundle = &saved
	}

	meta := map[string]string{
		"defects":   strconv.Itoa(len(res.Detections)),
		"annotated": artifacts.Annotated,
	}
	if bundle != nil {
		meta["main_image_id"] = bundle.MainImage.ID
	}
	return agent.ToolResponse{Content: detectionSummary(path, res, artifacts, bundle), Metadata: meta}, nil
}

func detectionSummary(path string, res vision.Result, artifacts vision.Artifacts, bundle *store.PersistedBundle) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ Analysis complete for `%s`.\n\n", path)
	fmt.Fprintf(&b, "📊 **Total Defects Found: %d**\n\n", len(res.Detections))

	if bundle != nil {
		b.WriteString("**Main Detected Image (stored):**\n")
		fmt.Fprintf(&b, "- ID: `%s`\n", bundle.MainImage.ID)
		fmt.Fprintf(&b, "- URL: %s\n", bundle.MainImage.PublicURL)
		fmt.Fprintf(&b, "- Size: %d x %d\n\n", bundle.MainImage.Width, bundle.MainImage.Height)
	}

	b.WriteString("**Detailed Defect List:**\n")
	urls := cropURLs(bundle, res.Crops)
	for i, c := range res.Crops {
		det := c.Detection
		fmt.Fprintf(&b, "\n**Defect #%d:**\n", i+1)
		fmt.Fprintf(&b, "  - Type: %s\n", det.Class)
		fmt.Fprintf(&b, "  - Confidence: %s\n", vision.Percent(det.Confidence))
		fmt.Fprintf(&b, "  - Location (center): X=%.1f, Y=%.1f\n", det.Center.CX, det.Center.CY)
		fmt.Fprintf(&b, "  - Size: Width=%.1f, Height=%.1f\n", det.Center.W, det.Center.H)
		if urls[i] != "" {
			fmt.Fprintf(&b, "  - Crop URL: %s\n", urls[i])
		}
	}

	b.WriteString("\n\n📂 **Local Visual Evidence:**\n")
	fmt.Fprintf(&b, "- Annotated Full Image: %s\n", artifacts.Annotated)
	fmt.Fprintf(&b, "- Total Cropped Images (local): %d\n", len(artifacts.Crops))
	for i, p := range artifacts.Crops {
		fmt.Fprintf(&b, "  - Crop #%d: %s\n", i+1, p)
	}
	return b.String()
}

// cropURLs pairs every crop with its stored record by class and box. Each
// record is used at most once.
func cropURLs(bundle *store.PersistedBundle, crops []vision.Crop) []string {
	urls := make([]string, len(crops))
	if bundle == nil {
		return urls
	}
	used := make([]bool, len(bundle.Crops))
	for i, c := range crops {
		box := store.BBox{X: c.Box.X, Y: c.Box.Y, W: c.Box.W, H: c.Box.H}
		for j, rec := range bundle.Crops {
			if !used[j] && rec.Prediction == c.Class && rec.BBox == box {
				used[j] = true
				urls[i] = rec.CropPublicURL
				break
			}
		}
	}
	return urls
}
