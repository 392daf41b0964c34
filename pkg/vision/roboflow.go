package vision

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	pcberrors "github.com/Protocol-Lattice/pcb-agent/pkg/errors"
	"github.com/Protocol-Lattice/pcb-agent/pkg/httpclient"
)

// DefaultRoboflowURL is the hosted inference endpoint.
const DefaultRoboflowURL = "https://detect.roboflow.com"

// RoboflowConfig selects the hosted model.
type RoboflowConfig struct {
	APIURL  string
	APIKey  string
	ModelID string
}

// RoboflowDetector calls Roboflow hosted inference.
type RoboflowDetector struct {
	client   *httpclient.Client
	endpoint string
	apiKey   string
	logger   *slog.Logger
}

type roboflowResponse struct {
	Image struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"image"`
	Predictions []struct {
		X          float64 `json:"x"`
		Y          float64 `json:"y"`
		Width      float64 `json:"width"`
		Height     float64 `json:"height"`
		Confidence float64 `json:"confidence"`
		Class      string  `json:"class"`
	} `json:"predictions"`
}

// NewRoboflowDetector validates cfg. client may be nil.
func NewRoboflowDetector(cfg RoboflowConfig, client *httpclient.Client, logger *slog.Logger) (*RoboflowDetector, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, pcberrors.Newf("roboflow: ROBOFLOW_API_KEY is not set").
			Component("vision").
			Category(pcberrors.CategoryMissingCredential).
			Build()
	}
	if strings.TrimSpace(cfg.ModelID) == "" {
		return nil, pcberrors.Newf("roboflow: ROBOFLOW_MODEL_ID is not set").
			Component("vision").
			Category(pcberrors.CategoryConfiguration).
			Build()
	}
	base := strings.TrimRight(cfg.APIURL, "/")
	if base == "" {
		base = DefaultRoboflowURL
	}
	if client == nil {
		client = httpclient.New(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RoboflowDetector{
		client:   client,
		endpoint: base + "/" + strings.Trim(cfg.ModelID, "/"),
		apiKey:   cfg.APIKey,
		logger:   logger.With("component", "vision", "backend", "roboflow"),
	}, nil
}

// Detect posts the base64-encoded image and converts the center-format predictions.
func (r *RoboflowDetector) Detect(ctx context.Context, in Input) ([]Detection, error) {
	if len(in.Data) == 0 {
		return nil, fmt.Errorf("roboflow: no image data for %s", in.Path)
	}
	body := base64.StdEncoding.EncodeToString(in.Data)
	target := r.endpoint + "?api_key=" + url.QueryEscape(r.apiKey)

	var resp roboflowResponse
	raw, err := r.client.Post(ctx, target, "application/x-www-form-urlencoded", []byte(body), nil)
	if err == nil {
		err = decodeJSON(raw, &resp)
	}
	if err != nil {
		return nil, pcberrors.New(fmt.Errorf("roboflow inference: %w", err)).
			Component("vision").
			Category(pcberrors.CategoryBackendUnavailable).
			Context("backend", "roboflow").
			Build()
	}

	dets := make([]Detection, 0, len(resp.Predictions))
	for _, p := range resp.Predictions {
		dets = append(dets, NewDetection(p.Class, p.Confidence, CenterBox{CX: p.X, CY: p.Y, W: p.Width, H: p.Height}))
	}
	r.logger.Debug("inference complete", "predictions", len(dets), "image_width", resp.Image.Width, "image_height", resp.Image.Height)
	return dets, nil
}

// Unavailable returns a Detector that always fails with cause. It stands in for
// a backend that could not be configured so the rest of the system still starts.
func Unavailable(cause error) Detector {
	return DetectorFunc(func(context.Context, Input) ([]Detection, error) {
		return nil, pcberrors.New(cause).
			Component("vision").
			Category(pcberrors.CategoryBackendUnavailable).
			Build()
	})
}

var _ Detector = (*RoboflowDetector)(nil)
