package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	pcberrors "github.com/Protocol-Lattice/pcb-agent/pkg/errors"
	"github.com/Protocol-Lattice/pcb-agent/pkg/vision"
)

const (
	mainFolder = "pcb/main"
	cropFolder = "pcb/crops"
)

// Service coordinates blob uploads and metadata inserts.
type Service struct {
	blobs   BlobStore
	meta    MetadataStore
	timeout time.Duration
	logger  *slog.Logger
}

// NewService wires the two stores. timeout bounds each individual upload or query.
func NewService(blobs BlobStore, meta MetadataStore, timeout time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{blobs: blobs, meta: meta, timeout: timeout, logger: logger.With("component", "store")}
}

func (s *Service) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// blobPath returns "<folder>/<32 hex chars>.png".
func blobPath(folder string) string {
	return folder + "/" + strings.ReplaceAll(uuid.NewString(), "-", "") + ".png"
}

// Persist uploads and records the main image, then every crop in order. The
// first failure aborts; blobs already uploaded stay behind and are logged.
func (s *Service) Persist(ctx context.Context, main MainUpload, crops []CropUpload) (PersistedBundle, error) {
	var uploaded []string
	fail := func(category pcberrors.ErrorCategory, err error) (PersistedBundle, error) {
		if len(uploaded) > 0 {
			s.logger.Warn("persist aborted, orphaned blobs left in storage", "paths", uploaded, "error", err)
		}
		return PersistedBundle{}, pcberrors.New(err).
			Component("store").
			Category(category).
			Build()
	}

	mainPath := blobPath(mainFolder)
	mainURL, err := s.upload(ctx, mainPath, main.Data)
	if err != nil {
		return fail(pcberrors.CategoryUploadFailed, fmt.Errorf("upload main image: %w", err))
	}
	uploaded = append(uploaded, mainPath)

	record := MainImage{
		StoragePath:      mainPath,
		PublicURL:        mainURL,
		Width:            main.Width,
		Height:           main.Height,
		OriginalFilename: main.OriginalFilename,
		BoardCode:        main.BoardCode,
		Note:             main.Note,
	}
	if err := s.insertMain(ctx, &record); err != nil {
		return fail(pcberrors.CategoryInsertFailed, fmt.Errorf("insert main image: %w", err))
	}

	bundle := PersistedBundle{
		MainImage: MainImagePayload{
			ID:               record.ID,
			StoragePath:      record.StoragePath,
			PublicURL:        record.PublicURL,
			Width:            record.Width,
			Height:           record.Height,
			OriginalFilename: record.OriginalFilename,
			BoardCode:        record.BoardCode,
			Note:             record.Note,
		},
		Crops: make([]CropPayload, 0, len(crops)),
	}

	for i, c := range crops {
		path := blobPath(cropFolder)
		url, err := s.upload(ctx, path, c.Data)
		if err != nil {
			return fail(pcberrors.CategoryUploadFailed, fmt.Errorf("upload crop %d: %w", i, err))
		}
		uploaded = append(uploaded, path)

		crop := DefectCrop{
			MainImageID:     record.ID,
			CropStoragePath: path,
			CropPublicURL:   url,
			CropWidth:       c.Width,
			CropHeight:      c.Height,
			Prediction:      c.Prediction,
			Confidence:      c.Confidence,
			BBox:            c.BBox,
		}
		if err := s.insertCrop(ctx, &crop); err != nil {
			return fail(pcberrors.CategoryInsertFailed, fmt.Errorf("insert crop %d: %w", i, err))
		}
		bundle.Crops = append(bundle.Crops, CropPayload{
			ID:              crop.ID,
			CropStoragePath: crop.CropStoragePath,
			CropPublicURL:   crop.CropPublicURL,
			Width:           crop.CropWidth,
			Height:          crop.CropHeight,
			Prediction:      crop.Prediction,
			Confidence:      crop.Confidence,
			BBox:            crop.BBox,
		})
	}

	s.logger.Info("detection persisted", "main_image_id", record.ID, "crops", len(bundle.Crops))
	return bundle, nil
}

func (s *Service) upload(ctx context.Context, path string, data []byte) (string, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	return s.blobs.Upload(ctx, path, data, "image/png")
}

func (s *Service) insertMain(ctx context.Context, m *MainImage) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	return s.meta.InsertMainImage(ctx, m)
}

func (s *Service) insertCrop(ctx context.Context, c *DefectCrop) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	return s.meta.InsertDefectCrop(ctx, c)
}

// ListDetections returns every main image with its crops grouped beneath it.
func (s *Service) ListDetections(ctx context.Context) ([]DetectionListing, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	mains, err := s.meta.ListMainImages(ctx)
	if err != nil {
		return nil, queryFailed(fmt.Errorf("list main images: %w", err))
	}
	crops, err := s.meta.ListDefectCrops(ctx)
	if err != nil {
		return nil, queryFailed(fmt.Errorf("list defect crops: %w", err))
	}

	byMain := make(map[string][]DefectListing, len(mains))
	for _, c := range crops {
		byMain[c.MainImageID] = append(byMain[c.MainImageID], DefectListing{
			ID:         c.ID,
			Prediction: c.Prediction,
			Confidence: c.Confidence,
			BBox:       c.BBox,
			Timestamp:  c.CreatedAt,
		})
	}

	out := make([]DetectionListing, 0, len(mains))
	for _, m := range mains {
		defects := byMain[m.ID]
		if defects == nil {
			defects = []DefectListing{}
		}
		out = append(out, DetectionListing{
			MainImageID:      m.ID,
			MainImageURL:     m.PublicURL,
			StoragePath:      m.StoragePath,
			OriginalFilename: m.OriginalFilename,
			BoardCode:        m.BoardCode,
			Note:             m.Note,
			Timestamp:        m.CreatedAt,
			Defects:          defects,
		})
	}
	return out, nil
}

// Close releases the metadata store.
func (s *Service) Close() error {
	return s.meta.Close()
}

func queryFailed(err error) error {
	return pcberrors.New(err).
		Component("store").
		Category(pcberrors.CategoryQueryFailed).
		Build()
}

// UploadsFromResult converts a vision result into the uploads Persist expects.
func UploadsFromResult(res vision.Result, originalFilename string, boardCode, note *string) (MainUpload, []CropUpload) {
	main := MainUpload{
		Data:             res.AnnotatedPNG,
		Width:            res.Width,
		Height:           res.Height,
		OriginalFilename: originalFilename,
		BoardCode:        boardCode,
		Note:             note,
	}
	crops := make([]CropUpload, 0, len(res.Crops))
	for _, c := range res.Crops {
		crops = append(crops, CropUpload{
			Data:       c.PNG,
			Width:      c.Image.Bounds().Dx(),
			Height:     c.Image.Bounds().Dy(),
			Prediction: c.Class,
			Confidence: c.Confidence,
			BBox:       BBox{X: c.Box.X, Y: c.Box.Y, W: c.Box.W, H: c.Box.H},
		})
	}
	return main, crops
}

// OptionalString returns nil for blank input.
func OptionalString(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
