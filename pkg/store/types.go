// Package store persists analyzed boards: image blobs go to a BlobStore and
// their records to a MetadataStore.
package store

import (
	"context"
	"time"
)

// BBox is a corner-format bounding box in source image pixels.
type BBox struct {
	X int `json:"x" bson:"x"`
	Y int `json:"y" bson:"y"`
	W int `json:"w" bson:"w"`
	H int `json:"h" bson:"h"`
}

// MainImage is the stored annotated board image.
type MainImage struct {
	ID               string
	StoragePath      string
	PublicURL        string
	Width            int
	Height           int
	OriginalFilename string
	BoardCode        *string
	Note             *string
	CreatedAt        time.Time
}

// DefectCrop is one stored defect crop. MainImageID always references an existing MainImage.
type DefectCrop struct {
	ID              string
	MainImageID     string
	CropStoragePath string
	CropPublicURL   string
	CropWidth       int
	CropHeight      int
	Prediction      string
	Confidence      float64
	BBox            BBox
	CreatedAt       time.Time
}

// BlobStore uploads image bytes and returns their public URL.
type BlobStore interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) (string, error)
}

// MetadataStore records images and crops. Insert methods assign ID and CreatedAt.
type MetadataStore interface {
	InsertMainImage(ctx context.Context, m *MainImage) error
	InsertDefectCrop(ctx context.Context, c *DefectCrop) error
	ListMainImages(ctx context.Context) ([]MainImage, error)
	ListDefectCrops(ctx context.Context) ([]DefectCrop, error)
	Close() error
}

// MainUpload is the annotated image to persist.
type MainUpload struct {
	Data             []byte
	Width            int
	Height           int
	OriginalFilename string
	BoardCode        *string
	Note             *string
}

// CropUpload is one defect crop to persist.
type CropUpload struct {
	Data       []byte
	Width      int
	Height     int
	Prediction string
	Confidence float64
	BBox       BBox
}

// MainImagePayload is the main image section of a persisted bundle.
type MainImagePayload struct {
	ID               string  `json:"id"`
	StoragePath      string  `json:"storage_path"`
	PublicURL        string  `json:"public_url"`
	Width            int     `json:"width"`
	Height           int     `json:"height"`
	OriginalFilename string  `json:"original_filename"`
	BoardCode        *string `json:"board_code"`
	Note             *string `json:"note"`
}

// CropPayload describes one persisted crop.
type CropPayload struct {
	ID              string  `json:"id"`
	CropStoragePath string  `json:"crop_storage_path"`
	CropPublicURL   string  `json:"crop_public_url"`
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	Prediction      string  `json:"prediction"`
	Confidence      float64 `json:"confidence"`
	BBox            BBox    `json:"bbox"`
}

// PersistedBundle is returned by Service.Persist.
type PersistedBundle struct {
	MainImage MainImagePayload `json:"main_image"`
	Crops     []CropPayload    `json:"crops"`
}

// DefectListing is one defect under a listed main image.
type DefectListing struct {
	ID         string    `json:"id"`
	Prediction string    `json:"prediction"`
	Confidence float64   `json:"confidence"`
	BBox       BBox      `json:"bbox"`
	Timestamp  time.Time `json:"timestamp"`
}

// DetectionListing groups the crops of one main image. Defects is never nil.
type DetectionListing struct {
	MainImageID      string          `json:"main_image_id"`
	MainImageURL     string          `json:"main_image_url"`
	StoragePath      string          `json:"storage_path"`
	OriginalFilename string          `json:"original_filename"`
	BoardCode        *string         `json:"board_code"`
	Note             *string         `json:"note"`
	Timestamp        time.Time       `json:"timestamp"`
	Defects          []DefectListing `json:"defects"`
}
