package store

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"io"
	"log/slog"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pcberrors "github.com/Protocol-Lattice/pcb-agent/pkg/errors"
	"github.com/Protocol-Lattice/pcb-agent/pkg/vision"
)

var blobPathPattern = regexp.MustCompile(`^pcb/(main|crops)/[0-9a-f]{32}\.png$`)

type recordingBlobs struct {
	mu      sync.Mutex
	paths   []string
	failOn  int // 1-based upload index that fails; 0 never fails
	timeout bool
}

func (r *recordingBlobs) Upload(ctx context.Context, path string, _ []byte, contentType string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if contentType != "image/png" {
		return "", errors.New("unexpected content type " + contentType)
	}
	if r.timeout {
		if _, ok := ctx.Deadline(); !ok {
			return "", errors.New("no deadline on upload context")
		}
	}
	if r.failOn == len(r.paths)+1 {
		return "", errors.New("bucket unavailable")
	}
	r.paths = append(r.paths, path)
	return "https://cdn.example.com/" + path, nil
}

type failingMeta struct {
	*MemoryStore
	failMain bool
	failCrop bool
	failList bool
}

func (f *failingMeta) InsertMainImage(ctx context.Context, m *MainImage) error {
	if f.failMain {
		return errors.New("relation does not exist")
	}
	return f.MemoryStore.InsertMainImage(ctx, m)
}

func (f *failingMeta) InsertDefectCrop(ctx context.Context, c *DefectCrop) error {
	if f.failCrop {
		return errors.New("check constraint violated")
	}
	return f.MemoryStore.InsertDefectCrop(ctx, c)
}

func (f *failingMeta) ListMainImages(ctx context.Context) ([]MainImage, error) {
	if f.failList {
		return nil, errors.New("connection refused")
	}
	return f.MemoryStore.ListMainImages(ctx)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleCrops(n int) []CropUpload {
	crops := make([]CropUpload, n)
	for i := range crops {
		crops[i] = CropUpload{
			Data:       []byte{byte(i)},
			Width:      300,
			Height:     300,
			Prediction: "short",
			Confidence: 0.5 + float64(i)/10,
			BBox:       BBox{X: 10 * i, Y: 20, W: 30, H: 40},
		}
	}
	return crops
}

func TestPersistStoresMainThenCrops(t *testing.T) {
	blobs := &recordingBlobs{timeout: true}
	meta := NewMemoryStore()
	svc := NewService(blobs, meta, time.Second, quietLogger())

	code := "B-17"
	bundle, err := svc.Persist(context.Background(), MainUpload{
		Data:             []byte("png"),
		Width:            640,
		Height:           480,
		OriginalFilename: "board.jpg",
		BoardCode:        &code,
	}, sampleCrops(2))
	require.NoError(t, err)

	require.Len(t, blobs.paths, 3)
	assert.Regexp(t, `^pcb/main/`, blobs.paths[0])
	for _, p := range blobs.paths {
		assert.Regexp(t, blobPathPattern, p)
	}
	assert.NotEqual(t, blobs.paths[1], blobs.paths[2])

	assert.NotEmpty(t, bundle.MainImage.ID)
	assert.Equal(t, "https://cdn.example.com/"+blobs.paths[0], bundle.MainImage.PublicURL)
	assert.Equal(t, 640, bundle.MainImage.Width)
	assert.Equal(t, "B-17", *bundle.MainImage.BoardCode)
	assert.Nil(t, bundle.MainImage.Note)

	require.Len(t, bundle.Crops, 2)
	assert.Equal(t, 0.6, bundle.Crops[1].Confidence)
	assert.Equal(t, BBox{X: 10, Y: 20, W: 30, H: 40}, bundle.Crops[1].BBox)

	crops, err := meta.ListDefectCrops(context.Background())
	require.NoError(t, err)
	require.Len(t, crops, 2)
	for _, c := range crops {
		assert.Equal(t, bundle.MainImage.ID, c.MainImageID)
	}
}

func TestPersistUploadFailureStopsEarly(t *testing.T) {
	blobs := &recordingBlobs{failOn: 2}
	meta := NewMemoryStore()
	svc := NewService(blobs, meta, 0, quietLogger())

	_, err := svc.Persist(context.Background(), MainUpload{Data: []byte("png")}, sampleCrops(3))
	require.Error(t, err)
	assert.True(t, errors.Is(err, pcberrors.ErrUploadFailed))
	assert.Contains(t, err.Error(), "upload crop 0")

	// Main image record stays behind; no crop was recorded.
	mains, _ := meta.ListMainImages(context.Background())
	assert.Len(t, mains, 1)
	crops, _ := meta.ListDefectCrops(context.Background())
	assert.Empty(t, crops)
}

func TestPersistMainUploadFailureTouchesNothing(t *testing.T) {
	blobs := &recordingBlobs{failOn: 1}
	meta := NewMemoryStore()
	svc := NewService(blobs, meta, 0, quietLogger())

	_, err := svc.Persist(context.Background(), MainUpload{Data: []byte("png")}, sampleCrops(1))
	require.Error(t, err)
	assert.Equal(t, pcberrors.CategoryUploadFailed, pcberrors.CategoryOf(err))

	mains, _ := meta.ListMainImages(context.Background())
	assert.Empty(t, mains)
}

func TestPersistInsertFailures(t *testing.T) {
	t.Run("main", func(t *testing.T) {
		svc := NewService(&recordingBlobs{}, &failingMeta{MemoryStore: NewMemoryStore(), failMain: true}, 0, quietLogger())
		_, err := svc.Persist(context.Background(), MainUpload{Data: []byte("png")}, nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, pcberrors.ErrInsertFailed))
	})
	t.Run("crop", func(t *testing.T) {
		blobs := &recordingBlobs{}
		svc := NewService(blobs, &failingMeta{MemoryStore: NewMemoryStore(), failCrop: true}, 0, quietLogger())
		_, err := svc.Persist(context.Background(), MainUpload{Data: []byte("png")}, sampleCrops(2))
		require.Error(t, err)
		assert.True(t, errors.Is(err, pcberrors.ErrInsertFailed))
		assert.Contains(t, err.Error(), "insert crop 0")
		assert.Len(t, blobs.paths, 2)
	})
}

func TestPersistWithoutCrops(t *testing.T) {
	svc := NewService(&recordingBlobs{}, NewMemoryStore(), 0, quietLogger())
	bundle, err := svc.Persist(context.Background(), MainUpload{Data: []byte("png")}, nil)
	require.NoError(t, err)

	raw, err := json.Marshal(bundle)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"crops":[]`)
}

func TestListDetectionsGroupsCrops(t *testing.T) {
	meta := NewMemoryStore()
	svc := NewService(&recordingBlobs{}, meta, 0, quietLogger())
	ctx := context.Background()

	first, err := svc.Persist(ctx, MainUpload{Data: []byte("a"), OriginalFilename: "a.png"}, sampleCrops(2))
	require.NoError(t, err)
	_, err = svc.Persist(ctx, MainUpload{Data: []byte("b"), OriginalFilename: "b.png"}, nil)
	require.NoError(t, err)

	listing, err := svc.ListDetections(ctx)
	require.NoError(t, err)
	require.Len(t, listing, 2)

	assert.Equal(t, first.MainImage.ID, listing[0].MainImageID)
	assert.Equal(t, "a.png", listing[0].OriginalFilename)
	require.Len(t, listing[0].Defects, 2)
	assert.Equal(t, "short", listing[0].Defects[0].Prediction)

	assert.NotNil(t, listing[1].Defects)
	raw, err := json.Marshal(listing[1])
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"defects":[]`)
	assert.Contains(t, string(raw), `"board_code":null`)
}

func TestListDetectionsEmpty(t *testing.T) {
	svc := NewService(&recordingBlobs{}, NewMemoryStore(), 0, quietLogger())
	listing, err := svc.ListDetections(context.Background())
	require.NoError(t, err)

	raw, err := json.Marshal(listing)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(raw))
}

func TestListDetectionsQueryFailure(t *testing.T) {
	svc := NewService(&recordingBlobs{}, &failingMeta{MemoryStore: NewMemoryStore(), failList: true}, 0, quietLogger())
	_, err := svc.ListDetections(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, pcberrors.ErrQueryFailed))
}

func TestMemoryStoreRejectsOrphanCrop(t *testing.T) {
	err := NewMemoryStore().InsertDefectCrop(context.Background(), &DefectCrop{MainImageID: "missing"})
	assert.Error(t, err)
}

func TestUploadsFromResult(t *testing.T) {
	det := vision.NewDetection("spur", 0.87, vision.CenterBox{CX: 50, CY: 50, W: 20, H: 10})
	res := vision.Result{
		Width:        200,
		Height:       100,
		AnnotatedPNG: []byte("annotated"),
		Crops: []vision.Crop{{
			Detection: det,
			Image:     image.NewRGBA(image.Rect(0, 0, 300, 300)),
			PNG:       []byte("crop"),
		}},
	}
	note := OptionalString("  ")
	main, crops := UploadsFromResult(res, "x.jpg", OptionalString("C1"), note)

	assert.Equal(t, "annotated", string(main.Data))
	assert.Equal(t, 200, main.Width)
	assert.Equal(t, "C1", *main.BoardCode)
	assert.Nil(t, main.Note)

	require.Len(t, crops, 1)
	assert.Equal(t, "spur", crops[0].Prediction)
	assert.Equal(t, 300, crops[0].Width)
	assert.Equal(t, BBox{X: det.Box.X, Y: det.Box.Y, W: det.Box.W, H: det.Box.H}, crops[0].BBox)
}
