package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps records in process. Used for tests and dry runs.
type MemoryStore struct {
	mu    sync.RWMutex
	mains []MainImage
	crops []DefectCrop
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: func() time.Time { return time.Now().UTC() }}
}

func (m *MemoryStore) InsertMainImage(ctx context.Context, img *MainImage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	img.ID = uuid.NewString()
	img.CreatedAt = m.now()
	m.mains = append(m.mains, *img)
	return nil
}

func (m *MemoryStore) InsertDefectCrop(ctx context.Context, c *DefectCrop) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	found := false
	for _, main := range m.mains {
		if main.ID == c.MainImageID {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("main image %q does not exist", c.MainImageID)
	}
	c.ID = uuid.NewString()
	c.CreatedAt = m.now()
	m.crops = append(m.crops, *c)
	return nil
}

func (m *MemoryStore) ListMainImages(ctx context.Context) ([]MainImage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]MainImage(nil), m.mains...), ctx.Err()
}

func (m *MemoryStore) ListDefectCrops(ctx context.Context) ([]DefectCrop, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]DefectCrop(nil), m.crops...), ctx.Err()
}

func (m *MemoryStore) Close() error { return nil }

var _ MetadataStore = (*MemoryStore)(nil)
