package store

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/Protocol-Lattice/pcb-agent/pkg/httpclient"
)

// SupabaseBlobStore uploads through the Supabase Storage REST API.
type SupabaseBlobStore struct {
	client  *httpclient.Client
	baseURL string
	key     string
	bucket  string
}

// NewSupabaseBlobStore requires the project URL and a service role key.
func NewSupabaseBlobStore(client *httpclient.Client, projectURL, serviceKey, bucket string) (*SupabaseBlobStore, error) {
	if strings.TrimSpace(projectURL) == "" || strings.TrimSpace(serviceKey) == "" {
		return nil, errors.New("store: SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY are required")
	}
	if bucket == "" {
		bucket = "pcb-images"
	}
	if client == nil {
		client = httpclient.New(nil)
	}
	return &SupabaseBlobStore{
		client:  client,
		baseURL: strings.TrimRight(projectURL, "/"),
		key:     serviceKey,
		bucket:  bucket,
	}, nil
}

func (s *SupabaseBlobStore) Upload(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.key)
	header.Set("apikey", s.key)
	header.Set("x-upsert", "false")
	target := s.baseURL + "/storage/v1/object/" + s.bucket + "/" + strings.TrimLeft(path, "/")
	if _, err := s.client.Post(ctx, target, contentType, data, header); err != nil {
		return "", err
	}
	return s.PublicURL(path), nil
}

// PublicURL returns the public object URL for path.
func (s *SupabaseBlobStore) PublicURL(path string) string {
	return s.baseURL + "/storage/v1/object/public/" + s.bucket + "/" + strings.TrimLeft(path, "/")
}

var _ BlobStore = (*SupabaseBlobStore)(nil)
