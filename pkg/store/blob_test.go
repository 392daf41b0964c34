package store

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Protocol-Lattice/pcb-agent/pkg/httpclient"
)

func TestSupabaseUpload(t *testing.T) {
	client := httpclient.New(nil)
	httpmock.ActivateNonDefault(client.StandardClient())
	t.Cleanup(httpmock.DeactivateAndReset)

	httpmock.RegisterResponder(http.MethodPost, "https://proj.supabase.co/storage/v1/object/pcb-images/pcb/main/abc.png",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "Bearer service-key", req.Header.Get("Authorization"))
			assert.Equal(t, "service-key", req.Header.Get("apikey"))
			assert.Equal(t, "image/png", req.Header.Get("Content-Type"))
			return httpmock.NewStringResponse(http.StatusOK, `{"Key":"pcb-images/pcb/main/abc.png"}`), nil
		})

	blobs, err := NewSupabaseBlobStore(client, "https://proj.supabase.co/", "service-key", "")
	require.NoError(t, err)

	url, err := blobs.Upload(context.Background(), "pcb/main/abc.png", []byte("png"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "https://proj.supabase.co/storage/v1/object/public/pcb-images/pcb/main/abc.png", url)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestSupabaseUploadFailure(t *testing.T) {
	client := httpclient.New(nil)
	httpmock.ActivateNonDefault(client.StandardClient())
	t.Cleanup(httpmock.DeactivateAndReset)

	httpmock.RegisterResponder(http.MethodPost, `=~^https://proj\.supabase\.co/storage/`,
		httpmock.NewStringResponder(http.StatusBadRequest, `{"error":"Bucket not found"}`))

	blobs, err := NewSupabaseBlobStore(client, "https://proj.supabase.co", "k", "missing")
	require.NoError(t, err)

	_, err = blobs.Upload(context.Background(), "pcb/main/x.png", []byte("png"), "image/png")
	require.Error(t, err)
	var se *httpclient.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
}

func TestSupabaseRequiresCredentials(t *testing.T) {
	_, err := NewSupabaseBlobStore(nil, "", "key", "")
	assert.Error(t, err)
	_, err = NewSupabaseBlobStore(nil, "https://proj.supabase.co", " ", "")
	assert.Error(t, err)
}

func TestFSBlobStore(t *testing.T) {
	dir := t.TempDir()
	blobs, err := NewFSBlobStore(dir, "http://localhost:8000/files/")
	require.NoError(t, err)

	url, err := blobs.Upload(context.Background(), "pcb/crops/abc.png", []byte("data"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000/files/pcb/crops/abc.png", url)

	got, err := os.ReadFile(filepath.Join(dir, "pcb", "crops", "abc.png"))
	require.NoError(t, err)
	assert.Equal(t, "data", string(got))
}

func TestFSBlobStoreStaysInsideRoot(t *testing.T) {
	dir := t.TempDir()
	blobs, err := NewFSBlobStore(dir, "")
	require.NoError(t, err)

	url, err := blobs.Upload(context.Background(), "../../escape.png", []byte("x"), "image/png")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "file://"))

	_, err = os.Stat(filepath.Join(dir, "escape.png"))
	assert.NoError(t, err)
}
