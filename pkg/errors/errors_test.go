package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderMatchesCategorySentinel(t *testing.T) {
	cause := stderrors.New("dial tcp: timeout")
	err := New(cause).
		Component("vision").
		Category(CategoryBackendUnavailable).
		Context("backend", "roboflow").
		Build()

	assert.True(t, Is(err, ErrBackendUnavailable))
	assert.False(t, Is(err, ErrFileNotFound))
	assert.True(t, Is(err, cause), "cause must stay reachable")
	assert.Equal(t, "dial tcp: timeout", err.Error())
	assert.Equal(t, "vision", err.GetComponent())
	assert.Equal(t, map[string]any{"backend": "roboflow"}, err.GetContext())
}

func TestWrappedEnhancedErrorKeepsCategory(t *testing.T) {
	inner := Newf("bucket %s rejected upload", "pcb-images").Category(CategoryUploadFailed).Build()
	wrapped := fmt.Errorf("store: persist main image: %w", inner)

	require.True(t, Is(wrapped, ErrUploadFailed))
	assert.Equal(t, CategoryUploadFailed, CategoryOf(wrapped))

	var ee *EnhancedError
	require.True(t, As(wrapped, &ee))
	assert.Contains(t, ee.LogAttrs(), "upload-failed")
}

func TestCategoryOfPlainError(t *testing.T) {
	assert.Equal(t, CategoryGeneric, CategoryOf(stderrors.New("plain")))
	assert.Equal(t, CategoryGeneric, CategoryOf(nil))
}

func TestNewWithNilCause(t *testing.T) {
	err := New(nil).Category(CategoryMissingCredential).Build()
	assert.Equal(t, "unknown error", err.Error())
	assert.True(t, Is(err, ErrMissingCredential))
}
