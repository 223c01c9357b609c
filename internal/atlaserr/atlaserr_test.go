package atlaserr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_WrapsAndUnwraps(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := New(KindBackendUnavailable, "storage.upsert", cause)

	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "backend_unavailable")
	assert.Contains(t, err.Error(), "storage.upsert")
}

func TestIs_MatchesKindAcrossWrapping(t *testing.T) {
	base := New(KindConfig, "ingest.pipeline", errors.New("dimension mismatch: 768 != 1024"))
	wrapped := fmt.Errorf("pipeline precondition failed: %w", base)

	assert.True(t, Is(wrapped, KindConfig))
	assert.False(t, Is(wrapped, KindNotFound))
}

func TestKindOf(t *testing.T) {
	err := Newf(KindValidation, "qntm.validate", "key %q fails grammar", "bad~~key")
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindValidation, kind)

	_, ok = KindOf(errors.New("plain error"))
	assert.False(t, ok)
}

func TestRetryableAndFatal(t *testing.T) {
	assert.True(t, Retryable(New(KindBackendUnavailable, "", nil)))
	assert.False(t, Retryable(New(KindBackendFatal, "", nil)))

	assert.True(t, Fatal(New(KindConfig, "", nil)))
	assert.True(t, Fatal(New(KindBackendFatal, "", nil)))
	assert.False(t, Fatal(New(KindIngest, "", nil)))
}
