package mediacore

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMediaErrorUnwrap(t *testing.T) {
	t.Parallel()
	cause := errors.New("boom")
	err := newErr(KindDecodeFailure, "OpenFormat", "bad header", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "decode_failure")
	assert.Contains(t, err.Error(), "OpenFormat")
	assert.Contains(t, err.Error(), "boom")
}

func TestMediaErrorWithoutCause(t *testing.T) {
	t.Parallel()
	err := newErr(KindInvalidArgument, "NewImageClip", "duration must be > 0", nil)
	assert.NotContains(t, err.Error(), "%!")
	assert.Nil(t, err.Unwrap())
}

func TestIsKind(t *testing.T) {
	t.Parallel()
	err := newErr(KindEOF, "ReadVideoFrame", "end of stream", nil)
	assert.True(t, IsKind(err, KindEOF))
	assert.False(t, IsKind(err, KindSuspended))
	assert.False(t, IsKind(fmt.Errorf("plain error"), KindEOF))
}

func TestErrorKindString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "resource_exhausted", KindResourceExhausted.String())
	assert.Equal(t, "unknown", ErrorKind(999).String())
}
