package mediacore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// These exercise the capability-factory pattern (spec §6) in isolation:
// the root package never imports backend/, so no factory is ever
// registered in this test binary and every constructor must report
// KindNotConfigured rather than panic on a nil factory.

func TestNewCodecErrorsWithoutRegisteredBackend(t *testing.T) {
	_, err := NewCodec()
	requireNotConfigured(t, err)
}

func TestNewAudioSinkErrorsWithoutRegisteredBackend(t *testing.T) {
	_, err := NewAudioSink()
	requireNotConfigured(t, err)
}

func TestNewMuxerEncoderErrorsWithoutRegisteredBackend(t *testing.T) {
	_, err := NewMuxerEncoder("/tmp/out.mp4")
	requireNotConfigured(t, err)
}

func TestNewTextureUploaderReturnsNilWithoutRegisteredBackend(t *testing.T) {
	assert.Nil(t, NewTextureUploader())
}

func requireNotConfigured(t *testing.T, err error) {
	t.Helper()
	assert.Error(t, err)
	assert.True(t, IsKind(err, KindNotConfigured))
}
