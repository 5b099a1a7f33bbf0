package backend

import (
	"testing"

	"github.com/intuitionamiga/mediacore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidBackendImage(w, h int, r, g, b, a byte) mediacore.Image {
	buf := make([]byte, w*h*4)
	for i := 0; i < w*h; i++ {
		buf[i*4], buf[i*4+1], buf[i*4+2], buf[i*4+3] = r, g, b, a
	}
	return mediacore.Image{Buffer: buf, Width: w, Height: h, Format: mediacore.PixFmtRGBA}
}

func TestCPUBlenderPassesThroughEmptyOverlay(t *testing.T) {
	t.Parallel()
	b := &CPUBlender{}
	base := solidBackendImage(4, 4, 10, 10, 10, 255)
	out, err := b.Blend(base, mediacore.Image{Empty: true}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, base.Buffer, out.Buffer)
}

func TestCPUBlenderOpaqueOverlayFullyReplacesSameSizeBase(t *testing.T) {
	t.Parallel()
	b := &CPUBlender{}
	base := solidBackendImage(4, 4, 10, 20, 30, 255)
	overlay := solidBackendImage(4, 4, 200, 150, 100, 255)

	out, err := b.Blend(base, overlay, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, byte(200), out.Buffer[0])
	assert.Equal(t, byte(150), out.Buffer[1])
	assert.Equal(t, byte(100), out.Buffer[2])
}

func TestCPUBlenderTransparentOverlayLeavesBaseUnchanged(t *testing.T) {
	t.Parallel()
	b := &CPUBlender{}
	base := solidBackendImage(4, 4, 10, 20, 30, 255)
	overlay := solidBackendImage(4, 4, 200, 150, 100, 0)

	out, err := b.Blend(base, overlay, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, byte(10), out.Buffer[0])
	assert.Equal(t, byte(20), out.Buffer[1])
	assert.Equal(t, byte(30), out.Buffer[2])
}

func TestCPUBlenderHalfAlphaAverages(t *testing.T) {
	t.Parallel()
	b := &CPUBlender{}
	base := solidBackendImage(2, 2, 0, 0, 0, 255)
	overlay := solidBackendImage(2, 2, 200, 200, 200, 128)

	out, err := b.Blend(base, overlay, 0, 0)
	require.NoError(t, err)
	// a = 128/255 ~ 0.502, so dst ~ 200*0.502 + 0*0.498 ~ 100.
	assert.InDelta(t, 100, int(out.Buffer[0]), 3)
}

func TestCPUBlenderPositionedOverlayClipsToBaseBounds(t *testing.T) {
	t.Parallel()
	b := &CPUBlender{}
	base := solidBackendImage(4, 4, 0, 0, 0, 255)
	overlay := solidBackendImage(2, 2, 255, 255, 255, 255)

	out, err := b.Blend(base, overlay, 3, 3) // only the top-left overlay pixel lands in bounds
	require.NoError(t, err)

	// Pixel (3,3) should now be white; pixel (0,0) should be untouched.
	idx := (3*4 + 3) * 4
	assert.Equal(t, byte(255), out.Buffer[idx])
	assert.Equal(t, byte(0), out.Buffer[0])
}

func TestCPUBlenderLargeFrameSplitsIntoStripsWithoutCorruption(t *testing.T) {
	t.Parallel()
	b := &CPUBlender{}
	base := solidBackendImage(10, 200, 0, 0, 0, 255) // > stripHeight(60) rows
	overlay := solidBackendImage(10, 200, 90, 90, 90, 255)

	out, err := b.Blend(base, overlay, 0, 0)
	require.NoError(t, err)
	for row := 0; row < 200; row += 37 {
		idx := row * 10 * 4
		assert.Equal(t, byte(90), out.Buffer[idx], "row %d", row)
	}
}
