package mediacore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidImage(w, h int, r, g, b, a byte) Image {
	buf := make([]byte, w*h*4)
	for i := 0; i < w*h; i++ {
		buf[i*4], buf[i*4+1], buf[i*4+2], buf[i*4+3] = r, g, b, a
	}
	return Image{Buffer: buf, Width: w, Height: h, Format: PixFmtRGBA}
}

func TestVideoTransformFilterEmptyImagePassesThrough(t *testing.T) {
	t.Parallel()
	f := NewVideoTransformFilter(100, 100)
	img := Image{Empty: true}
	assert.Equal(t, img, f.ApplyVideo(img, 0))
}

func TestVideoTransformFilterFitPreservesAspectWithinCanvas(t *testing.T) {
	t.Parallel()
	f := NewVideoTransformFilter(100, 50)
	f.Scale = ScaleFit
	out := f.ApplyVideo(solidImage(200, 100, 255, 0, 0, 255), 0)

	assert.Equal(t, 100, out.Width)
	assert.Equal(t, 50, out.Height)
}

func TestVideoTransformFilterStretchFillsCanvasExactly(t *testing.T) {
	t.Parallel()
	f := NewVideoTransformFilter(80, 60)
	f.Scale = ScaleStretch
	out := f.ApplyVideo(solidImage(40, 40, 0, 255, 0, 255), 0)

	assert.Equal(t, 80, out.Width)
	assert.Equal(t, 60, out.Height)
	assert.Equal(t, byte(255), out.Buffer[3], "top-left canvas pixel is covered by the stretched source")
}

func TestVideoTransformFilterCropShrinksSource(t *testing.T) {
	t.Parallel()
	f := NewVideoTransformFilter(40, 40)
	f.Crop = CropRect{Left: 10, Top: 10, Right: 10, Bottom: 10}
	f.Scale = ScaleStretch

	out := f.ApplyVideo(solidImage(40, 40, 1, 2, 3, 255), 0)
	assert.Equal(t, 40, out.Width)
	assert.Equal(t, 40, out.Height)
}

func TestCurveBundleSampleInterpolatesLinearly(t *testing.T) {
	t.Parallel()
	curves := NewCurveBundle()
	curves.AddKeyPoint("scale_h", 0, 1.0)
	curves.AddKeyPoint("scale_h", 1000, 2.0)

	v, ok := curves.Sample("scale_h", 500)
	require.True(t, ok)
	assert.InDelta(t, 1.5, v, 0.001)

	v, ok = curves.Sample("scale_h", -100)
	require.True(t, ok)
	assert.Equal(t, 1.0, v)

	v, ok = curves.Sample("scale_h", 5000)
	require.True(t, ok)
	assert.Equal(t, 2.0, v)

	_, ok = curves.Sample("unknown", 0)
	assert.False(t, ok)
}

func TestVideoTransformFilterSamplesCurvesBeforeApplying(t *testing.T) {
	t.Parallel()
	f := NewVideoTransformFilter(100, 100)
	f.Scale = ScaleStretch
	f.Curves = NewCurveBundle()
	f.Curves.AddKeyPoint("pos_h", 0, 10)

	f.ApplyVideo(solidImage(20, 20, 5, 5, 5, 255), 0)
	assert.Equal(t, 10, f.PosOffH)
}
