package mediacore

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
)

type ScaleMode int

const (
	ScaleFit ScaleMode = iota
	ScaleCrop
	ScaleFill
	ScaleStretch
)

// CropRect is offsets in input pixels (spec §4.7 "Crop").
type CropRect struct{ Left, Top, Right, Bottom int }

// CurveBundle samples named key-point curves at arbitrary timeline
// positions (design note "Key-point curve sampling"); unknown names are
// ignored so adding curves stays backward compatible.
type CurveBundle struct {
	points map[string][]curvePoint
}

type curvePoint struct {
	posMS int64
	value float64
}

func NewCurveBundle() *CurveBundle { return &CurveBundle{points: map[string][]curvePoint{}} }

func (c *CurveBundle) AddKeyPoint(name string, posMS int64, value float64) {
	c.points[name] = append(c.points[name], curvePoint{posMS, value})
}

// Sample returns the linearly-interpolated value of name at posMS, or ok=false
// if the curve is unknown.
func (c *CurveBundle) Sample(name string, posMS int64) (float64, bool) {
	pts := c.points[name]
	if len(pts) == 0 {
		return 0, false
	}
	if posMS <= pts[0].posMS {
		return pts[0].value, true
	}
	if posMS >= pts[len(pts)-1].posMS {
		return pts[len(pts)-1].value, true
	}
	for i := 1; i < len(pts); i++ {
		if posMS <= pts[i].posMS {
			span := float64(pts[i].posMS - pts[i-1].posMS)
			if span <= 0 {
				return pts[i].value, true
			}
			t := float64(posMS-pts[i-1].posMS) / span
			return pts[i-1].value + t*(pts[i].value-pts[i-1].value), true
		}
	}
	return pts[len(pts)-1].value, true
}

// VideoTransformFilter implements spec §4.7's fixed Crop -> Scale ->
// Rotate -> Position pipeline over a fixed output canvas, using
// golang.org/x/image/draw for the affine scale/rotate kernels.
type VideoTransformFilter struct {
	Crop CropRect

	Scale      ScaleMode
	ScaleH     float64
	ScaleV     float64

	RotateDeg float64

	PosOffH, PosOffV int

	OutW, OutH int

	Curves *CurveBundle
}

func NewVideoTransformFilter(outW, outH int) *VideoTransformFilter {
	return &VideoTransformFilter{Scale: ScaleFit, ScaleH: 1, ScaleV: 1, OutW: outW, OutH: outH}
}

func (f *VideoTransformFilter) Clone() Filter {
	clone := *f
	return &clone
}

func (f *VideoTransformFilter) ApplyAudio(b AudioBlock, posMS int64) AudioBlock { return b }

// ApplyVideo runs the fixed pipeline, skipping any stage at identity
// parameters, and samples key-point curves before each stage if a
// CurveBundle is attached (spec §4.7).
func (f *VideoTransformFilter) ApplyVideo(img Image, posMS int64) Image {
	if img.Empty || img.Width == 0 || img.Height == 0 {
		return img
	}
	f.sampleCurves(posMS)

	src := toRGBAImage(img)
	if !f.cropIsIdentity() {
		src = cropStage(src, f.Crop)
	}
	src = f.scaleStage(src)
	if f.RotateDeg != 0 {
		src = rotateStage(src, f.RotateDeg)
	}
	out := f.positionStage(src)
	return fromRGBAImage(out, img.TimeStampMS)
}

func (f *VideoTransformFilter) sampleCurves(posMS int64) {
	if f.Curves == nil {
		return
	}
	if v, ok := f.Curves.Sample("scale_h", posMS); ok {
		f.ScaleH = v
	}
	if v, ok := f.Curves.Sample("scale_v", posMS); ok {
		f.ScaleV = v
	}
	if v, ok := f.Curves.Sample("rotate_deg", posMS); ok {
		f.RotateDeg = v
	}
	if v, ok := f.Curves.Sample("pos_h", posMS); ok {
		f.PosOffH = int(v)
	}
	if v, ok := f.Curves.Sample("pos_v", posMS); ok {
		f.PosOffV = int(v)
	}
}

func (f *VideoTransformFilter) cropIsIdentity() bool {
	return f.Crop == CropRect{}
}

func cropStage(src *image.RGBA, c CropRect) *image.RGBA {
	b := src.Bounds()
	out := image.NewRGBA(b)
	inner := image.Rect(b.Min.X+c.Left, b.Min.Y+c.Top, b.Max.X-c.Right, b.Max.Y-c.Bottom)
	draw.Draw(out, inner, src, inner.Min, draw.Src)
	return out
}

// scaleStage computes the effective scale so the fitted image lands on
// the output canvas (spec §4.7 "Scale"), honoring Fit/Crop/Fill/Stretch.
func (f *VideoTransformFilter) scaleStage(src *image.RGBA) *image.RGBA {
	b := src.Bounds()
	inW, inH := b.Dx(), b.Dy()
	if inW == 0 || inH == 0 || f.OutW == 0 || f.OutH == 0 {
		return src
	}
	var targetW, targetH int
	switch f.Scale {
	case ScaleStretch:
		targetW, targetH = f.OutW, f.OutH
	case ScaleFill:
		s := math.Max(float64(f.OutW)/float64(inW), float64(f.OutH)/float64(inH))
		targetW, targetH = int(float64(inW)*s), int(float64(inH)*s)
	case ScaleCrop:
		s := math.Max(float64(f.OutW)/float64(inW), float64(f.OutH)/float64(inH))
		targetW, targetH = int(float64(inW)*s), int(float64(inH)*s)
	default: // ScaleFit
		s := math.Min(float64(f.OutW)/float64(inW), float64(f.OutH)/float64(inH))
		targetW, targetH = int(float64(inW)*s), int(float64(inH)*s)
	}
	targetW = int(float64(targetW) * f.ScaleH)
	targetH = int(float64(targetH) * f.ScaleV)
	if targetW < 1 {
		targetW = 1
	}
	if targetH < 1 {
		targetH = 1
	}
	if targetW == inW && targetH == inH {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

// rotateStage expands the canvas to the diagonal bounding box with
// transparent fill (spec §4.7 "Rotate").
func rotateStage(src *image.RGBA, deg float64) *image.RGBA {
	b := src.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())
	rad := deg * math.Pi / 180
	cos, sin := math.Abs(math.Cos(rad)), math.Abs(math.Sin(rad))
	newW := int(w*cos + h*sin)
	newH := int(w*sin + h*cos)
	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	cx, cy := float64(newW)/2, float64(newH)/2
	srcCx, srcCy := w/2, h/2
	invCos, invSin := math.Cos(-rad), math.Sin(-rad)
	for y := 0; y < newH; y++ {
		for x := 0; x < newW; x++ {
			dx, dy := float64(x)-cx, float64(y)-cy
			sx := dx*invCos - dy*invSin + srcCx
			sy := dx*invSin + dy*invCos + srcCy
			if sx < 0 || sy < 0 || int(sx) >= b.Dx() || int(sy) >= b.Dy() {
				continue
			}
			dst.Set(x, y, src.At(b.Min.X+int(sx), b.Min.Y+int(sy)))
		}
	}
	return dst
}

// positionStage overlays src onto an OutW x OutH canvas centred plus
// offsets, clipping pixels outside the canvas (spec §4.7 "Position").
func (f *VideoTransformFilter) positionStage(src *image.RGBA) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, f.OutW, f.OutH))
	draw.Draw(out, out.Bounds(), &image.Uniform{C: color.RGBA{}}, image.Point{}, draw.Src)
	b := src.Bounds()
	ox := (f.OutW-b.Dx())/2 + f.PosOffH
	oy := (f.OutH-b.Dy())/2 + f.PosOffV
	dstRect := image.Rect(ox, oy, ox+b.Dx(), oy+b.Dy())
	draw.Draw(out, dstRect, src, b.Min, draw.Over)
	return out
}

func toRGBAImage(img Image) *image.RGBA {
	r := image.NewRGBA(image.Rect(0, 0, img.Width, img.Height))
	copy(r.Pix, img.Buffer)
	return r
}

func fromRGBAImage(r *image.RGBA, ts int64) Image {
	b := r.Bounds()
	return Image{Buffer: append([]byte(nil), r.Pix...), Width: b.Dx(), Height: b.Dy(), Format: PixFmtRGBA, TimeStampMS: ts}
}
