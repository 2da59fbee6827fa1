package classify

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/ayusman/abhinaya/internal/detector"
)

// Raster sizes shared with the classifier service.
const (
	RegionSize     = 224
	ExpressionSize = 48
	// RegionPadding is the fraction of the face box added on each side.
	RegionPadding = 0.10
)

// ErrEmptyRegion is returned when a face box has no pixels inside the frame.
var ErrEmptyRegion = errors.New("classify: empty face region")

// Raster is the face crop fed to both classifiers.
type Raster struct {
	// RGB is RegionSize x RegionSize x 3, row-major.
	RGB []byte
	// Gray is ExpressionSize x ExpressionSize, scaled to [0,1].
	Gray []float32
}

// Rasterizer crops a normalized box out of a frame.
type Rasterizer interface {
	Rasterize(frame *gocv.Mat, box detector.Box) (*Raster, error)
}

// PaddedBox grows box by pad of its size on each side and clamps it to the
// unit square.
func PaddedBox(box detector.Box, pad float64) detector.Box {
	dx := box.Width() * pad
	dy := box.Height() * pad
	return detector.Box{
		MinX: clamp01(box.MinX - dx),
		MinY: clamp01(box.MinY - dy),
		MaxX: clamp01(box.MaxX + dx),
		MaxY: clamp01(box.MaxY + dy),
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// pixelRect converts a normalized box to a pixel rectangle inside cols x rows.
func pixelRect(box detector.Box, cols, rows int) image.Rectangle {
	r := image.Rect(
		int(box.MinX*float64(cols)),
		int(box.MinY*float64(rows)),
		int(box.MaxX*float64(cols)),
		int(box.MaxY*float64(rows)),
	)
	return r.Intersect(image.Rect(0, 0, cols, rows))
}

// GocvRasterizer crops and resamples BGR frames with OpenCV.
type GocvRasterizer struct{}

// Rasterize implements Rasterizer.
func (GocvRasterizer) Rasterize(frame *gocv.Mat, box detector.Box) (*Raster, error) {
	if frame == nil || frame.Empty() {
		return nil, ErrEmptyRegion
	}
	if frame.Channels() != 3 {
		return nil, fmt.Errorf("classify: want 3-channel frame, got %d", frame.Channels())
	}

	rect := pixelRect(box, frame.Cols(), frame.Rows())
	if rect.Empty() {
		return nil, ErrEmptyRegion
	}

	roi := frame.Region(rect)
	defer roi.Close()

	square := gocv.NewMat()
	defer square.Close()
	gocv.Resize(roi, &square, image.Pt(RegionSize, RegionSize), 0, 0, gocv.InterpolationLinear)

	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(square, &rgb, gocv.ColorBGRToRGB)

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(square, &gray, gocv.ColorBGRToGray)

	small := gocv.NewMat()
	defer small.Close()
	gocv.Resize(gray, &small, image.Pt(ExpressionSize, ExpressionSize), 0, 0, gocv.InterpolationArea)

	pixels := small.ToBytes()
	norm := make([]float32, len(pixels))
	for i, p := range pixels {
		norm[i] = float32(p) / 255
	}

	return &Raster{RGB: rgb.ToBytes(), Gray: norm}, nil
}
