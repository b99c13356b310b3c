package model

import (
	"context"
	"image"
)

// PageRasterizer gives random access to rendered pages of an opened document.
// Page indices are 0-based. Sizes are in points.
type PageRasterizer interface {
	NumPage() int
	Bounds(page int) (width, height float64, err error)
	Text(page int) (string, error)
	// TextElements returns positioned text scaled into a pixelW x pixelH space.
	TextElements(page int, pixelW, pixelH int) ([]TextElement, error)
	Render(page int, dpi float64) (*image.RGBA, error)
}

// Detection is what a TextDetector found on a bitmap, in that bitmap's pixel space.
type Detection struct {
	TextRects  []Rect
	ImageRects []Rect
	// Words is filled only by detectors that also recognise text.
	Words []TextElement
}

// TextDetector finds text and image regions on a rendered page.
type TextDetector interface {
	Detect(ctx context.Context, img image.Image) (Detection, error)
}

// NoiseReducer cleans a bitmap before binarisation. Returning nil means "no change".
type NoiseReducer interface {
	Reduce(img image.Image) image.Image
}

// StillImageEncoder encodes a bitmap with adjustable lossy quality.
type StillImageEncoder interface {
	Codec() string
	Encode(img image.Image, quality int) ([]byte, error)
}

// FitDPI returns the largest dpi <= want at which a w x h point page fits in maxPixel.
func FitDPI(w, h, want float64, maxPixel int) float64 {
	longest := w
	if h > longest {
		longest = h
	}
	if longest <= 0 || maxPixel <= 0 {
		return want
	}
	capDPI := float64(maxPixel) * 72 / longest
	if capDPI < want {
		return capDPI
	}
	return want
}
