package imageproc

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog/log"
)

// Filter is one stage of a bitmap chain. Returning nil or an empty image means
// the stage had nothing to offer.
type Filter struct {
	Name  string
	Apply func(image.Image) image.Image
}

// Chain runs filters in order. A stage that yields nothing passes its input
// through unchanged.
func Chain(img image.Image, filters ...Filter) image.Image {
	cur := img
	for _, f := range filters {
		out := safeApply(f, cur)
		if out == nil || out.Bounds().Empty() {
			log.Debug().Str("filter", f.Name).Msg("filter produced no output, passing input through")
			continue
		}
		cur = out
	}
	return cur
}

func safeApply(f Filter, img image.Image) (out image.Image) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Str("filter", f.Name).Interface("panic", r).Msg("filter panicked")
			out = nil
		}
	}()
	return f.Apply(img)
}

// Denoise is a light Gaussian blur.
func Denoise(sigma float64) Filter {
	return Filter{Name: "denoise", Apply: func(img image.Image) image.Image {
		if sigma <= 0 {
			return img
		}
		return imaging.Blur(img, sigma)
	}}
}

// Gray converts to 8-bit luminance.
func Gray() Filter {
	return Filter{Name: "grayscale", Apply: func(img image.Image) image.Image { return Grayscale(img) }}
}

// Unsharp sharpens edges.
func Unsharp(sigma float64) Filter {
	return Filter{Name: "unsharp", Apply: func(img image.Image) image.Image {
		return imaging.Sharpen(img, sigma)
	}}
}

// Contrast changes contrast by pct in [-100, 100].
func Contrast(pct float64) Filter {
	return Filter{Name: "contrast", Apply: func(img image.Image) image.Image {
		return imaging.AdjustContrast(img, pct)
	}}
}

// Blur is a Gaussian blur with the given sigma.
func Blur(img image.Image, sigma float64) image.Image {
	if sigma <= 0 {
		return img
	}
	return imaging.Blur(img, sigma)
}

// Grayscale returns img as *image.Gray, reusing it when it already is one.
func Grayscale(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(g, g.Bounds(), img, b.Min, draw.Src)
	return g
}

// ToRGBA returns img as *image.RGBA anchored at the origin.
func ToRGBA(img image.Image) *image.RGBA {
	if r, ok := img.(*image.RGBA); ok && r.Bounds().Min == (image.Point{}) {
		return r
	}
	b := img.Bounds()
	r := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(r, r.Bounds(), img, b.Min, draw.Src)
	return r
}

// Luma returns the 8-bit luminance of c.
func Luma(c color.Color) uint8 {
	return color.GrayModel.Convert(c).(color.Gray).Y
}

// BlurReducer implements model.NoiseReducer with a Gaussian blur.
type BlurReducer struct {
	Sigma float64
}

func (r BlurReducer) Reduce(img image.Image) image.Image {
	if r.Sigma <= 0 {
		return nil
	}
	return imaging.Blur(img, r.Sigma)
}
