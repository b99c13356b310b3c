package imageproc

import (
	"fmt"
	"image"
	"math"

	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"

	"github.com/local/docshrink/internal/model"
)

// qualitySteps are the multipliers tried on the profile quality.
var qualitySteps = []float64{1.0, 0.7, 0.5}

// Processor resizes bitmaps and searches quality levels for the smallest
// encoding. It holds no per-page state.
type Processor struct {
	Encoder model.StillImageEncoder
}

// NewProcessor returns a JPEG processor.
func NewProcessor() *Processor {
	return &Processor{Encoder: JPEGEncoder{}}
}

// Encoded is the winner of a quality search.
type Encoded struct {
	Data    []byte
	Quality int
	Width   int
	Height  int
	Codec   string
}

// PixelCeiling returns the longest-side ceiling for a source of longest side
// srcMax: large sources get a fixed tier, and the profile ceiling always applies.
func PixelCeiling(srcMax, profileMax int) int {
	tier := srcMax
	switch {
	case srcMax > 6000:
		tier = 3000
	case srcMax > 4000:
		tier = 2400
	case srcMax > 2500:
		tier = 2000
	}
	if profileMax > 0 && profileMax < tier {
		return profileMax
	}
	return tier
}

// ScaleFor returns the resize factor for a w x h bitmap: the smaller of the
// DPI-derived factor and the pixel ceiling. It never upscales.
func ScaleFor(w, h int, dpiFactor float64, p model.OptimizationProfile) float64 {
	srcMax := max(w, h)
	if srcMax <= 0 {
		return 1
	}
	scale := 1.0
	if dpiFactor > 0 && dpiFactor < scale {
		scale = dpiFactor
	}
	ceil := float64(PixelCeiling(srcMax, p.MaxPixelDim)) / float64(srcMax)
	return math.Min(scale, ceil)
}

// Resize scales img by factor with Catmull-Rom resampling. A factor >= 1
// returns img unchanged.
func Resize(img image.Image, factor float64) image.Image {
	if factor >= 1 || factor <= 0 {
		return img
	}
	b := img.Bounds()
	w := max(1, int(math.Round(float64(b.Dx())*factor)))
	h := max(1, int(math.Round(float64(b.Dy())*factor)))
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// Qualities lists the quality levels tried for base, never below floor.
func Qualities(base, floor int) []int {
	if base < floor {
		base = floor
	}
	out := make([]int, 0, len(qualitySteps))
	seen := map[int]bool{}
	for _, m := range qualitySteps {
		q := int(math.Round(float64(base) * m))
		if q < floor || seen[q] {
			continue
		}
		seen[q] = true
		out = append(out, q)
	}
	if len(out) == 0 {
		out = append(out, floor)
	}
	return out
}

// EncodeSmallest encodes img at each quality level and keeps the smallest.
func (p *Processor) EncodeSmallest(img image.Image, base, floor int) (Encoded, error) {
	var best Encoded
	var lastErr error
	for _, q := range Qualities(base, floor) {
		data, err := p.Encoder.Encode(img, q)
		if err != nil {
			lastErr = err
			continue
		}
		if best.Data == nil || len(data) < len(best.Data) {
			best = Encoded{Data: data, Quality: q}
		}
	}
	if best.Data == nil {
		if lastErr == nil {
			lastErr = model.ErrEncode
		}
		return Encoded{}, fmt.Errorf("quality search: %w", lastErr)
	}
	b := img.Bounds()
	best.Width, best.Height, best.Codec = b.Dx(), b.Dy(), p.Encoder.Codec()
	log.Debug().Int("quality", best.Quality).Int("bytes", len(best.Data)).Int("width", best.Width).Int("height", best.Height).Msg("quality search done")
	return best, nil
}

// Shrink resizes img for profile p and runs the quality search.
func (p *Processor) Shrink(img image.Image, dpiFactor float64, prof model.OptimizationProfile) (Encoded, error) {
	b := img.Bounds()
	scaled := Resize(img, ScaleFor(b.Dx(), b.Dy(), dpiFactor, prof))
	if prof.Grayscale {
		scaled = Grayscale(scaled)
	}
	return p.EncodeSmallest(scaled, prof.Quality, prof.QualityFloor)
}
