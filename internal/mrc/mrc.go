// Package mrc splits a rendered page into a 1-bit foreground text mask with a
// solid ink colour and a blurred, downscaled colour background.
package mrc

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog/log"

	"github.com/local/docshrink/internal/imageproc"
	"github.com/local/docshrink/internal/model"
)

// ErrNotWorthwhile means the page has too little text for two layers to pay off.
var ErrNotWorthwhile = errors.New("mrc: text coverage below threshold")

const (
	// MinCoverage is the sampled ink share below which separation is skipped.
	MinCoverage = 0.05
	maxSamples  = 4096
)

// blurSigma is the background blur per aggressiveness level.
var blurSigma = [...]float64{2, 3, 5, 8}

// Options configure one separator.
type Options struct {
	Aggressiveness    int
	BackgroundScale   float64 // (0,1]
	BackgroundQuality int
	Reducer           model.NoiseReducer
	Encoder           model.StillImageEncoder
}

// OptionsFor derives separator settings from a profile.
func OptionsFor(p model.OptimizationProfile) Options {
	q := int(math.Round(float64(p.Quality) * 0.6))
	if q < p.QualityFloor/2 {
		q = p.QualityFloor / 2
	}
	return Options{
		Aggressiveness:    p.Aggressiveness,
		BackgroundScale:   p.BackgroundScale,
		BackgroundQuality: max(q, 10),
		Reducer:           imageproc.BlurReducer{Sigma: 0.5},
	}
}

// Separator is stateless across pages.
type Separator struct {
	opts Options
}

func NewSeparator(opts Options) *Separator {
	if opts.Encoder == nil {
		opts.Encoder = imageproc.JPEGEncoder{}
	}
	if opts.BackgroundScale <= 0 || opts.BackgroundScale > 1 {
		opts.BackgroundScale = 1
	}
	if opts.BackgroundQuality <= 0 {
		opts.BackgroundQuality = 35
	}
	opts.Aggressiveness = min(max(opts.Aggressiveness, 0), len(blurSigma)-1)
	return &Separator{opts: opts}
}

// Layers is the result of one separation, in the page's pixel space.
type Layers struct {
	PageWidth, PageHeight int
	Mask                  *Mask
	Ink                   color.RGBA
	Background            []byte
	BackgroundCodec       string
	BackgroundWidth       int
	BackgroundHeight      int
	Coverage              float64
}

// Separate builds both layers for img. textRects, when given, restrict the
// mask to expanded word and line boxes.
func (s *Separator) Separate(img image.Image, textRects []model.Rect) (Layers, error) {
	src := imageproc.ToRGBA(img)
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	if w == 0 || h == 0 {
		return Layers{}, fmt.Errorf("mrc: empty page bitmap")
	}

	bin := Foreground(src, s.opts.Reducer)
	if len(textRects) > 0 {
		restrict(bin, textRects)
	}
	cov := sampleCoverage(bin, maxSamples)
	if cov < MinCoverage {
		return Layers{}, fmt.Errorf("%w (%.3f)", ErrNotWorthwhile, cov)
	}

	mask := NewMask(bin)
	ink, paper := inkAndPaper(src, bin)
	bg := Background(src, bin, paper, blurSigma[s.opts.Aggressiveness], s.opts.BackgroundScale)
	data, err := s.opts.Encoder.Encode(bg, s.opts.BackgroundQuality)
	if err != nil {
		return Layers{}, fmt.Errorf("mrc background: %w", err)
	}
	l := Layers{
		PageWidth: w, PageHeight: h,
		Mask:             mask,
		Ink:              ink,
		Background:       data,
		BackgroundCodec:  s.opts.Encoder.Codec(),
		BackgroundWidth:  bg.Bounds().Dx(),
		BackgroundHeight: bg.Bounds().Dy(),
		Coverage:         cov,
	}
	log.Debug().Float64("coverage", cov).Int("background_bytes", len(data)).Int("mask_w", mask.W).Int("mask_h", mask.H).Msg("mrc layers separated")
	return l, nil
}

// Foreground runs denoise, grayscale, unsharp and contrast, then Otsu
// binarisation and a despeckle pass. Ink pixels are 0, paper is 255.
func Foreground(img image.Image, reducer model.NoiseReducer) *image.Gray {
	filters := make([]imageproc.Filter, 0, 4)
	if reducer != nil {
		filters = append(filters, imageproc.Filter{Name: "denoise", Apply: reducer.Reduce})
	}
	filters = append(filters, imageproc.Gray(), imageproc.Unsharp(1.0), imageproc.Contrast(20))
	gray := imageproc.Grayscale(imageproc.Chain(img, filters...))
	t := imageproc.OtsuThreshold(gray)
	return despeckle(imageproc.Binarize(gray, t))
}

// despeckle clears ink pixels with no 8-connected ink neighbour.
func despeckle(bin *image.Gray) *image.Gray {
	w, h := bin.Bounds().Dx(), bin.Bounds().Dy()
	out := image.NewGray(bin.Rect)
	copy(out.Pix, bin.Pix)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if bin.Pix[y*bin.Stride+x] != 0 {
				continue
			}
			alone := true
			for dy := -1; dy <= 1 && alone; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if (dx == 0 && dy == 0) || nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					if bin.Pix[ny*bin.Stride+nx] == 0 {
						alone = false
						break
					}
				}
			}
			if alone {
				out.Pix[y*out.Stride+x] = 255
			}
		}
	}
	return out
}

// restrict clears ink outside the detector boxes, grown by a quarter of
// their height so ascenders and descenders survive.
func restrict(bin *image.Gray, rects []model.Rect) {
	w, h := bin.Bounds().Dx(), bin.Bounds().Dy()
	keep := image.NewGray(bin.Rect)
	for _, r := range rects {
		g := r.Grow(math.Max(2, r.H/4)).Clamp(float64(w), float64(h))
		if g.Empty() {
			continue
		}
		for y := int(g.Y); y < int(math.Ceil(g.Bottom())) && y < h; y++ {
			row := keep.Pix[y*keep.Stride:]
			for x := int(g.X); x < int(math.Ceil(g.Right())) && x < w; x++ {
				row[x] = 1
			}
		}
	}
	for i := range bin.Pix {
		if keep.Pix[i] == 0 {
			bin.Pix[i] = 255
		}
	}
}

// sampleCoverage estimates the ink share from at most limit evenly spaced pixels.
func sampleCoverage(bin *image.Gray, limit int) float64 {
	w, h := bin.Bounds().Dx(), bin.Bounds().Dy()
	step := 1
	for (w/step)*(h/step) > limit {
		step++
	}
	ink, total := 0, 0
	for y := step / 2; y < h; y += step {
		for x := step / 2; x < w; x += step {
			if bin.Pix[y*bin.Stride+x] == 0 {
				ink++
			}
			total++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(ink) / float64(total)
}

// inkAndPaper returns the per-channel median of the original pixels under
// the mask and outside it.
func inkAndPaper(src *image.RGBA, bin *image.Gray) (color.RGBA, color.RGBA) {
	var inkH, paperH [3][256]int
	w, h := bin.Bounds().Dx(), bin.Bounds().Dy()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			o := src.PixOffset(x, y)
			hist := &paperH
			if bin.Pix[y*bin.Stride+x] == 0 {
				hist = &inkH
			}
			for c := 0; c < 3; c++ {
				hist[c][src.Pix[o+c]]++
			}
		}
	}
	return median(inkH, color.RGBA{A: 255}), median(paperH, color.RGBA{R: 255, G: 255, B: 255, A: 255})
}

func median(h [3][256]int, fallback color.RGBA) color.RGBA {
	var out [3]uint8
	for c := 0; c < 3; c++ {
		total := 0
		for _, n := range h[c] {
			total += n
		}
		if total == 0 {
			return fallback
		}
		acc := 0
		for v, n := range h[c] {
			acc += n
			if acc*2 >= total {
				out[c] = uint8(v)
				break
			}
		}
	}
	return color.RGBA{R: out[0], G: out[1], B: out[2], A: 255}
}

// Background paints ink pixels with the paper colour, blurs and downscales.
// The result keeps the page's aspect ratio so it stretches back to full extent.
func Background(src *image.RGBA, bin *image.Gray, paper color.RGBA, sigma, scale float64) image.Image {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	filled := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(filled, filled.Bounds(), src, src.Bounds().Min, draw.Src)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if bin.Pix[y*bin.Stride+x] == 0 {
				filled.SetRGBA(x, y, paper)
			}
		}
	}
	blurred := imageproc.Blur(filled, sigma)
	out := imaging.Crop(blurred, image.Rect(0, 0, w, h))
	return imageproc.Resize(out, scale)
}

// Preview recomposes the layers into one bitmap with a multiply blend.
func Preview(l Layers, bg image.Image) *image.RGBA {
	w, h := l.PageWidth, l.PageHeight
	base := imaging.Resize(bg, w, h, imaging.Linear)
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := base.NRGBAAt(x, y)
			if l.Mask.Ink(x, y) {
				c.R = uint8(int(c.R) * int(l.Ink.R) / 255)
				c.G = uint8(int(c.G) * int(l.Ink.G) / 255)
				c.B = uint8(int(c.B) * int(l.Ink.B) / 255)
			}
			out.SetRGBA(x, y, color.RGBA{R: c.R, G: c.G, B: c.B, A: 255})
		}
	}
	return out
}

// Assets converts the layers into reassembly assets: the background first,
// then the mask cropped to the ink's bounding box.
func (l Layers) Assets() []model.ExtractedAsset {
	assets := []model.ExtractedAsset{{
		Data:        l.Background,
		Codec:       l.BackgroundCodec,
		PixelWidth:  l.BackgroundWidth,
		PixelHeight: l.BackgroundHeight,
		Rect:        model.Rect{W: float64(l.PageWidth), H: float64(l.PageHeight)},
		Layer:       model.LayerBackgroundBase,
		Intent:      model.IntentJPEG2000,
	}}
	crop, box := l.Mask.Crop()
	if crop == nil {
		return assets
	}
	return append(assets, model.ExtractedAsset{
		Data:        crop.Pack(),
		Codec:       model.CodecMask1Bit,
		PixelWidth:  crop.W,
		PixelHeight: crop.H,
		Rect:        box,
		Layer:       model.LayerForegroundMask,
		Intent:      model.IntentJBIG2,
		Ink:         l.Ink,
	})
}
