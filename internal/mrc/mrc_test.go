package mrc

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"testing"

	"github.com/local/docshrink/internal/model"
)

// scan draws dark blue strokes on a light, slightly tinted page.
func scan(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{R: 240, G: 236, B: 225, A: 255}), image.Point{}, draw.Src)
	ink := image.NewUniform(color.RGBA{R: 20, G: 30, B: 120, A: 255})
	for y := 10; y+8 < h-10; y += 14 {
		for x := 10; x+5 < w-10; x += 8 {
			draw.Draw(img, image.Rect(x, y, x+5, y+8), ink, image.Point{}, draw.Src)
		}
	}
	return img
}

func TestSeparateProducesTwoLayers(t *testing.T) {
	s := NewSeparator(Options{Aggressiveness: 1, BackgroundScale: 0.5, BackgroundQuality: 30})
	l, err := s.Separate(scan(200, 150), nil)
	if err != nil {
		t.Fatal(err)
	}
	if l.Coverage < MinCoverage {
		t.Fatalf("coverage = %v", l.Coverage)
	}
	if l.BackgroundWidth != 100 || l.BackgroundHeight != 75 {
		t.Fatalf("background size = %dx%d", l.BackgroundWidth, l.BackgroundHeight)
	}
	if l.Ink.B < 80 || l.Ink.R > 80 {
		t.Fatalf("ink = %+v, want dark blue", l.Ink)
	}
	if _, err := jpeg.Decode(bytes.NewReader(l.Background)); err != nil {
		t.Fatalf("background is not a jpeg: %v", err)
	}

	assets := l.Assets()
	if len(assets) != 2 {
		t.Fatalf("assets = %d", len(assets))
	}
	if assets[0].Layer != model.LayerBackgroundBase || assets[1].Layer != model.LayerForegroundMask {
		t.Fatal("background must come before the mask")
	}
	m := assets[1]
	if m.Codec != model.CodecMask1Bit || len(m.Data) != (m.PixelWidth+7)/8*m.PixelHeight {
		t.Fatalf("mask asset = %s %d bytes %dx%d", m.Codec, len(m.Data), m.PixelWidth, m.PixelHeight)
	}
	if m.Rect.X < 5 || m.Rect.Y < 5 {
		t.Fatalf("mask should be cropped to ink: %+v", m.Rect)
	}
}

func TestSeparateBlankPageNotWorthwhile(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
	_, err := NewSeparator(Options{}).Separate(img, nil)
	if !errors.Is(err, ErrNotWorthwhile) {
		t.Fatalf("err = %v", err)
	}
}

func TestDetectorBoxesRestrictMask(t *testing.T) {
	s := NewSeparator(Options{})
	page := scan(200, 150)
	full, err := s.Separate(page, nil)
	if err != nil {
		t.Fatal(err)
	}
	boxed, err := s.Separate(page, []model.Rect{{X: 0, Y: 0, W: 200, H: 60}})
	if err != nil {
		t.Fatal(err)
	}
	if boxed.Mask.Count() >= full.Mask.Count() {
		t.Fatalf("restricted mask %d >= full %d", boxed.Mask.Count(), full.Mask.Count())
	}
	for y := 80; y < 150; y++ {
		for x := 0; x < 200; x++ {
			if boxed.Mask.Ink(x, y) {
				t.Fatalf("ink outside detector boxes at %d,%d", x, y)
			}
		}
	}
}

func TestMaskPack(t *testing.T) {
	bin := image.NewGray(image.Rect(0, 0, 10, 2))
	for i := range bin.Pix {
		bin.Pix[i] = 255
	}
	bin.Pix[0] = 0  // (0,0)
	bin.Pix[19] = 0 // (9,1)
	got := NewMask(bin).Pack()
	want := []byte{0x7F, 0xFF, 0xFF, 0xBF}
	if !bytes.Equal(got, want) {
		t.Fatalf("Pack = % X, want % X", got, want)
	}
}

func TestMaskCropEmpty(t *testing.T) {
	bin := image.NewGray(image.Rect(0, 0, 4, 4))
	for i := range bin.Pix {
		bin.Pix[i] = 255
	}
	if c, _ := NewMask(bin).Crop(); c != nil {
		t.Fatal("empty mask should not crop")
	}
}

func TestDespeckleRemovesIsolatedPixels(t *testing.T) {
	bin := image.NewGray(image.Rect(0, 0, 5, 5))
	for i := range bin.Pix {
		bin.Pix[i] = 255
	}
	bin.SetGray(2, 2, color.Gray{})
	bin.SetGray(0, 0, color.Gray{})
	bin.SetGray(1, 0, color.Gray{})
	out := despeckle(bin)
	if out.GrayAt(2, 2).Y != 255 {
		t.Fatal("isolated pixel kept")
	}
	if out.GrayAt(0, 0).Y != 0 || out.GrayAt(1, 0).Y != 0 {
		t.Fatal("connected pair removed")
	}
}

func TestPreviewMultipliesInk(t *testing.T) {
	s := NewSeparator(Options{})
	l, err := s.Separate(scan(80, 60), nil)
	if err != nil {
		t.Fatal(err)
	}
	bg, err := jpeg.Decode(bytes.NewReader(l.Background))
	if err != nil {
		t.Fatal(err)
	}
	p := Preview(l, bg)
	if p.Bounds().Dx() != 80 || p.Bounds().Dy() != 60 {
		t.Fatalf("preview size %v", p.Bounds())
	}
	// first glyph starts at (10,10)
	c := p.RGBAAt(12, 12)
	if c.R > 60 {
		t.Fatalf("ink pixel too light in preview: %+v", c)
	}
}

func TestOptionsFor(t *testing.T) {
	p, _ := model.Profile("strong")
	o := OptionsFor(p)
	if o.BackgroundQuality <= 0 || o.BackgroundQuality >= p.Quality {
		t.Fatalf("background quality = %d", o.BackgroundQuality)
	}
	if o.Aggressiveness != p.Aggressiveness {
		t.Fatal("aggressiveness not carried")
	}
}
