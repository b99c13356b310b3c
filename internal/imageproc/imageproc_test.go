package imageproc

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"reflect"
	"testing"

	"github.com/local/docshrink/internal/model"
)

func noisy(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	s := uint32(7)
	for i := range img.Pix {
		s = s*1664525 + 1013904223
		img.Pix[i] = uint8(s >> 24)
	}
	return img
}

func TestPixelCeiling(t *testing.T) {
	cases := []struct {
		src, profile, want int
	}{
		{7000, 0, 3000},
		{7000, 2400, 2400},
		{5000, 4000, 2400},
		{3000, 4000, 2000},
		{2000, 4000, 2000},
		{2000, 1600, 1600},
		{1000, 2400, 1000},
	}
	for _, c := range cases {
		if got := PixelCeiling(c.src, c.profile); got != c.want {
			t.Errorf("PixelCeiling(%d, %d) = %d, want %d", c.src, c.profile, got, c.want)
		}
	}
}

func TestScaleForSmallerWins(t *testing.T) {
	p := model.OptimizationProfile{MaxPixelDim: 2400}
	if got := ScaleFor(1000, 800, 1, p); got != 1 {
		t.Fatalf("small source scale = %v", got)
	}
	if got := ScaleFor(1000, 800, 0.5, p); got != 0.5 {
		t.Fatalf("dpi factor should win: %v", got)
	}
	if got := ScaleFor(3000, 1000, 1, p); got != 2000.0/3000 {
		t.Fatalf("ceiling should win: %v", got)
	}
	if got := ScaleFor(0, 0, 1, p); got != 1 {
		t.Fatalf("empty = %v", got)
	}
}

func TestResize(t *testing.T) {
	img := noisy(100, 50)
	out := Resize(img, 0.5)
	if out.Bounds().Dx() != 50 || out.Bounds().Dy() != 25 {
		t.Fatalf("size = %v", out.Bounds())
	}
	if Resize(img, 1.2) != image.Image(img) {
		t.Fatal("upscale must be a no-op")
	}
}

func TestQualities(t *testing.T) {
	cases := []struct {
		base, floor int
		want        []int
	}{
		{80, 20, []int{80, 56, 40}},
		{80, 50, []int{80, 56}},
		{30, 40, []int{40}},
	}
	for _, c := range cases {
		if got := Qualities(c.base, c.floor); !reflect.DeepEqual(got, c.want) {
			t.Errorf("Qualities(%d,%d) = %v, want %v", c.base, c.floor, got, c.want)
		}
	}
}

type sizeEncoder struct {
	sizes map[int]int
	calls []int
}

func (e *sizeEncoder) Codec() string { return "stub" }
func (e *sizeEncoder) Encode(_ image.Image, q int) ([]byte, error) {
	e.calls = append(e.calls, q)
	n, ok := e.sizes[q]
	if !ok {
		return nil, errors.New("no size")
	}
	return make([]byte, n), nil
}

func TestEncodeSmallestKeepsSmallest(t *testing.T) {
	enc := &sizeEncoder{sizes: map[int]int{80: 900, 56: 500, 40: 700}}
	p := &Processor{Encoder: enc}
	got, err := p.EncodeSmallest(noisy(8, 8), 80, 20)
	if err != nil {
		t.Fatal(err)
	}
	if got.Quality != 56 || len(got.Data) != 500 || got.Codec != "stub" {
		t.Fatalf("got q=%d len=%d", got.Quality, len(got.Data))
	}
	if len(enc.calls) != 3 {
		t.Fatalf("calls = %v", enc.calls)
	}
}

func TestEncodeSmallestAllFail(t *testing.T) {
	p := &Processor{Encoder: &sizeEncoder{}}
	if _, err := p.EncodeSmallest(noisy(8, 8), 80, 20); err == nil {
		t.Fatal("expected error")
	}
}

func TestJPEGQualityShrinks(t *testing.T) {
	img := noisy(64, 64)
	hi, err := JPEGEncoder{}.Encode(img, 95)
	if err != nil {
		t.Fatal(err)
	}
	lo, err := JPEGEncoder{}.Encode(img, 30)
	if err != nil {
		t.Fatal(err)
	}
	if len(lo) >= len(hi) {
		t.Fatalf("q30 %d >= q95 %d", len(lo), len(hi))
	}
	decoded, err := Decode(bytes.NewReader(lo))
	if err != nil {
		t.Fatal(err)
	}
	if decoded.Bounds().Dx() != 64 {
		t.Fatalf("decoded width %d", decoded.Bounds().Dx())
	}
}

func TestPNGEncoderRoundTrip(t *testing.T) {
	img := noisy(16, 16)
	data, err := PNGEncoder{}.Encode(img, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := png.Decode(bytes.NewReader(data)); err != nil {
		t.Fatal(err)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte("nope")))
	if !errors.Is(err, model.ErrUnreadable) {
		t.Fatalf("err = %v", err)
	}
}

func TestChainPassesThroughEmptyStages(t *testing.T) {
	img := noisy(10, 10)
	empty := Filter{Name: "empty", Apply: func(image.Image) image.Image { return image.NewRGBA(image.Rect(0, 0, 0, 0)) }}
	nilf := Filter{Name: "nil", Apply: func(image.Image) image.Image { return nil }}
	boom := Filter{Name: "boom", Apply: func(image.Image) image.Image { panic("boom") }}
	out := Chain(img, empty, nilf, boom, Gray())
	g, ok := out.(*image.Gray)
	if !ok || g.Bounds().Dx() != 10 {
		t.Fatalf("out = %T %v", out, out.Bounds())
	}
}

func TestOtsuSeparatesBimodal(t *testing.T) {
	g := image.NewGray(image.Rect(0, 0, 20, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 20; x++ {
			v := uint8(30)
			if x >= 10 {
				v = 220
			}
			g.SetGray(x, y, color.Gray{Y: v})
		}
	}
	th := OtsuThreshold(g)
	if th < 30 || th >= 220 {
		t.Fatalf("threshold = %d", th)
	}
	bin := Binarize(g, th)
	if bin.GrayAt(0, 0).Y != 0 || bin.GrayAt(19, 9).Y != 255 {
		t.Fatal("binarize did not separate halves")
	}
}

func TestBlurReducer(t *testing.T) {
	if (BlurReducer{}).Reduce(noisy(4, 4)) != nil {
		t.Fatal("zero sigma should report no change")
	}
	if out := (BlurReducer{Sigma: 1}).Reduce(noisy(4, 4)); out == nil {
		t.Fatal("expected output")
	}
}
