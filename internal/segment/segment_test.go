package segment

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"reflect"
	"sync/atomic"
	"testing"

	"github.com/local/docshrink/internal/model"
)

// textPage draws rows of small dark "glyphs" on white.
func textPage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
	black := image.NewUniform(color.Black)
	for y := 40; y+10 < h-40; y += 20 {
		for x := 40; x+6 < w-40; x += 9 {
			draw.Draw(img, image.Rect(x, y, x+6, y+10), black, image.Point{}, draw.Src)
		}
	}
	return img
}

// photoPage fills most of the page with mid-tone colour noise.
func photoPage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
	s := uint32(1)
	for y := 20; y < h-20; y++ {
		for x := 20; x < w-20; x++ {
			s = s*1664525 + 1013904223
			v := 90 + uint8(s>>28)*5
			img.SetRGBA(x, y, color.RGBA{R: v, G: 200 - v/2, B: 40 + v/3, A: 255})
		}
	}
	return img
}

func TestClassify(t *testing.T) {
	cases := []struct {
		vector      bool
		text, image float64
		want        model.PageContentType
	}{
		{true, 0.6, 0.05, model.ContentMainlyText},
		{true, 0.6, 0.29, model.ContentMainlyText},
		{true, 0.6, 0.6, model.ContentPhotograph},
		{false, 0.1, 0.5, model.ContentPhotograph},
		{false, 0.2, 0.1, model.ContentScannedDocument},
		{false, 0.1, 0.1, model.ContentMixed},
		{true, 0.6, 0.35, model.ContentMixed},
	}
	for _, c := range cases {
		if got := Classify(c.vector, c.text, c.image); got != c.want {
			t.Errorf("Classify(%v, %v, %v) = %s, want %s", c.vector, c.text, c.image, got, c.want)
		}
	}
}

func TestTilesCoverageBoundedWithOverlaps(t *testing.T) {
	var rects []model.Rect
	for i := 0; i < 50; i++ {
		rects = append(rects, model.Rect{X: 10, Y: 10, W: 90, H: 90})
	}
	rects = append(rects, model.Rect{X: -50, Y: -50, W: 500, H: 500})
	tiles := Tiles(100, 100, 4, 4, rects, rects)
	if len(tiles) != 16 {
		t.Fatalf("tiles = %d", len(tiles))
	}
	for i, tl := range tiles {
		if tl.TextCoverage < 0 || tl.TextCoverage > 1 || tl.ImageCoverage < 0 || tl.ImageCoverage > 1 {
			t.Fatalf("tile %d out of range: %+v", i, tl)
		}
		if tl.TextCoverage != 1 {
			t.Fatalf("tile %d should be fully covered: %v", i, tl.TextCoverage)
		}
	}
}

func TestTilesQuickRejectKeepsTallRects(t *testing.T) {
	// one rectangle spanning every row must show up in each of them
	tall := []model.Rect{{X: 0, Y: 0, W: 25, H: 100}}
	tiles := Tiles(100, 100, 4, 4, tall, nil)
	for r := 0; r < 4; r++ {
		if got := tiles[r*4].TextCoverage; got != 1 {
			t.Fatalf("row %d first tile = %v", r, got)
		}
		if got := tiles[r*4+1].TextCoverage; got != 0 {
			t.Fatalf("row %d second tile = %v", r, got)
		}
	}
}

func TestDetectorFindsTextLines(t *testing.T) {
	det, err := ComponentDetector{}.Detect(context.Background(), textPage(400, 300))
	if err != nil {
		t.Fatal(err)
	}
	if len(det.TextRects) < 5 {
		t.Fatalf("text rects = %d", len(det.TextRects))
	}
	if cov := model.Coverage(det.ImageRects, 400, 300); cov > 0.1 {
		t.Fatalf("image coverage on text page = %v", cov)
	}
}

func TestDetectorFindsPhoto(t *testing.T) {
	det, err := ComponentDetector{}.Detect(context.Background(), photoPage(300, 300))
	if err != nil {
		t.Fatal(err)
	}
	if cov := model.Coverage(det.ImageRects, 300, 300); cov < 0.5 {
		t.Fatalf("image coverage on photo = %v", cov)
	}
}

func TestAnalyzeBitmapIdempotent(t *testing.T) {
	a := New(Options{}, nil)
	img := textPage(320, 240)
	first, err := a.AnalyzeBitmap(context.Background(), img, 0)
	if err != nil {
		t.Fatal(err)
	}
	second, _ := a.AnalyzeBitmap(context.Background(), img, 0)
	if first.Class != second.Class || !reflect.DeepEqual(first.Tiles, second.Tiles) {
		t.Fatal("classification is not deterministic")
	}
	if first.Class != model.ContentScannedDocument {
		t.Fatalf("class = %s (text %.2f image %.2f)", first.Class, first.TextCoverage, first.ImageCoverage)
	}
	if first.Intent != model.IntentJBIG2 {
		t.Fatalf("intent = %s", first.Intent)
	}
}

type countingDetector struct{ calls atomic.Int32 }

func (d *countingDetector) Detect(context.Context, image.Image) (model.Detection, error) {
	d.calls.Add(1)
	return model.Detection{}, nil
}

func TestVectorTextSkipsDetector(t *testing.T) {
	det := &countingDetector{}
	a := New(Options{TextThreshold: 50}, det)
	seg, err := a.AnalyzeBitmap(context.Background(), textPage(200, 200), 500)
	if err != nil {
		t.Fatal(err)
	}
	if det.calls.Load() != 0 {
		t.Fatal("detector should be skipped for vector text")
	}
	if !seg.HasVectorText || seg.Class != model.ContentMainlyText || seg.Intent != model.IntentPreserveVector {
		t.Fatalf("seg = %+v", seg)
	}
	if seg.TextCoverage != DefaultVectorText {
		t.Fatalf("text coverage = %v", seg.TextCoverage)
	}
}

type stubRasterizer struct {
	pages    int
	failOn   int
	renders  atomic.Int32
	cancel   context.CancelFunc
	cancelAt int32
}

func (s *stubRasterizer) NumPage() int                         { return s.pages }
func (s *stubRasterizer) Bounds(int) (float64, float64, error) { return 612, 792, nil }
func (s *stubRasterizer) Text(int) (string, error)             { return "", nil }
func (s *stubRasterizer) TextElements(int, int, int) ([]model.TextElement, error) {
	return []model.TextElement{{Text: "hi", Box: model.Rect{W: 10, H: 10}}}, nil
}
func (s *stubRasterizer) Render(page int, dpi float64) (*image.RGBA, error) {
	n := s.renders.Add(1)
	if s.cancel != nil && n >= s.cancelAt {
		s.cancel()
	}
	if page == s.failOn {
		return nil, errors.New("render failed")
	}
	w := int(612 * dpi / 72)
	h := int(792 * dpi / 72)
	return textPage(w, h), nil
}

func TestAnalyzePageRespectsPixelCap(t *testing.T) {
	a := New(Options{MaxPixel: 256}, &countingDetector{})
	seg, err := a.AnalyzePage(context.Background(), &stubRasterizer{pages: 1, failOn: -1}, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if seg.PixelHeight > 256 || seg.PixelHeight < 250 {
		t.Fatalf("pixel height = %d", seg.PixelHeight)
	}
	if len(seg.TextElements) != 1 {
		t.Fatal("text elements should come from the rasterizer when text is present")
	}
}

func TestAnalyzeDropsFailedPages(t *testing.T) {
	r := &stubRasterizer{pages: 6, failOn: 3}
	a := New(Options{MaxPixel: 128, BatchSize: 2}, &countingDetector{})
	var calls []int
	out, err := a.Analyze(context.Background(), r, []int{0, 1, 2, 3, 4, 5}, nil, func(done, total int) {
		calls = append(calls, done)
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 5 {
		t.Fatalf("segmentations = %d", len(out))
	}
	if _, ok := out[3]; ok {
		t.Fatal("failed page must be dropped")
	}
	if !reflect.DeepEqual(calls, []int{2, 4, 6}) {
		t.Fatalf("progress = %v", calls)
	}
}

func TestAnalyzeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &stubRasterizer{pages: 40, failOn: -1, cancel: cancel, cancelAt: 3}
	a := New(Options{MaxPixel: 64, BatchSize: 2}, &countingDetector{})
	pages := make([]int, 40)
	for i := range pages {
		pages[i] = i
	}
	_, err := a.Analyze(ctx, r, pages, nil, nil)
	if !model.IsCancelled(err) {
		t.Fatalf("err = %v", err)
	}
	if n := r.renders.Load(); n > 6 {
		t.Fatalf("kept rendering after cancel: %d renders", n)
	}
}

func TestSamplePages(t *testing.T) {
	if got := SamplePages(5, nil, 50, 15, false); len(got) != 5 {
		t.Fatalf("short document should be fully scanned: %v", got)
	}
	if got := SamplePages(100, nil, 50, 15, true); len(got) != 100 {
		t.Fatalf("full scan = %d", len(got))
	}

	meta := map[int]model.PageMetadata{}
	for i := 0; i < 100; i++ {
		meta[i] = model.PageMetadata{Index: i, TextLength: 500}
	}
	meta[40] = model.PageMetadata{Index: 40, Anomaly: 9}
	got := SamplePages(100, meta, 50, 15, false)
	want := []int{0, 1, 2, 39, 40, 41, 49, 50, 51, 98, 99}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}

	capped := SamplePages(100, meta, 50, 4, false)
	if !reflect.DeepEqual(capped, []int{0, 1, 2, 98}) {
		t.Fatalf("capped = %v", capped)
	}
}
