package engine

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/local/docshrink/internal/config"
	"github.com/local/docshrink/internal/imageproc"
	"github.com/local/docshrink/internal/model"
	"github.com/local/docshrink/internal/mupdf"
	"github.com/local/docshrink/internal/pdftest"
	"github.com/local/docshrink/internal/segment"
	"github.com/local/docshrink/internal/storage"
	"github.com/local/docshrink/internal/store"
	"github.com/local/docshrink/internal/validate"
)

func testConfig() config.EngineConfig {
	return config.EngineConfig{
		Profile:            "balanced",
		PageBatchSize:      4,
		SampleCap:          15,
		TextThreshold:      50,
		AnalysisMaxPixel:   512,
		TileRows:           4,
		TileCols:           4,
		RasterHandles:      2,
		DocumentWorkers:    1,
		ImageWorkers:       3,
		DocumentMaxRetries: 2,
		ImageMaxRetries:    1,
	}
}

func newEngine(t *testing.T, mutate func(*Options)) *Engine {
	t.Helper()
	opts := Options{
		Config: testConfig(),
		Backup: storage.NewLocalBackup(filepath.Join(t.TempDir(), "backup")),
	}
	if mutate != nil {
		mutate(&opts)
	}
	return New(opts)
}

func writePDF(t *testing.T, dir string, pages []pdftest.PageFixture) string {
	t.Helper()
	path := filepath.Join(dir, "in.pdf")
	if err := pdftest.Write(path, pages); err != nil {
		t.Fatal(err)
	}
	return path
}

func writeJPEG(t *testing.T, path string, img image.Image, quality int) {
	t.Helper()
	var b bytes.Buffer
	if err := jpeg.Encode(&b, img, &jpeg.Options{Quality: quality}); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, b.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func pageText(t *testing.T, path string) string {
	t.Helper()
	doc, err := mupdf.Open(path, 1)
	if err != nil {
		t.Fatal(err)
	}
	defer doc.Close()
	var all strings.Builder
	for i := 0; i < doc.NumPage(); i++ {
		s, err := doc.Text(i)
		if err != nil {
			t.Fatal(err)
		}
		all.WriteString(s)
	}
	return all.String()
}

func assertNoTemps(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), tempPrefix) {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}

func TestVectorTextDocument(t *testing.T) {
	dir := t.TempDir()
	in := writePDF(t, dir, pdftest.TextPages(1))
	out := filepath.Join(dir, "out.pdf")
	before := pageText(t, in)

	res := newEngine(t, nil).Optimize(context.Background(), Request{Input: in, Output: out})
	switch res.Status {
	case model.StatusSuccess:
		if got := pageText(t, out); len(strings.TrimSpace(got)) != len(strings.TrimSpace(before)) {
			t.Fatalf("text length %d, want %d", len(got), len(before))
		}
		if res.Diagnostics.Routes["vector"] != 1 {
			t.Fatalf("routes = %v", res.Diagnostics.Routes)
		}
		ok, diag, err := pdftest.HasExtractableText(out, 200)
		if err != nil || !ok {
			t.Fatalf("text not extractable: %+v %v", diag, err)
		}
	case model.StatusSkipped:
		if _, err := os.Stat(out); !os.IsNotExist(err) {
			t.Fatal("skipped job left an output")
		}
	default:
		t.Fatalf("status = %s (%v)", res.Status, res.Err)
	}
	assertNoTemps(t, dir)
}

func TestScannedDocumentShrinks(t *testing.T) {
	dir := t.TempDir()
	in := writePDF(t, dir, pdftest.PhotoPages(4, 1600, 2000))
	out := filepath.Join(dir, "out.pdf")

	var mu sync.Mutex
	var seen []float64
	res := newEngine(t, nil).Optimize(context.Background(), Request{
		Input:  in,
		Output: out,
		Progress: func(f float64, stage string) {
			mu.Lock()
			seen = append(seen, f)
			mu.Unlock()
		},
	})
	if res.Status != model.StatusSuccess {
		t.Fatalf("status = %s reason = %q err = %v", res.Status, res.Reason, res.Err)
	}
	if res.OutputSize > res.InputSize*6/10 {
		t.Fatalf("output %d is not 40%% below %d", res.OutputSize, res.InputSize)
	}
	if res.Diagnostics.Routes["vector"] != 0 {
		t.Fatalf("photo pages kept as vector: %v", res.Diagnostics.Routes)
	}
	if ok, _, err := pdftest.HasExtractableText(out, 1); err != nil || ok {
		t.Fatalf("scanned output grew a text layer: ok=%v err=%v", ok, err)
	}
	fi, err := os.Stat(out)
	if err != nil || fi.Size() != res.OutputSize {
		t.Fatalf("output on disk: %v", err)
	}
	for i := 1; i < len(seen); i++ {
		if seen[i] < seen[i-1] {
			t.Fatalf("progress went back: %v", seen)
		}
	}
	if len(seen) == 0 || seen[len(seen)-1] != 1 {
		t.Fatalf("progress did not reach 1: %v", seen)
	}
	assertNoTemps(t, dir)
}

// countingDetector counts pages that reach bitmap detection.
type countingDetector struct {
	inner model.TextDetector
	calls atomic.Int32
}

func (d *countingDetector) Detect(ctx context.Context, img image.Image) (model.Detection, error) {
	d.calls.Add(1)
	return d.inner.Detect(ctx, img)
}

func TestLargeMixedDocumentBorrowsSampledSegmentation(t *testing.T) {
	if testing.Short() {
		t.Skip("renders 50 pages")
	}
	const photos, texts = 30, 20
	pages := append(pdftest.PhotoPages(photos, 1200, 1500), pdftest.TextPages(photos + texts)[photos:]...)
	dir := t.TempDir()
	in := writePDF(t, dir, pages)
	out := filepath.Join(dir, "out.pdf")

	det := &countingDetector{inner: segment.ComponentDetector{Reducer: imageproc.BlurReducer{Sigma: 0.6}}}
	e := newEngine(t, func(o *Options) { o.Detector = det })
	res := e.Optimize(context.Background(), Request{Input: in, Output: out, Mode: model.ModeHybrid})
	if res.Status != model.StatusSuccess {
		t.Fatalf("status = %s reason = %q err = %v", res.Status, res.Reason, res.Err)
	}

	// only sampled photo pages are detected; the rest borrow a neighbour's class
	calls := int(det.calls.Load())
	if calls == 0 || calls > testConfig().SampleCap || calls >= photos {
		t.Fatalf("detector ran on %d pages", calls)
	}
	r := res.Diagnostics.Routes
	if r["vector"] != texts || r["raster"]+r["mrc"] != photos {
		t.Fatalf("routes = %v", r)
	}
	if res.Diagnostics.PageCount != photos+texts {
		t.Fatalf("page count = %d", res.Diagnostics.PageCount)
	}
	doc, err := mupdf.Open(out, 1)
	if err != nil {
		t.Fatal(err)
	}
	defer doc.Close()
	if doc.NumPage() != photos+texts {
		t.Fatalf("output pages = %d", doc.NumPage())
	}
	text, err := doc.Text(photos)
	if err != nil || !strings.Contains(text, "Page 31 line 1") {
		t.Fatalf("first text page = %q (%v)", text, err)
	}
	assertNoTemps(t, dir)
}

// failingEncoder cannot encode anything.
type failingEncoder struct{}

func (failingEncoder) Codec() string { return model.CodecJPEG }
func (failingEncoder) Encode(image.Image, int) ([]byte, error) {
	return nil, errors.New("encoder offline")
}

func TestStrictJobFailsOnPageError(t *testing.T) {
	dir := t.TempDir()
	in := writePDF(t, dir, pdftest.PhotoPages(2, 300, 400))
	out := filepath.Join(dir, "out.pdf")
	e := newEngine(t, func(o *Options) { o.Encoder = failingEncoder{} })
	res := e.Optimize(context.Background(), Request{Input: in, Output: out, Mode: model.ModeUltra, Strict: true})
	if res.Status != model.StatusFailed || res.Reason != model.KindProcessing.String() {
		t.Fatalf("status = %s reason = %q err = %v", res.Status, res.Reason, res.Err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Fatal("failed job left an output")
	}
	assertNoTemps(t, dir)
}

// stuckEncoder never produces anything smaller than the input.
type stuckEncoder struct {
	size  int
	calls int
	mu    sync.Mutex
}

func (*stuckEncoder) Codec() string { return model.CodecJPEG }

func (s *stuckEncoder) Encode(image.Image, int) ([]byte, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return bytes.Repeat([]byte{0xff}, s.size), nil
}

func TestAlreadyOptimizedImageIsSkipped(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "photo.jpg")
	writeJPEG(t, in, pdftest.Gradient(400, 300, 7), 75)
	fi, err := os.Stat(in)
	if err != nil {
		t.Fatal(err)
	}
	enc := &stuckEncoder{size: int(fi.Size())}
	hist := &recordingHistory{}
	e := newEngine(t, func(o *Options) {
		o.Encoder = enc
		o.History = hist
	})
	out := filepath.Join(dir, "out.jpg")

	res := e.Optimize(context.Background(), Request{Input: in, Output: out})
	if res.Status != model.StatusSkipped || res.Reason != model.ReasonAlreadyOptimized {
		t.Fatalf("status = %s reason = %q err = %v", res.Status, res.Reason, res.Err)
	}
	if res.Diagnostics.RetryCount != 1 {
		t.Fatalf("retries = %d", res.Diagnostics.RetryCount)
	}
	if res.OutputSize != res.InputSize {
		t.Fatalf("skipped output size %d != %d", res.OutputSize, res.InputSize)
	}
	if res.Message != model.MsgAlreadyOptimized {
		t.Fatalf("message = %q", res.Message)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Fatal("skipped job left an output")
	}
	if enc.calls < 2 {
		t.Fatalf("encoder called %d times, want a retry", enc.calls)
	}
	if len(hist.results) != 1 || hist.results[0].Status != model.StatusSkipped {
		t.Fatalf("history = %+v", hist.results)
	}
	assertNoTemps(t, dir)
}

// slowRaster stands in for MuPDF over blank pages and can cancel the job
// once a given page is rendered.
type slowRaster struct {
	pages    int
	cancelAt int
	cancel   context.CancelFunc
	delay    time.Duration
}

func (r *slowRaster) NumPage() int { return r.pages }
func (r *slowRaster) Bounds(int) (float64, float64, error) {
	return 612, 792, nil
}
func (r *slowRaster) Text(int) (string, error) { return "", nil }
func (r *slowRaster) TextElements(int, int, int) ([]model.TextElement, error) {
	return nil, nil
}
func (r *slowRaster) Render(page int, dpi float64) (*image.RGBA, error) {
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	if r.cancel != nil && page >= r.cancelAt {
		r.cancel()
	}
	return image.NewRGBA(image.Rect(0, 0, int(612*dpi/72)/4, int(792*dpi/72)/4)), nil
}
func (r *slowRaster) Close() error { return nil }

func TestCancelMidRunLeavesNoOutput(t *testing.T) {
	dir := t.TempDir()
	in := writePDF(t, dir, make([]pdftest.PageFixture, 100))
	out := filepath.Join(dir, "out.pdf")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	raster := &slowRaster{pages: 100, cancelAt: 30, cancel: cancel}
	e := newEngine(t, func(o *Options) {
		o.OpenRaster = func(string, int) (Raster, error) { return raster, nil }
	})

	res := e.Optimize(ctx, Request{Input: in, Output: out, Mode: model.ModeUltra})
	if res.Status != model.StatusCancelled {
		t.Fatalf("status = %s err = %v", res.Status, res.Err)
	}
	if res.Message != model.MsgCancelled {
		t.Fatalf("message = %q", res.Message)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Fatal("cancelled job left an output")
	}
	assertNoTemps(t, dir)
}

// flagSink reports a cancel request once asked enough times.
type flagSink struct {
	mu      sync.Mutex
	sets    []store.Status
	checks  int
	afterN  int
	jobSeen string
}

func (s *flagSink) Set(_ context.Context, jobID string, st store.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobSeen = jobID
	s.sets = append(s.sets, st)
	return nil
}

func (s *flagSink) IsCancelled(context.Context, string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks++
	return s.checks > s.afterN, nil
}

func (s *flagSink) last() store.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sets[len(s.sets)-1]
}

func TestExternalCancelFlag(t *testing.T) {
	dir := t.TempDir()
	in := writePDF(t, dir, make([]pdftest.PageFixture, 40))
	out := filepath.Join(dir, "out.pdf")
	sink := &flagSink{afterN: 1}
	e := newEngine(t, func(o *Options) {
		o.Status = sink
		o.PollInterval = 5 * time.Millisecond
		o.OpenRaster = func(string, int) (Raster, error) {
			return &slowRaster{pages: 40, delay: 20 * time.Millisecond}, nil
		}
	})

	res := e.Optimize(context.Background(), Request{Input: in, Output: out, Mode: model.ModeUltra, JobID: "job-1"})
	if res.Status != model.StatusCancelled {
		t.Fatalf("status = %s err = %v", res.Status, res.Err)
	}
	if sink.jobSeen != "job-1" || sink.last().Status != "cancelled" || sink.last().End == nil {
		t.Fatalf("last status = %+v", sink.last())
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Fatal("cancelled job left an output")
	}
}

func TestInPlaceBacksUpOriginal(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "photo.jpg")
	writeJPEG(t, in, pdftest.Gradient(640, 480, 3), 100)
	orig, err := os.ReadFile(in)
	if err != nil {
		t.Fatal(err)
	}
	backupDir := filepath.Join(t.TempDir(), "backup")
	e := New(Options{Config: testConfig(), Backup: storage.NewLocalBackup(backupDir)})

	res := e.Optimize(context.Background(), Request{Input: in, JobID: "inplace"})
	if res.Status != model.StatusSuccess {
		t.Fatalf("status = %s err = %v", res.Status, res.Err)
	}
	if res.Output != in || res.Diagnostics.Codec != model.CodecJPEG {
		t.Fatalf("result = %+v", res)
	}
	now, err := os.ReadFile(in)
	if err != nil {
		t.Fatal(err)
	}
	if int64(len(now)) != res.OutputSize || len(now) >= len(orig) {
		t.Fatalf("in-place file %d bytes, original %d", len(now), len(orig))
	}
	saved, err := os.ReadFile(filepath.Join(backupDir, "inplace", "photo.jpg"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(saved, orig) {
		t.Fatal("backup differs from original")
	}
}

func TestWebPOutputGetsJPEGName(t *testing.T) {
	dir := t.TempDir()
	webp := filepath.Join(dir, "photo.webp")
	cases := []struct {
		name    string
		output  string
		inPlace bool
		taken   bool
		want    string
		wantErr bool
	}{
		{"in place", webp, true, false, filepath.Join(dir, "photo.jpg"), false},
		{"explicit webp output", filepath.Join(dir, "small.WEBP"), false, false, filepath.Join(dir, "small.jpg"), false},
		{"explicit jpg output", filepath.Join(dir, "out.jpg"), false, false, filepath.Join(dir, "out.jpg"), false},
		{"in place next to an existing jpg", webp, true, true, webp, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.taken {
				jpg := filepath.Join(dir, "photo.jpg")
				os.WriteFile(jpg, []byte("someone else's"), 0o644)
				defer os.Remove(jpg)
			}
			j := &job{input: webp, output: tc.output, inPlace: tc.inPlace, log: zerolog.Nop()}
			err := j.retargetWebP()
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v", err)
			}
			if j.output != tc.want {
				t.Fatalf("output = %s, want %s", j.output, tc.want)
			}
		})
	}
}

func TestInPlaceWebPCommitReplacesOriginal(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "photo.webp")
	os.WriteFile(in, []byte("RIFF original webp"), 0o644)
	backupDir := filepath.Join(t.TempDir(), "backup")
	e := New(Options{Config: testConfig(), Backup: storage.NewLocalBackup(backupDir)})

	j := &job{id: "webp", input: in, output: in, inPlace: true, log: zerolog.Nop()}
	if err := j.retargetWebP(); err != nil {
		t.Fatal(err)
	}
	tmp, err := newTemp(dir, ".jpg")
	if err != nil {
		t.Fatal(err)
	}
	os.WriteFile(tmp, []byte("jpeg bytes"), 0o644)
	if err := e.commit(context.Background(), j, validate.Artifact{Path: tmp}); err != nil {
		t.Fatal(err)
	}

	if got, _ := os.ReadFile(filepath.Join(dir, "photo.jpg")); string(got) != "jpeg bytes" {
		t.Fatalf("replacement = %q", got)
	}
	if _, err := os.Stat(in); !os.IsNotExist(err) {
		t.Fatal("original webp still in place")
	}
	if saved, _ := os.ReadFile(filepath.Join(backupDir, "webp", "photo.webp")); string(saved) != "RIFF original webp" {
		t.Fatalf("backup = %q", saved)
	}
	assertNoTemps(t, dir)
}

func TestPNGStaysPNG(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "shot.png")
	var b bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.NoCompression}
	img := image.NewRGBA(image.Rect(0, 0, 300, 200))
	for i := range img.Pix {
		img.Pix[i] = uint8(i / 4 % 7 * 30)
	}
	if err := enc.Encode(&b, img); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(in, b.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "out.png")

	res := newEngine(t, nil).Optimize(context.Background(), Request{Input: in, Output: out})
	if res.Status != model.StatusSuccess {
		t.Fatalf("status = %s err = %v", res.Status, res.Err)
	}
	if res.Diagnostics.Codec != "png" {
		t.Fatalf("codec = %q", res.Diagnostics.Codec)
	}
	f, err := os.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := png.Decode(f); err != nil {
		t.Fatalf("output is not a PNG: %v", err)
	}
}

type recordingHistory struct {
	mu      sync.Mutex
	results []model.JobResult
}

func (h *recordingHistory) Record(r model.JobResult) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.results = append(h.results, r)
	return nil
}

func TestOptimizeBatchKeepsOrder(t *testing.T) {
	dir := t.TempDir()
	jpg := filepath.Join(dir, "a.jpg")
	writeJPEG(t, jpg, pdftest.Gradient(320, 240, 1), 100)
	txt := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(txt, []byte("plain text is not supported"), 0o644); err != nil {
		t.Fatal(err)
	}
	missing := filepath.Join(dir, "missing.pdf")

	reqs := []Request{
		{Input: missing, Output: filepath.Join(dir, "m.out")},
		{Input: jpg, Output: filepath.Join(dir, "a.out.jpg")},
		{Input: txt, Output: filepath.Join(dir, "t.out")},
	}
	results := newEngine(t, nil).OptimizeBatch(context.Background(), reqs)
	if len(results) != len(reqs) {
		t.Fatalf("got %d results", len(results))
	}
	for i, r := range results {
		if r.Input != reqs[i].Input {
			t.Fatalf("result %d is for %s", i, r.Input)
		}
	}
	if results[0].Status != model.StatusFailed || results[0].Message != model.MsgUnreadable {
		t.Fatalf("missing: %+v", results[0])
	}
	if results[1].Status != model.StatusSuccess {
		t.Fatalf("jpeg: %s %v", results[1].Status, results[1].Err)
	}
	if results[2].Status != model.StatusFailed || results[2].Message != model.MsgUnsupported {
		t.Fatalf("text: %+v", results[2])
	}
}

func TestUnknownProfileFails(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "a.jpg")
	writeJPEG(t, in, pdftest.Gradient(64, 64, 1), 90)
	res := newEngine(t, nil).Optimize(context.Background(), Request{Input: in, Output: in + ".out", Profile: "ludicrous"})
	if res.Status != model.StatusFailed || res.Err == nil {
		t.Fatalf("status = %s", res.Status)
	}
}

func TestAnalyzeDoesNotModify(t *testing.T) {
	dir := t.TempDir()
	in := writePDF(t, dir, pdftest.TextPages(2))
	before, err := os.ReadFile(in)
	if err != nil {
		t.Fatal(err)
	}
	rep, err := newEngine(t, nil).Analyze(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if rep.PageCount != 2 || rep.Kind != "pdf" {
		t.Fatalf("report = %+v", rep)
	}
	after, _ := os.ReadFile(in)
	if !bytes.Equal(before, after) {
		t.Fatal("analyze modified the file")
	}
}

func TestCleanupTemps(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, tempPrefix+"old.pdf")
	fresh := filepath.Join(dir, tempPrefix+"fresh.pdf")
	other := filepath.Join(dir, "keep.pdf")
	for _, p := range []string{old, fresh, other} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	past := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(other, past, past); err != nil {
		t.Fatal(err)
	}
	if n := CleanupTemps(dir, time.Hour); n != 1 {
		t.Fatalf("removed %d", n)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatal("old temp kept")
	}
	for _, p := range []string{fresh, other} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("%s removed", p)
		}
	}
}

func TestTrackerIsMonotonic(t *testing.T) {
	var got []float64
	tr := newTracker(func(f float64, _ string) { got = append(got, f) }, nil, "j")
	tr.report(0.4, StageAnalyzing)
	tr.report(0.2, StageRewriting)
	tr.report(1.5, StageRewriting)
	want := []float64{0.4, 0.4, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("progress = %v", got)
		}
	}
	span := tr.span(0, 1, StageRewriting)
	span(1, 0)
	if len(got) != 3 {
		t.Fatal("zero total reported progress")
	}
}
