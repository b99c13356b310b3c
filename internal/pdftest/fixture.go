package pdftest

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/local/docshrink/internal/pdfwrite"
)

// PageFixture describes one generated page. Lines are drawn as visible
// Helvetica text; Photo, when set, fills the page as a JPEG.
type PageFixture struct {
	Lines  []string
	Photo  image.Image
	Width  float64
	Height float64
	Rotate int
}

// TextPages returns n letter-sized pages of body text.
func TextPages(n int) []PageFixture {
	pages := make([]PageFixture, n)
	for i := range pages {
		lines := make([]string, 30)
		for j := range lines {
			lines[j] = fmt.Sprintf("Page %d line %d: the quick brown fox jumps over the lazy dog.", i+1, j+1)
		}
		pages[i] = PageFixture{Lines: lines}
	}
	return pages
}

// PhotoPages returns n pages each covered by a noisy gradient photo.
func PhotoPages(n, pixelW, pixelH int) []PageFixture {
	pages := make([]PageFixture, n)
	for i := range pages {
		pages[i] = PageFixture{Photo: Gradient(pixelW, pixelH, int64(i))}
	}
	return pages
}

// Gradient returns a deterministic colourful image with high-frequency noise.
func Gradient(w, h int, seed int64) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	s := uint32(seed*2654435761 + 1)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			s = s*1664525 + 1013904223
			n := uint8(s >> 27)
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(x*255/max(w, 1)) ^ n,
				G: uint8(y*255/max(h, 1)) ^ n,
				B: uint8((x+y)*127/max(w+h, 1)) + n,
				A: 255,
			})
		}
	}
	return img
}

// Write renders pages into a new PDF at path.
func Write(path string, pages []PageFixture) error {
	w := pdfwrite.New()
	font := w.Font()
	for i, p := range pages {
		width, height := p.Width, p.Height
		if width == 0 || height == 0 {
			width, height = 612, 792
		}
		var res pdfwrite.Resources
		var content bytes.Buffer
		if p.Photo != nil {
			var jb bytes.Buffer
			if err := jpeg.Encode(&jb, p.Photo, &jpeg.Options{Quality: 95}); err != nil {
				return fmt.Errorf("page %d photo: %w", i, err)
			}
			img, err := w.AddJPEG(jb.Bytes())
			if err != nil {
				return err
			}
			fmt.Fprintf(&content, "q %g 0 0 %g 0 0 cm /%s Do Q\n", width, height, res.AddXObject(img))
		}
		if len(p.Lines) > 0 {
			name := res.AddFont(font)
			fmt.Fprintf(&content, "BT /%s 11 Tf 14 TL 56 %g Td\n", name, height-72)
			for _, line := range p.Lines {
				fmt.Fprintf(&content, "(%s) Tj T*\n", escape(line))
			}
			content.WriteString("ET\n")
		}
		contents, err := w.AddStream("", content.Bytes(), true)
		if err != nil {
			return err
		}
		w.AddPage(pdfwrite.PageSpec{
			MediaBox:  [4]float64{0, 0, width, height},
			Rotate:    p.Rotate,
			Resources: res.String(),
			Contents:  pdfwrite.Ref(contents),
		})
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := w.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func escape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}

var (
	startXRefRe = regexp.MustCompile(`startxref\s+(\d+)\s+%%EOF\s*$`)
	sizeRe      = regexp.MustCompile(`/Size\s+(\d+)`)
)

// AppendIncrementalUpdates appends n valid incremental update sections to the
// PDF at path. Each one adds a new Info dictionary and its own %%EOF marker.
func AppendIncrementalUpdates(path string, n int) error {
	for i := 0; i < n; i++ {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		m := startXRefRe.FindSubmatch(data)
		if m == nil {
			return fmt.Errorf("%s: no trailing startxref", path)
		}
		prev, _ := strconv.Atoi(string(m[1]))
		sizes := sizeRe.FindAllSubmatch(data, -1)
		if len(sizes) == 0 {
			return fmt.Errorf("%s: no trailer size", path)
		}
		size, _ := strconv.Atoi(string(sizes[len(sizes)-1][1]))

		var b bytes.Buffer
		objOff := len(data)
		fmt.Fprintf(&b, "%d 0 obj\n<< /Producer (revision %d) >>\nendobj\n", size, i+1)
		xref := objOff + b.Len()
		fmt.Fprintf(&b, "xref\n0 1\n0000000000 65535 f \n%d 1\n%010d 00000 n \n", size, objOff)
		fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R /Info %d 0 R /Prev %d >>\nstartxref\n%d\n%%%%EOF\n", size+1, size, prev, xref)

		f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
		if err != nil {
			return err
		}
		if _, err := f.Write(b.Bytes()); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	return nil
}

var (
	firstObjRe  = regexp.MustCompile(`(?m)^\d+ 0 obj`)
	xrefEntryRe = regexp.MustCompile(`(?m)^(\d{10}) (\d{5}) n`)
	startNumRe  = regexp.MustCompile(`startxref\s+(\d+)`)
)

// Linearize rewrites the single-revision PDF at path into the fast web view
// layout: a linearization dictionary and a first-page xref section, closed by
// its own %%EOF, sit right after the header. Main xref offsets are shifted so
// the file still parses.
func Linearize(path string, pages int) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	loc := firstObjRe.FindIndex(data)
	if loc == nil {
		return fmt.Errorf("%s: no objects", path)
	}
	sizes := sizeRe.FindAllSubmatch(data, -1)
	if len(sizes) == 0 {
		return fmt.Errorf("%s: no trailer size", path)
	}
	size, _ := strconv.Atoi(string(sizes[len(sizes)-1][1]))

	at := loc[0]
	var head bytes.Buffer
	fmt.Fprintf(&head, "%d 0 obj\n<< /Linearized 1 /L %d /N %d /T %d >>\nendobj\n", size, len(data), pages, len(data))
	fmt.Fprintf(&head, "xref\n%d 1\n%010d 00000 n \ntrailer\n<< /Size %d >>\nstartxref\n0\n%%%%EOF\n", size, at, size+1)
	shift := head.Len()

	body := xrefEntryRe.ReplaceAllFunc(data[at:], func(m []byte) []byte {
		sub := xrefEntryRe.FindSubmatch(m)
		off, _ := strconv.Atoi(string(sub[1]))
		return []byte(fmt.Sprintf("%010d %s n", off+shift, sub[2]))
	})
	body = startNumRe.ReplaceAllFunc(body, func(m []byte) []byte {
		sub := startNumRe.FindSubmatch(m)
		off, _ := strconv.Atoi(string(sub[1]))
		return []byte(fmt.Sprintf("startxref\n%d", off+shift))
	})

	out := make([]byte, 0, len(data)+shift)
	out = append(out, data[:at]...)
	out = append(out, head.Bytes()...)
	out = append(out, body...)
	return os.WriteFile(path, out, 0o644)
}
