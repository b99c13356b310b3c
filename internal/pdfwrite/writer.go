// Package pdfwrite serializes a new PDF file: pages copied from a source
// document, composite pages built from image assets, and invisible text.
package pdfwrite

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zlib"
)

const (
	catalogObj = 1
	pagesObj   = 2
)

// Writer collects numbered objects and writes them with a classic xref table.
type Writer struct {
	objects map[int][]byte
	next    int
	kids    []int
}

// New returns a writer with the catalog and page tree root reserved.
func New() *Writer {
	return &Writer{objects: make(map[int][]byte), next: pagesObj + 1}
}

// Alloc reserves an object number without content.
func (w *Writer) Alloc() int {
	n := w.next
	w.next++
	return n
}

// Put sets the body of a previously allocated object.
func (w *Writer) Put(num int, body []byte) {
	w.objects[num] = body
	if num >= w.next {
		w.next = num + 1
	}
}

// Add stores body as a new object and returns its number.
func (w *Writer) Add(body []byte) int {
	n := w.Alloc()
	w.objects[n] = body
	return n
}

// AddStream stores a stream object. dict holds the inner dictionary entries
// without delimiters; Length and, when compressing, Filter are added here.
func (w *Writer) AddStream(dict string, data []byte, compress bool) (int, error) {
	body, err := streamBody(dict, data, compress)
	if err != nil {
		return 0, err
	}
	return w.Add(body), nil
}

func streamBody(dict string, data []byte, compress bool) ([]byte, error) {
	if compress {
		var buf bytes.Buffer
		zw, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
		if err != nil {
			return nil, fmt.Errorf("flate writer: %w", err)
		}
		if _, err := zw.Write(data); err != nil {
			return nil, fmt.Errorf("flate stream: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("flate stream: %w", err)
		}
		data = buf.Bytes()
		dict = strings.TrimSpace(dict + " /Filter /FlateDecode")
	}
	var b bytes.Buffer
	b.Grow(len(data) + len(dict) + 64)
	fmt.Fprintf(&b, "<< %s /Length %d >>\nstream\n", dict, len(data))
	b.Write(data)
	b.WriteString("\nendstream")
	return b.Bytes(), nil
}

// Ref formats an indirect reference to object n.
func Ref(n int) string { return strconv.Itoa(n) + " 0 R" }

// PageSpec describes one page object. Resources and Contents are serialized
// PDF values; Contents may be empty.
type PageSpec struct {
	MediaBox  [4]float64
	CropBox   *[4]float64
	Rotate    int
	Resources string
	Contents  string
	Extra     string
}

// AddPage appends a page to the page tree and returns its object number.
func (w *Writer) AddPage(p PageSpec) int {
	var b strings.Builder
	fmt.Fprintf(&b, "<< /Type /Page /Parent %d 0 R /MediaBox %s", pagesObj, rect(p.MediaBox))
	if p.CropBox != nil && *p.CropBox != p.MediaBox {
		fmt.Fprintf(&b, " /CropBox %s", rect(*p.CropBox))
	}
	if p.Rotate != 0 {
		fmt.Fprintf(&b, " /Rotate %d", p.Rotate)
	}
	res := p.Resources
	if res == "" {
		res = "<< >>"
	}
	fmt.Fprintf(&b, " /Resources %s", res)
	if p.Contents != "" {
		fmt.Fprintf(&b, " /Contents %s", p.Contents)
	}
	if p.Extra != "" {
		b.WriteString(" ")
		b.WriteString(p.Extra)
	}
	b.WriteString(" >>")
	n := w.Add([]byte(b.String()))
	w.kids = append(w.kids, n)
	return n
}

// PageCount returns the number of pages added so far.
func (w *Writer) PageCount() int { return len(w.kids) }

// WriteTo serializes the document.
func (w *Writer) WriteTo(out io.Writer) (int64, error) {
	cw := &countingWriter{w: bufio.NewWriterSize(out, 256<<10)}
	w.objects[catalogObj] = []byte(fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R >>", pagesObj))
	var kids strings.Builder
	for i, k := range w.kids {
		if i > 0 {
			kids.WriteByte(' ')
		}
		fmt.Fprintf(&kids, "%d 0 R", k)
	}
	w.objects[pagesObj] = []byte(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids.String(), len(w.kids)))

	cw.WriteString("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")
	offsets := make([]int64, w.next)
	for n := 1; n < w.next; n++ {
		offsets[n] = cw.n
		body, ok := w.objects[n]
		if !ok {
			body = []byte("null")
		}
		cw.WriteString(strconv.Itoa(n))
		cw.WriteString(" 0 obj\n")
		cw.Write(body)
		cw.WriteString("\nendobj\n")
	}
	xref := cw.n
	fmt.Fprintf(cw, "xref\n0 %d\n0000000000 65535 f \n", w.next)
	for n := 1; n < w.next; n++ {
		fmt.Fprintf(cw, "%010d 00000 n \n", offsets[n])
	}
	fmt.Fprintf(cw, "trailer\n<< /Size %d /Root %d 0 R >>\nstartxref\n%d\n%%%%EOF\n", w.next, catalogObj, xref)
	if cw.err != nil {
		return cw.n, fmt.Errorf("write pdf: %w", cw.err)
	}
	if err := cw.w.Flush(); err != nil {
		return cw.n, fmt.Errorf("flush pdf: %w", err)
	}
	return cw.n, nil
}

type countingWriter struct {
	w   *bufio.Writer
	n   int64
	err error
}

func (c *countingWriter) Write(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	n, err := c.w.Write(p)
	c.n += int64(n)
	c.err = err
	return n, err
}

func (c *countingWriter) WriteString(s string) {
	_, _ = c.Write([]byte(s))
}

func rect(r [4]float64) string {
	return fmt.Sprintf("[%s %s %s %s]", num(r[0]), num(r[1]), num(r[2]), num(r[3]))
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// fnum formats content stream operands with bounded precision.
func fnum(f float64) string {
	return strconv.FormatFloat(f, 'f', 3, 64)
}
