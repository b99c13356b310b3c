package pdfwrite

import (
	"bytes"
	"fmt"
	"image/color"
	"image/jpeg"
	"strings"
)

// AddJPEG embeds already-encoded JPEG bytes as a DCTDecode image XObject.
// Size and colour space come from the JPEG header.
func (w *Writer) AddJPEG(data []byte) (int, error) {
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("jpeg header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return 0, fmt.Errorf("jpeg image has invalid size %dx%d", cfg.Width, cfg.Height)
	}
	cs := "/DeviceRGB"
	switch cfg.ColorModel {
	case color.GrayModel:
		cs = "/DeviceGray"
	case color.CMYKModel:
		cs = "/DeviceCMYK /Decode [1 0 1 0 1 0 1 0]"
	}
	dict := fmt.Sprintf("/Type /XObject /Subtype /Image /Width %d /Height %d /ColorSpace %s /BitsPerComponent 8 /Filter /DCTDecode",
		cfg.Width, cfg.Height, cs)
	return w.AddStream(dict, data, false)
}

// AddMask embeds a packed 1-bit stencil mask. Rows are padded to whole bytes
// and a 0 bit marks a painted pixel.
func (w *Writer) AddMask(bits []byte, width, height int) (int, error) {
	stride := (width + 7) / 8
	if width <= 0 || height <= 0 || len(bits) < stride*height {
		return 0, fmt.Errorf("mask %dx%d needs %d bytes, got %d", width, height, stride*height, len(bits))
	}
	dict := fmt.Sprintf("/Type /XObject /Subtype /Image /Width %d /Height %d /ImageMask true /BitsPerComponent 1", width, height)
	return w.AddStream(dict, bits[:stride*height], true)
}

// Resources accumulates named XObjects and fonts for one page.
type Resources struct {
	xobjects []string
	fonts    []string
}

// AddXObject registers an image and returns its resource name.
func (r *Resources) AddXObject(num int) string {
	name := fmt.Sprintf("Im%d", len(r.xobjects))
	r.xobjects = append(r.xobjects, fmt.Sprintf("/%s %d 0 R", name, num))
	return name
}

// AddFont registers a font and returns its resource name.
func (r *Resources) AddFont(num int) string {
	name := fmt.Sprintf("F%d", len(r.fonts)+1)
	r.fonts = append(r.fonts, fmt.Sprintf("/%s %d 0 R", name, num))
	return name
}

func (r *Resources) String() string {
	var b strings.Builder
	b.WriteString("<<")
	if len(r.xobjects) > 0 {
		b.WriteString(" /XObject << ")
		b.WriteString(strings.Join(r.xobjects, " "))
		b.WriteString(" >>")
	}
	if len(r.fonts) > 0 {
		b.WriteString(" /Font << ")
		b.WriteString(strings.Join(r.fonts, " "))
		b.WriteString(" >>")
	}
	b.WriteString(" /ProcSet [/PDF /Text /ImageB /ImageC] >>")
	return b.String()
}

// Content builds a page content stream.
type Content struct {
	b strings.Builder
}

// DrawImage paints XObject name into the rectangle (x, y, w, h) in points.
func (c *Content) DrawImage(name string, x, y, w, h float64) {
	fmt.Fprintf(&c.b, "q\n%s 0 0 %s %s %s cm\n/%s Do\nQ\n", fnum(w), fnum(h), fnum(x), fnum(y), name)
}

// DrawMask fills the stencil mask name with ink.
func (c *Content) DrawMask(name string, ink color.RGBA, x, y, w, h float64) {
	fmt.Fprintf(&c.b, "q\n%s %s %s rg\n", fnum(float64(ink.R)/255), fnum(float64(ink.G)/255), fnum(float64(ink.B)/255))
	fmt.Fprintf(&c.b, "%s 0 0 %s %s %s cm\n/%s Do\nQ\n", fnum(w), fnum(h), fnum(x), fnum(y), name)
}

// Len reports the size of the stream built so far.
func (c *Content) Len() int { return c.b.Len() }

func (c *Content) Bytes() []byte { return []byte(c.b.String()) }

// AddContent stores c as a compressed content stream.
func (w *Writer) AddContent(c *Content) (int, error) {
	return w.AddStream("", c.Bytes(), true)
}
