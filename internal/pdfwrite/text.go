package pdfwrite

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// TextRun is a string placed over a box in page space (points, origin bottom-left).
type TextRun struct {
	Text string
	X, Y float64
	W, H float64
}

// Font adds the standard Helvetica font with WinAnsi encoding.
func (w *Writer) Font() int {
	return w.Add([]byte("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>"))
}

// InvisibleText writes runs in render mode 3 so they are searchable and
// selectable but never painted. Each run is scaled horizontally to its box.
func (c *Content) InvisibleText(font string, runs []TextRun) {
	enc := encoding.ReplaceUnsupported(charmap.Windows1252.NewEncoder())
	started := false
	for _, r := range runs {
		s := strings.TrimSpace(r.Text)
		if s == "" || r.W <= 0 || r.H <= 0 {
			continue
		}
		raw, err := enc.Bytes([]byte(s))
		if err != nil || len(raw) == 0 {
			continue
		}
		if !started {
			c.b.WriteString("BT\n3 Tr\n")
			started = true
		}
		size := r.H
		natural := helveticaWidth(raw) * size
		scale := 100.0
		if natural > 0 {
			scale = 100 * r.W / natural
		}
		fmt.Fprintf(&c.b, "/%s %s Tf\n%s Tz\n1 0 0 1 %s %s Tm\n(%s) Tj\n",
			font, fnum(size), fnum(scale), fnum(r.X), fnum(r.Y+0.2*size), escapeString(raw))
	}
	if started {
		c.b.WriteString("ET\n")
	}
}

// helveticaWidth approximates the advance of s in text space units per point.
func helveticaWidth(s []byte) float64 {
	var total float64
	for _, ch := range s {
		switch {
		case ch == ' ':
			total += 0.278
		case strings.IndexByte("iljtfI.,;:'!|", ch) >= 0:
			total += 0.28
		case strings.IndexByte("mwMW", ch) >= 0:
			total += 0.85
		case ch >= 'A' && ch <= 'Z':
			total += 0.667
		case ch >= '0' && ch <= '9':
			total += 0.556
		default:
			total += 0.5
		}
	}
	return total
}

func escapeString(b []byte) string {
	var s strings.Builder
	for _, ch := range b {
		switch ch {
		case '(', ')', '\\':
			s.WriteByte('\\')
			s.WriteByte(ch)
		case '\n':
			s.WriteString(`\n`)
		case '\r':
			s.WriteString(`\r`)
		default:
			s.WriteByte(ch)
		}
	}
	return s.String()
}
