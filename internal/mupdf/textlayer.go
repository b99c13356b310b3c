package mupdf

import (
	"errors"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/local/docshrink/internal/model"
)

// textLine is one positioned line of MuPDF's structured-text HTML, in points.
type textLine struct {
	Top, Left, LineHeight, FontSize float64
	Text                            string
}

// parseTextLines reads the <p style="top:..;left:..;line-height:.."> blocks MuPDF emits.
func parseTextLines(markup string) ([]textLine, error) {
	z := html.NewTokenizer(strings.NewReader(markup))
	var (
		lines []textLine
		cur   *textLine
		sb    strings.Builder
	)
	flush := func() {
		if cur == nil {
			return
		}
		cur.Text = strings.Join(strings.Fields(sb.String()), " ")
		if cur.Text != "" {
			lines = append(lines, *cur)
		}
		cur = nil
		sb.Reset()
	}
	for {
		switch z.Next() {
		case html.ErrorToken:
			flush()
			if err := z.Err(); err != nil && !errors.Is(err, io.EOF) {
				return lines, err
			}
			return lines, nil
		case html.StartTagToken:
			name, hasAttr := z.TagName()
			style := ""
			for hasAttr {
				var k, v []byte
				k, v, hasAttr = z.TagAttr()
				if string(k) == "style" {
					style = string(v)
				}
			}
			switch string(name) {
			case "p":
				flush()
				st := parseStyle(style)
				cur = &textLine{Top: st["top"], Left: st["left"], LineHeight: st["line-height"]}
			case "span":
				if cur != nil {
					if fs := parseStyle(style)["font-size"]; fs > 0 && fs > cur.FontSize {
						cur.FontSize = fs
					}
				}
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); string(name) == "p" {
				flush()
			}
		case html.TextToken:
			if cur != nil {
				sb.Write(z.Text())
				sb.WriteByte(' ')
			}
		}
	}
}

// parseStyle extracts numeric point values from an inline CSS declaration list.
func parseStyle(style string) map[string]float64 {
	out := map[string]float64{}
	for _, decl := range strings.Split(style, ";") {
		k, v, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		v = strings.TrimSuffix(strings.TrimSpace(v), "pt")
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			out[strings.TrimSpace(k)] = f
		}
	}
	return out
}

// toElements maps point-space lines into a pixel space. Line width is not part
// of the markup, so it is estimated from the glyph count and font size.
func toElements(lines []textLine, pageW, pageH float64, pixelW, pixelH int) []model.TextElement {
	if pageW <= 0 || pageH <= 0 || pixelW <= 0 || pixelH <= 0 {
		return nil
	}
	sx := float64(pixelW) / pageW
	sy := float64(pixelH) / pageH
	out := make([]model.TextElement, 0, len(lines))
	for _, l := range lines {
		size := l.FontSize
		if size <= 0 {
			size = l.LineHeight
		}
		if size <= 0 {
			size = 10
		}
		height := l.LineHeight
		if height <= 0 || height > 2*size {
			height = size
		}
		width := float64(utf8.RuneCountInString(l.Text)) * size * 0.5
		if l.Left+width > pageW {
			width = pageW - l.Left
		}
		box := model.Rect{X: l.Left, Y: l.Top, W: width, H: height}.Clamp(pageW, pageH)
		if box.Empty() {
			continue
		}
		out = append(out, model.TextElement{Text: l.Text, Box: box.Scale(sx, sy)})
	}
	return out
}
