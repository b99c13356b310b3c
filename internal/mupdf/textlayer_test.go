package mupdf

import (
	"math"
	"testing"
)

const sampleMarkup = `<div id="page0" style="width:612.0pt;height:792.0pt">
<p style="top:72.0pt;left:72.0pt;line-height:12.0pt"><span style="font-family:Helvetica,sans-serif;font-size:12.0pt">Hello   <b>World</b></span></p>
<p style="top:100.0pt;left:600.0pt;line-height:10.0pt"><span style="font-size:10.0pt">overflowing line</span></p>
<p style="top:120.0pt;left:72.0pt;line-height:10.0pt"><span style="font-size:10.0pt">   </span></p>
</div>`

func TestParseTextLines(t *testing.T) {
	lines, err := parseTextLines(sampleMarkup)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %+v", len(lines), lines)
	}
	first := lines[0]
	if first.Text != "Hello World" || first.Top != 72 || first.Left != 72 || first.FontSize != 12 {
		t.Errorf("first line = %+v", first)
	}
}

func TestToElementsScalesAndClamps(t *testing.T) {
	lines, _ := parseTextLines(sampleMarkup)
	els := toElements(lines, 612, 792, 1224, 1584)
	if len(els) != 2 {
		t.Fatalf("got %d elements", len(els))
	}
	b := els[0].Box
	if b.X != 144 || b.Y != 144 || b.H != 24 {
		t.Errorf("first box = %+v", b)
	}
	if w := 11 * 12 * 0.5 * 2; math.Abs(b.W-w) > 1e-9 {
		t.Errorf("first width = %v, want %v", b.W, w)
	}
	if r := els[1].Box.Right(); r > 1224+1e-9 {
		t.Errorf("second box overflows page: right = %v", r)
	}
}

func TestParseStyle(t *testing.T) {
	st := parseStyle("top:10.5pt; left: 3pt;font-family:Times;line-height:12pt")
	if st["top"] != 10.5 || st["left"] != 3 || st["line-height"] != 12 {
		t.Errorf("parseStyle = %v", st)
	}
	if _, ok := st["font-family"]; ok {
		t.Error("non-numeric value should be skipped")
	}
}
