package model

import (
	"math"
	"sort"
)

// Rect is an axis-aligned rectangle in a page's pixel space (origin top-left).
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

func (r Rect) Right() float64  { return r.X + r.W }
func (r Rect) Bottom() float64 { return r.Y + r.H }
func (r Rect) Empty() bool     { return r.W <= 0 || r.H <= 0 }

func (r Rect) Area() float64 {
	if r.Empty() {
		return 0
	}
	return r.W * r.H
}

// Intersect returns the overlapping part of r and o, or the zero Rect.
func (r Rect) Intersect(o Rect) Rect {
	x0 := math.Max(r.X, o.X)
	y0 := math.Max(r.Y, o.Y)
	x1 := math.Min(r.Right(), o.Right())
	y1 := math.Min(r.Bottom(), o.Bottom())
	if x1 <= x0 || y1 <= y0 {
		return Rect{}
	}
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// Union returns the bounding box of r and o.
func (r Rect) Union(o Rect) Rect {
	if r.Empty() {
		return o
	}
	if o.Empty() {
		return r
	}
	x0 := math.Min(r.X, o.X)
	y0 := math.Min(r.Y, o.Y)
	x1 := math.Max(r.Right(), o.Right())
	y1 := math.Max(r.Bottom(), o.Bottom())
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// Clamp restricts r to [0,w]x[0,h].
func (r Rect) Clamp(w, h float64) Rect {
	return r.Intersect(Rect{W: w, H: h})
}

// Grow grows (d > 0) or shrinks (d < 0) the rectangle on every side.
func (r Rect) Grow(d float64) Rect {
	out := Rect{X: r.X - d, Y: r.Y - d, W: r.W + 2*d, H: r.H + 2*d}
	if out.W < 0 {
		out.W = 0
	}
	if out.H < 0 {
		out.H = 0
	}
	return out
}

// Scale maps r from one pixel space into another.
func (r Rect) Scale(sx, sy float64) Rect {
	return Rect{X: r.X * sx, Y: r.Y * sy, W: r.W * sx, H: r.H * sy}
}

// UnionArea is the area covered by rects, counting overlaps once.
// Slabs between consecutive x edges are swept and their y-intervals merged.
func UnionArea(rects []Rect) float64 {
	live := make([]Rect, 0, len(rects))
	xs := make([]float64, 0, 2*len(rects))
	for _, r := range rects {
		if r.Empty() {
			continue
		}
		live = append(live, r)
		xs = append(xs, r.X, r.Right())
	}
	if len(live) == 0 {
		return 0
	}
	if len(live) == 1 {
		return live[0].Area()
	}
	sort.Float64s(xs)
	sort.Slice(live, func(i, j int) bool { return live[i].X < live[j].X })

	type span struct{ lo, hi float64 }
	spans := make([]span, 0, len(live))
	var total float64
	for i := 0; i+1 < len(xs); i++ {
		x0, x1 := xs[i], xs[i+1]
		if x1 <= x0 {
			continue
		}
		spans = spans[:0]
		for _, r := range live {
			if r.X > x0 {
				break
			}
			if r.Right() >= x1 {
				spans = append(spans, span{r.Y, r.Bottom()})
			}
		}
		if len(spans) == 0 {
			continue
		}
		sort.Slice(spans, func(a, b int) bool { return spans[a].lo < spans[b].lo })
		cur := spans[0]
		var covered float64
		for _, s := range spans[1:] {
			if s.lo > cur.hi {
				covered += cur.hi - cur.lo
				cur = s
				continue
			}
			if s.hi > cur.hi {
				cur.hi = s.hi
			}
		}
		covered += cur.hi - cur.lo
		total += covered * (x1 - x0)
	}
	return total
}

// Coverage is the union area of rects inside the w x h frame over the frame area, in [0,1].
func Coverage(rects []Rect, w, h float64) float64 {
	if w <= 0 || h <= 0 {
		return 0
	}
	clipped := make([]Rect, 0, len(rects))
	for _, r := range rects {
		if c := r.Clamp(w, h); !c.Empty() {
			clipped = append(clipped, c)
		}
	}
	return Clamp01(UnionArea(clipped) / (w * h))
}

// Clamp01 bounds v to [0,1]; NaN maps to 0.
func Clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
