// Package rewrite decides, per page, between copying the original content
// stream, splitting it into MRC layers, or re-encoding it as one raster, and
// produces the plans the reassembler consumes.
package rewrite

import (
	"sort"

	"github.com/local/docshrink/internal/model"
)

// Route names as reported in diagnostics and metrics.
const (
	RouteVector   = "vector"
	RouteMRC      = "mrc"
	RouteRaster   = "raster"
	RouteFallback = "fallback"
	RouteBlank    = "blank"
)

// Decide picks the route for one page. seg may be nil when the page was not
// analysed.
func Decide(meta model.PageMetadata, seg *model.PageSegmentation, p model.OptimizationProfile, textThreshold int) string {
	vectorText := meta.TextLength > textThreshold
	if seg != nil && seg.HasVectorText {
		vectorText = true
	}
	if vectorText && p.PreserveVector {
		return RouteVector
	}
	if p.MRC && seg != nil && (seg.Class == model.ContentScannedDocument || seg.Class == model.ContentMixed) {
		return RouteMRC
	}
	return RouteRaster
}

// SegmentationFor returns page's own segmentation, or a copy of the nearest
// analysed page's classification with its geometry dropped. exact reports
// which one it is.
func SegmentationFor(segs map[int]model.PageSegmentation, page int) (seg *model.PageSegmentation, exact bool) {
	if s, ok := segs[page]; ok {
		return &s, true
	}
	if len(segs) == 0 {
		return nil, false
	}
	keys := make([]int, 0, len(segs))
	for k := range segs {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	i := sort.SearchInts(keys, page)
	best := -1
	if i < len(keys) {
		best = keys[i]
	}
	if i > 0 && (best < 0 || page-keys[i-1] <= best-page) {
		best = keys[i-1]
	}
	s := segs[best]
	borrowed := model.PageSegmentation{
		Index:         page,
		Class:         s.Class,
		HasVectorText: s.HasVectorText,
		Intent:        s.Intent,
		TextCoverage:  s.TextCoverage,
		ImageCoverage: s.ImageCoverage,
	}
	return &borrowed, false
}

// CountRoutes tallies plan routes.
func CountRoutes(plans []model.PagePlan) map[string]int {
	out := make(map[string]int)
	for _, p := range plans {
		out[p.Route]++
	}
	return out
}
