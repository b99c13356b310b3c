package segment

import (
	"sort"

	"github.com/local/docshrink/internal/model"
	"github.com/local/docshrink/internal/scanner"
)

// SamplePages picks the pages worth rendering: first 3, last 2, the middle
// page and its neighbours, up to 5 highest-anomaly pages, then pages on either
// side of a text/no-text transition. The result is sorted and at most limit
// long. A full scan, or a document no larger than limit, returns every page.
func SamplePages(pageCount int, meta map[int]model.PageMetadata, textThreshold, limit int, full bool) []int {
	if pageCount <= 0 {
		return nil
	}
	if full || limit <= 0 || pageCount <= limit {
		all := make([]int, pageCount)
		for i := range all {
			all[i] = i
		}
		return all
	}

	chosen := make(map[int]bool, limit)
	var order []int
	add := func(i int) {
		if i < 0 || i >= pageCount || chosen[i] || len(order) >= limit {
			return
		}
		chosen[i] = true
		order = append(order, i)
	}

	for i := 0; i < 3; i++ {
		add(i)
	}
	add(pageCount - 2)
	add(pageCount - 1)
	mid := pageCount / 2
	add(mid - 1)
	add(mid)
	add(mid + 1)
	for _, i := range scanner.TopAnomalies(meta, 5) {
		add(i)
	}
	for i := 1; i < pageCount && len(order) < limit; i++ {
		prev, okPrev := meta[i-1]
		cur, okCur := meta[i]
		if !okPrev || !okCur {
			continue
		}
		if (prev.TextLength > textThreshold) != (cur.TextLength > textThreshold) {
			add(i - 1)
			add(i)
		}
	}
	sort.Ints(order)
	return order
}
