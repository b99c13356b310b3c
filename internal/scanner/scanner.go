// Package scanner collects render-free facts about every page and scores how
// unusual each page looks, so later stages can sample instead of rendering all.
package scanner

import (
	"context"
	"math"
	"sort"
	"unicode"

	"github.com/rs/zerolog/log"

	"github.com/local/docshrink/internal/model"
	"github.com/local/docshrink/internal/pdfdoc"
)

// Anomaly weights.
const (
	WeightNoText          = 2
	WeightAnnotations     = 1
	WeightRotation        = 2
	WeightTrimMismatch    = 2
	WeightLandscapeNoText = 3
	WeightOversized       = 2
)

// OversizedPoints is the longest page side above which bounds count as oversized.
const OversizedPoints = 3000.0

// trimTolerance ignores rounding noise between trim and media boxes.
const trimTolerance = 0.5

// Pages is the structural view of a document.
type Pages interface {
	PageCount() int
	Page(i int) (pdfdoc.Page, error)
}

// TextSource extracts a page's plain text.
type TextSource interface {
	Text(page int) (string, error)
}

// Scanner builds page metadata.
type Scanner struct {
	TextThreshold int
}

func New(textThreshold int) *Scanner {
	if textThreshold <= 0 {
		textThreshold = 50
	}
	return &Scanner{TextThreshold: textThreshold}
}

// Scan returns metadata for every page that could be read. Pages that fail
// are left out of the map. Only ctx cancellation is returned as an error.
func (s *Scanner) Scan(ctx context.Context, pages Pages, text TextSource) (map[int]model.PageMetadata, error) {
	n := pages.PageCount()
	out := make(map[int]model.PageMetadata, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return out, model.ResourceError("scan", err)
		}
		p, err := pages.Page(i)
		if err != nil {
			log.Debug().Err(err).Int("page", i).Msg("page metadata unavailable")
			continue
		}
		m := model.PageMetadata{
			Index:           i,
			AnnotationCount: p.Annots,
			Rotation:        p.Rotate,
			Width:           p.MediaBox.Width(),
			Height:          p.MediaBox.Height(),
			TrimDelta:       trimDelta(p.MediaBox, p.TrimBox),
		}
		if text != nil {
			t, err := text.Text(i)
			if err != nil {
				log.Debug().Err(err).Int("page", i).Msg("page text unavailable")
				continue
			}
			m.TextLength = TextLength(t)
		}
		m.Anomaly = s.Score(m)
		out[i] = m
	}
	log.Debug().Int("pages", n).Int("scanned", len(out)).Msg("metadata scan done")
	return out, nil
}

// Score sums the anomaly weights that apply to m.
func (s *Scanner) Score(m model.PageMetadata) int {
	score := 0
	noText := m.TextLength < s.TextThreshold
	if noText {
		score += WeightNoText
	}
	if m.AnnotationCount > 0 {
		score += WeightAnnotations
	}
	if m.Rotation != 0 {
		score += WeightRotation
	}
	if m.TrimDelta > trimTolerance {
		score += WeightTrimMismatch
	}
	if noText && m.Landscape() {
		score += WeightLandscapeNoText
	}
	if math.Max(m.Width, m.Height) > OversizedPoints {
		score += WeightOversized
	}
	return score
}

// TextLength counts non-space runes.
func TextLength(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}

func trimDelta(media, trim pdfdoc.Box) float64 {
	return math.Abs(media.LLX-trim.LLX) + math.Abs(media.LLY-trim.LLY) +
		math.Abs(media.URX-trim.URX) + math.Abs(media.URY-trim.URY)
}

// TopAnomalies returns up to n page indices with the highest anomaly score,
// ties broken by lower index.
func TopAnomalies(meta map[int]model.PageMetadata, n int) []int {
	idx := make([]int, 0, len(meta))
	for i, m := range meta {
		if m.Anomaly > 0 {
			idx = append(idx, i)
		}
	}
	sort.Slice(idx, func(a, b int) bool {
		ma, mb := meta[idx[a]], meta[idx[b]]
		if ma.Anomaly != mb.Anomaly {
			return ma.Anomaly > mb.Anomaly
		}
		return idx[a] < idx[b]
	})
	if len(idx) > n {
		idx = idx[:n]
	}
	return idx
}
