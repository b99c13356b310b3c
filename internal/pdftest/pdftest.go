// Package pdftest generates PDF fixtures and probes PDFs for extractable text.
package pdftest

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/local/docshrink/internal/mupdf"
)

// PageProbe captures the result of probing a single PDF page.
type PageProbe struct {
	PageIndex int    `json:"page_index"`
	CharCount int    `json:"char_count"`
	Err       string `json:"err,omitempty"`
}

// Diagnostics describes one text-extractability check.
type Diagnostics struct {
	FilePath           string      `json:"file_path"`
	TotalPages         int         `json:"total_pages"`
	SampledPages       []int       `json:"sampled_pages"`
	TotalCharsInSample int         `json:"total_chars_in_sample"`
	Threshold          int         `json:"threshold"`
	Probes             []PageProbe `json:"probes"`
	HasExtractableText bool        `json:"has_extractable_text"`
	DurationMs         int64       `json:"duration_ms"`
}

// DefaultThreshold is used when a non-positive threshold is passed in.
const DefaultThreshold = 300

var whitespaceRegex = regexp.MustCompile(`\s+`)

// Doc is the part of a rasterizer the probe needs.
type Doc interface {
	NumPage() int
	Text(page int) (string, error)
	Close() error
}

// Opener opens a PDF path for probing.
type Opener func(path string) (Doc, error)

var defaultOpener Opener = func(path string) (Doc, error) {
	d, err := mupdf.Open(path, 1)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// HasExtractableText samples pages of pdfPath and reports whether they hold
// at least threshold non-whitespace characters in total.
func HasExtractableText(pdfPath string, threshold int) (bool, *Diagnostics, error) {
	return HasExtractableTextWithPages(pdfPath, threshold, nil)
}

// HasExtractableTextWithPages is like HasExtractableText but probes the given
// page indices. Nil pages selects first, middle and last.
func HasExtractableTextWithPages(pdfPath string, threshold int, pages []int) (bool, *Diagnostics, error) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if defaultOpener == nil {
		return false, nil, errors.New("no PDF opener configured")
	}

	start := time.Now()
	d, err := defaultOpener(pdfPath)
	if err != nil {
		return false, nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer d.Close()

	total := d.NumPage()
	diag := &Diagnostics{FilePath: pdfPath, TotalPages: total, Threshold: threshold}
	if pages != nil {
		diag.SampledPages = normalizeAndClampPages(pages, total)
	} else {
		diag.SampledPages = sampleIndices(total)
	}

	for _, idx := range diag.SampledPages {
		probe := PageProbe{PageIndex: idx}
		text, terr := d.Text(idx)
		if terr != nil {
			probe.Err = terr.Error()
			diag.Probes = append(diag.Probes, probe)
			continue
		}
		probe.CharCount = len([]rune(whitespaceRegex.ReplaceAllString(text, "")))
		diag.TotalCharsInSample += probe.CharCount
		diag.Probes = append(diag.Probes, probe)
		if diag.TotalCharsInSample >= threshold {
			break
		}
	}
	diag.HasExtractableText = diag.TotalCharsInSample >= threshold
	diag.DurationMs = time.Since(start).Milliseconds()
	return diag.HasExtractableText, diag, nil
}

func sampleIndices(total int) []int {
	if total <= 0 {
		return []int{}
	}
	return normalizeAndClampPages([]int{0, total / 2, total - 1}, total)
}

// normalizeAndClampPages ensures indices are unique, in-range, and sorted.
func normalizeAndClampPages(pages []int, total int) []int {
	m := make(map[int]struct{})
	for _, p := range pages {
		if p < 0 || p >= total {
			continue
		}
		m[p] = struct{}{}
	}
	out := make([]int, 0, len(m))
	for i := range m {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}
