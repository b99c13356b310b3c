// Package reassemble writes the output document from page plans: preserved
// originals are copied, composites are drawn from their assets, and anything
// without content becomes a blank page of the right size. A composite that
// cannot be drawn falls back to a copy of the original page.
package reassemble

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/local/docshrink/internal/model"
	"github.com/local/docshrink/internal/pdfdoc"
	"github.com/local/docshrink/internal/pdfwrite"
)

// Letter is the page size used when nothing better is known.
var Letter = [4]float64{0, 0, 612, 792}

// Stats summarises one write.
type Stats struct {
	Pages     int
	Copied    int
	Composite int
	Blank     int
	Fallbacks int
	Bytes     int64
}

// FallbackFunc produces a replacement plan for a page whose original could
// not be copied.
type FallbackFunc func(ctx context.Context, index int) (model.PagePlan, error)

// Reassembler emits one document. Source may be nil when every plan is a
// composite or blank.
type Reassembler struct {
	Source   *pdfdoc.Document
	Fallback FallbackFunc
}

func New(src *pdfdoc.Document) *Reassembler {
	return &Reassembler{Source: src}
}

// Write emits pageCount pages in index order. Plans may arrive in any order
// and may be missing for some pages. Zero pages or a failed write is an error.
func (r *Reassembler) Write(ctx context.Context, out io.Writer, plans []model.PagePlan, pageCount int) (Stats, error) {
	if pageCount <= 0 {
		return Stats{}, model.ProcessingError("reassemble", model.ErrNoOutputPages)
	}
	sorted := make([]model.PagePlan, len(plans))
	copy(sorted, plans)
	sort.SliceStable(sorted, func(a, b int) bool { return sorted[a].Index < sorted[b].Index })
	byIndex := make(map[int]model.PagePlan, len(sorted))
	for _, p := range sorted {
		byIndex[p.Index] = p
	}

	w := pdfwrite.New()
	pb := &pageBuilder{w: w}
	var copier *pdfwrite.Copier
	if r.Source != nil {
		copier = pdfwrite.NewCopier(w, r.Source)
	}
	var st Stats

	for i := 0; i < pageCount; i++ {
		if err := ctx.Err(); err != nil {
			return st, model.ResourceError("reassemble", err)
		}
		plan, ok := byIndex[i]
		if !ok {
			plan = model.PagePlan{Index: i, Source: model.SourceBlank}
		}
		switch plan.Source {
		case model.SourcePreservedOriginal:
			if copier != nil {
				_, err := copier.CopyPage(i)
				if err == nil {
					st.Copied++
					continue
				}
				log.Warn().Err(err).Int("page", i).Msg("page copy failed")
			}
			st.Fallbacks++
			ok, err := r.fallback(ctx, pb, i)
			if err != nil {
				return st, err
			}
			if ok {
				st.Composite++
				continue
			}
			r.blank(w, i, plan)
			st.Blank++
		case model.SourceAssetComposite:
			err := pb.composite(plan)
			if err == nil {
				st.Composite++
				continue
			}
			st.Fallbacks++
			if copier != nil {
				_, cerr := copier.CopyPage(i)
				if cerr == nil {
					log.Warn().Err(err).Int("page", i).Msg("composite page failed, original page kept")
					st.Copied++
					continue
				}
				err = fmt.Errorf("%v; copy: %w", err, cerr)
			}
			log.Error().Err(err).Int("page", i).Msg("composite page failed, emitting blank page")
			r.blank(w, i, plan)
			st.Blank++
		default:
			r.blank(w, i, plan)
			st.Blank++
		}
	}

	st.Pages = w.PageCount()
	if st.Pages == 0 {
		return st, model.ProcessingError("reassemble", model.ErrNoOutputPages)
	}
	n, err := w.WriteTo(out)
	st.Bytes = n
	if err != nil {
		return st, model.ProcessingError("reassemble", fmt.Errorf("%w: %v", model.ErrWrite, err))
	}
	log.Debug().Int("pages", st.Pages).Int("copied", st.Copied).Int("composite", st.Composite).
		Int("blank", st.Blank).Int("fallbacks", st.Fallbacks).Int64("bytes", st.Bytes).Msg("document reassembled")
	return st, nil
}

// fallback draws the replacement plan for page i, if one can be built.
// Only cancellation is returned as an error.
func (r *Reassembler) fallback(ctx context.Context, pb *pageBuilder, i int) (bool, error) {
	if r.Fallback == nil {
		return false, nil
	}
	fb, err := r.Fallback(ctx, i)
	if err != nil {
		if model.IsCancelled(err) {
			return false, model.ResourceError("reassemble", err)
		}
		log.Warn().Err(err).Int("page", i).Msg("fallback page failed")
		return false, nil
	}
	if fb.Source != model.SourceAssetComposite {
		return false, nil
	}
	if err := pb.composite(fb); err != nil {
		log.Warn().Err(err).Int("page", i).Msg("fallback composite failed")
		return false, nil
	}
	return true, nil
}

// blank adds an empty page sized like the source page, or like the plan.
func (r *Reassembler) blank(w *pdfwrite.Writer, i int, plan model.PagePlan) {
	spec := pdfwrite.PageSpec{MediaBox: Letter}
	if r.Source != nil {
		if p, err := r.Source.Page(i); err == nil {
			spec.MediaBox = [4]float64{p.MediaBox.LLX, p.MediaBox.LLY, p.MediaBox.URX, p.MediaBox.URY}
			crop := [4]float64{p.CropBox.LLX, p.CropBox.LLY, p.CropBox.URX, p.CropBox.URY}
			spec.CropBox = &crop
			spec.Rotate = p.Rotate
			w.AddPage(spec)
			return
		}
	}
	if plan.Width > 0 && plan.Height > 0 {
		spec.MediaBox = [4]float64{0, 0, plan.Width, plan.Height}
	}
	w.AddPage(spec)
}
