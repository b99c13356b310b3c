// Package preflight estimates how much a file could shrink without running
// any pipeline. Everything it reports is advisory.
package preflight

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/webp"

	"github.com/local/docshrink/internal/filetype"
	"github.com/local/docshrink/internal/model"
	"github.com/local/docshrink/internal/pdfdoc"
	"github.com/local/docshrink/internal/rebuild"
)

// Score weights and reference points.
const (
	oversizedPixels = 2400
	// jpegDenseBPP and pngDenseBPP are bytes per pixel above which an
	// image is considered loosely encoded.
	jpegDenseBPP = 0.15
	pngDenseBPP  = 0.5
	// pageDenseBytes is the bytes per page above which a document starts to
	// look image heavy.
	pageDenseBytes = 50 << 10
)

// Estimator builds preflight reports.
type Estimator struct {
	Detector *filetype.Detector
}

func New() *Estimator {
	return &Estimator{Detector: filetype.New()}
}

// Estimate inspects path and never modifies it.
func (e *Estimator) Estimate(ctx context.Context, path string) (model.PreflightReport, error) {
	if err := ctx.Err(); err != nil {
		return model.PreflightReport{}, model.ResourceError("preflight", err)
	}
	fi, err := os.Stat(path)
	if err != nil {
		return model.PreflightReport{}, model.InputError("preflight", fmt.Errorf("%w: %v", model.ErrUnreadable, err))
	}
	info, err := e.Detector.Detect(path)
	if err != nil {
		return model.PreflightReport{}, model.InputError("preflight", fmt.Errorf("%w: %v", model.ErrUnreadable, err))
	}
	rep := model.PreflightReport{
		Path:             path,
		Kind:             string(info.Kind),
		MIMEType:         info.MIMEType,
		Size:             fi.Size(),
		SuggestedProfile: model.DefaultProfile,
	}
	switch {
	case info.Kind == filetype.KindPDF:
		err = documentReport(path, &rep)
	case info.Kind.IsImage():
		err = imageReport(path, info.Kind, &rep)
	default:
		err = model.InputError("preflight", model.ErrUnsupportedType)
	}
	if err != nil {
		return model.PreflightReport{}, err
	}
	log.Debug().Str("file", path).Str("kind", rep.Kind).Float64("potential", rep.Potential).
		Str("mode", string(rep.SuggestedMode)).Msg("preflight estimated")
	return rep, nil
}

func documentReport(path string, rep *model.PreflightReport) error {
	st, err := pdfdoc.ScanStructureFile(path)
	if err != nil {
		return model.InputError("preflight", fmt.Errorf("%w: %v", model.ErrUnreadable, err))
	}
	pages, err := pdfdoc.PageCountFile(path)
	if err != nil {
		if st.PageObjects == 0 {
			return model.InputError("preflight", fmt.Errorf("%w: %v", model.ErrCorrupted, err))
		}
		log.Debug().Err(err).Str("file", path).Msg("page count from structure scan")
		pages = st.PageObjects
	}
	if pages <= 0 {
		return model.InputError("preflight", model.ErrNoPages)
	}
	rep.PageCount = pages
	rep.EOFMarkers = st.EOFMarkers
	rep.Linearized = st.Linearized
	rep.IncrementalUpdates = st.IncrementalUpdates
	rep.HasEmbeddedFonts = st.FontPrograms > 0
	rep.HasInvisibleGarbage = st.IncrementalUpdates >= 1
	rep.ImageCount = st.ImageObjects
	rep.BytesPerPage = float64(rep.Size) / float64(pages)
	rep.SuggestedMode = rebuild.Decide(rebuild.Signals{
		IncrementalUpdates: st.IncrementalUpdates,
		EmbeddedFonts:      rep.HasEmbeddedFonts,
		Pages:              pages,
	})
	rep.Potential = documentPotential(rep)
	if rep.SuggestedMode == model.ModeUltra {
		rep.SuggestedProfile = "strong"
	}
	return nil
}

func documentPotential(rep *model.PreflightReport) float64 {
	garbage := min(0.3, 0.1*float64(rep.IncrementalUpdates))
	density := model.Clamp01((rep.BytesPerPage-pageDenseBytes)/(10*pageDenseBytes)) * 0.5
	images := 0.0
	if rep.ImageCount > 0 {
		images = 0.1 * model.Clamp01(float64(rep.ImageCount)/float64(rep.PageCount))
	}
	return model.Clamp01(garbage + density + images)
}

func imageReport(path string, kind filetype.Kind, rep *model.PreflightReport) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.InputError("preflight", fmt.Errorf("%w: %v", model.ErrUnreadable, err))
	}
	var meta imageMeta
	switch kind {
	case filetype.KindJPEG:
		meta = scanJPEG(data)
	case filetype.KindPNG:
		meta = scanPNG(data)
	case filetype.KindWebP:
		meta = scanWebP(data)
	}
	rep.MetadataBytes = meta.Bytes
	rep.HasEXIF = meta.EXIF
	rep.HasGPS = meta.GPS
	rep.HasMakerNote = meta.MakerNote
	rep.HasICCProfile = meta.ICC
	rep.WideGamut = meta.WideGamut

	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		rep.PixelWidth, rep.PixelHeight = cfg.Width, cfg.Height
	} else if kind != filetype.KindHEIF {
		return model.InputError("preflight", fmt.Errorf("%w: %v", model.ErrCorrupted, err))
	}
	if px := rep.PixelWidth * rep.PixelHeight; px > 0 {
		rep.BytesPerPixel = float64(rep.Size) / float64(px)
	}
	rep.Potential = imagePotential(kind, rep)
	if rep.Potential < 0.15 {
		rep.SuggestedProfile = "strong"
	}
	return nil
}

func imagePotential(kind filetype.Kind, rep *model.PreflightReport) float64 {
	ref := jpegDenseBPP
	if kind == filetype.KindPNG {
		ref = pngDenseBPP
	}
	density := 0.0
	if rep.BytesPerPixel > 0 {
		density = model.Clamp01((rep.BytesPerPixel - ref) / (ref * 6))
	}
	score := 0.55 * density
	if rep.Size > 0 {
		score += min(0.25, 2*float64(rep.MetadataBytes)/float64(rep.Size))
	}
	if max(rep.PixelWidth, rep.PixelHeight) > oversizedPixels {
		score += 0.15
	}
	if rep.WideGamut {
		score += 0.05
	}
	return model.Clamp01(score)
}
