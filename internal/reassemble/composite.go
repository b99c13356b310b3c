package reassemble

import (
	"fmt"
	"sort"

	"github.com/local/docshrink/internal/model"
	"github.com/local/docshrink/internal/pdfwrite"
)

// pageBuilder draws composite pages and shares one text font per document.
type pageBuilder struct {
	w    *pdfwrite.Writer
	font int
}

func layerOrder(l model.LayerType) int {
	switch l {
	case model.LayerBackgroundBase:
		return 0
	case model.LayerStandard:
		return 1
	default:
		return 2
	}
}

// composite draws backgrounds, then plain images, then masks filled with
// their ink, then the invisible text layer.
func (b *pageBuilder) composite(plan model.PagePlan) error {
	if plan.PixelWidth <= 0 || plan.PixelHeight <= 0 {
		return fmt.Errorf("page %d has no pixel space", plan.Index)
	}
	width, height := plan.Width, plan.Height
	if width <= 0 || height <= 0 {
		width, height = float64(plan.PixelWidth), float64(plan.PixelHeight)
	}
	sx, sy := width/float64(plan.PixelWidth), height/float64(plan.PixelHeight)
	toPage := func(r model.Rect) (x, y, w, h float64) {
		return r.X * sx, height - (r.Y+r.H)*sy, r.W * sx, r.H * sy
	}

	assets := make([]model.ExtractedAsset, len(plan.Assets))
	copy(assets, plan.Assets)
	sort.SliceStable(assets, func(i, j int) bool { return layerOrder(assets[i].Layer) < layerOrder(assets[j].Layer) })

	var res pdfwrite.Resources
	var c pdfwrite.Content
	for _, a := range assets {
		x, y, w, h := toPage(a.Rect)
		switch a.Codec {
		case model.CodecJPEG:
			num, err := b.w.AddJPEG(a.Data)
			if err != nil {
				return fmt.Errorf("page %d: %w", plan.Index, err)
			}
			c.DrawImage(res.AddXObject(num), x, y, w, h)
		case model.CodecMask1Bit:
			num, err := b.w.AddMask(a.Data, a.PixelWidth, a.PixelHeight)
			if err != nil {
				return fmt.Errorf("page %d: %w", plan.Index, err)
			}
			c.DrawMask(res.AddXObject(num), a.Ink, x, y, w, h)
		default:
			return fmt.Errorf("page %d: %w: asset codec %q", plan.Index, model.ErrEncode, a.Codec)
		}
	}

	if len(plan.Text) > 0 {
		if b.font == 0 {
			b.font = b.w.Font()
		}
		runs := make([]pdfwrite.TextRun, 0, len(plan.Text))
		for _, t := range plan.Text {
			x, y, w, h := toPage(t.Box)
			runs = append(runs, pdfwrite.TextRun{Text: t.Text, X: x, Y: y, W: w, H: h})
		}
		c.InvisibleText(res.AddFont(b.font), runs)
	}

	contents, err := b.w.AddContent(&c)
	if err != nil {
		return fmt.Errorf("page %d contents: %w", plan.Index, err)
	}
	b.w.AddPage(pdfwrite.PageSpec{
		MediaBox:  [4]float64{0, 0, width, height},
		Resources: res.String(),
		Contents:  pdfwrite.Ref(contents),
	})
	return nil
}
