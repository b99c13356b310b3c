// Package pdfdoc reads PDF structure with pdfcpu: the page tree with inherited
// attributes, raw objects for page copying, and cheap byte-level signals.
package pdfdoc

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/rs/zerolog/log"

	"github.com/local/docshrink/internal/model"
)

func init() {
	// Keep pdfcpu from creating a config dir in the user's home.
	pdfmodel.ConfigPath = "disable"
}

// Box is a PDF rectangle in points.
type Box struct {
	LLX, LLY, URX, URY float64
}

func (b Box) Width() float64  { return math.Abs(b.URX - b.LLX) }
func (b Box) Height() float64 { return math.Abs(b.URY - b.LLY) }
func (b Box) IsZero() bool    { return b.Width() == 0 || b.Height() == 0 }

// Page is one leaf of the page tree with inherited attributes resolved.
type Page struct {
	Index     int
	Ref       int // object number, 0 for direct page dicts
	Dict      types.Dict
	Resources types.Object
	MediaBox  Box
	CropBox   Box
	TrimBox   Box
	HasTrim   bool
	Rotate    int
	Annots    int
}

// Document is an opened, read-only PDF.
type Document struct {
	Path  string
	Size  int64
	ctx   *pdfmodel.Context
	pages []Page
}

// NewConfiguration returns a relaxed pdfcpu configuration.
func NewConfiguration() *pdfmodel.Configuration {
	conf := pdfmodel.NewDefaultConfiguration()
	conf.ValidationMode = pdfmodel.ValidationRelaxed
	return conf
}

// Open parses path and walks its page tree.
func Open(path string) (*Document, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, model.InputError("stat", fmt.Errorf("%w: %v", model.ErrUnreadable, err))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, model.InputError("open", fmt.Errorf("%w: %v", model.ErrUnreadable, err))
	}
	defer f.Close()

	ctx, err := api.ReadContext(f, NewConfiguration())
	if err != nil {
		return nil, mapReadError(err)
	}
	d := &Document{Path: path, Size: fi.Size(), ctx: ctx}
	if err := d.loadPages(); err != nil {
		return nil, model.InputError("page tree", fmt.Errorf("%w: %v", model.ErrCorrupted, err))
	}
	if len(d.pages) == 0 {
		return nil, model.InputError("page tree", model.ErrNoPages)
	}
	log.Debug().Str("file", path).Int("pages", len(d.pages)).Int64("size", d.Size).Msg("pdf structure loaded")
	return d, nil
}

func mapReadError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "password") || strings.Contains(msg, "encrypt") {
		return model.InputError("read", model.ErrEncrypted)
	}
	return model.InputError("read", fmt.Errorf("%w: %v", model.ErrCorrupted, err))
}

// Context exposes the pdfcpu context for object-level copying.
func (d *Document) Context() *pdfmodel.Context { return d.ctx }

// PageCount returns the number of leaf pages found.
func (d *Document) PageCount() int { return len(d.pages) }

// Page returns the i-th (0-based) page.
func (d *Document) Page(i int) (Page, error) {
	if i < 0 || i >= len(d.pages) {
		return Page{}, fmt.Errorf("page %d out of range (document has %d pages)", i, len(d.pages))
	}
	return d.pages[i], nil
}

// Deref resolves indirect references; direct objects pass through.
func (d *Document) Deref(o types.Object) (types.Object, error) {
	if o == nil {
		return nil, nil
	}
	if _, ok := o.(types.IndirectRef); !ok {
		return o, nil
	}
	return d.ctx.Dereference(o)
}

// HasEmbeddedFonts reports whether any font descriptor carries a font program.
func (d *Document) HasEmbeddedFonts() bool {
	for _, entry := range d.ctx.Table {
		if entry == nil || entry.Free {
			continue
		}
		dict, ok := entry.Object.(types.Dict)
		if !ok {
			continue
		}
		for _, k := range []string{"FontFile", "FontFile2", "FontFile3"} {
			if _, ok := dict[k]; ok {
				return true
			}
		}
	}
	return false
}

// maxTreeDepth bounds recursion through page trees and resource graphs.
const maxTreeDepth = 64

type inherited struct {
	resources types.Object
	mediaBox  *Box
	cropBox   *Box
	rotate    int
}

func (d *Document) loadPages() error {
	if d.ctx.Root == nil {
		return errors.New("missing document catalog")
	}
	catObj, err := d.ctx.Dereference(*d.ctx.Root)
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	cat, ok := catObj.(types.Dict)
	if !ok {
		return errors.New("catalog is not a dictionary")
	}
	return d.walk(cat["Pages"], inherited{}, map[int]bool{}, 0)
}

func (d *Document) walk(obj types.Object, inh inherited, seen map[int]bool, depth int) error {
	if depth > maxTreeDepth {
		return errors.New("page tree too deep")
	}
	ref := 0
	if ir, ok := obj.(types.IndirectRef); ok {
		ref = ir.ObjectNumber.Value()
		if seen[ref] {
			return fmt.Errorf("page tree cycle at object %d", ref)
		}
		seen[ref] = true
	}
	o, err := d.Deref(obj)
	if err != nil {
		return err
	}
	node, ok := o.(types.Dict)
	if !ok {
		return fmt.Errorf("page tree node %d is %T", ref, o)
	}

	if r, ok := node["Resources"]; ok {
		inh.resources = r
	}
	if b, ok := d.box(node["MediaBox"]); ok {
		inh.mediaBox = &b
	}
	if b, ok := d.box(node["CropBox"]); ok {
		inh.cropBox = &b
	}
	if r, ok := d.number(node["Rotate"]); ok {
		inh.rotate = normalizeRotation(int(r))
	}

	if kids, ok := node["Kids"]; ok && nameOf(node["Type"]) != "Page" {
		ko, err := d.Deref(kids)
		if err != nil {
			return err
		}
		arr, ok := ko.(types.Array)
		if !ok {
			return fmt.Errorf("kids of node %d is %T", ref, ko)
		}
		for _, kid := range arr {
			if err := d.walk(kid, inh, seen, depth+1); err != nil {
				return err
			}
		}
		return nil
	}

	p := Page{Index: len(d.pages), Ref: ref, Dict: node, Resources: inh.resources, Rotate: inh.rotate}
	if inh.mediaBox != nil {
		p.MediaBox = *inh.mediaBox
	} else {
		p.MediaBox = Box{URX: 612, URY: 792}
	}
	p.CropBox = p.MediaBox
	if inh.cropBox != nil {
		p.CropBox = *inh.cropBox
	}
	if b, ok := d.box(node["TrimBox"]); ok {
		p.TrimBox, p.HasTrim = b, true
	} else {
		p.TrimBox = p.CropBox
	}
	if a, err := d.Deref(node["Annots"]); err == nil {
		if arr, ok := a.(types.Array); ok {
			p.Annots = len(arr)
		}
	}
	d.pages = append(d.pages, p)
	return nil
}

func (d *Document) box(o types.Object) (Box, bool) {
	o, err := d.Deref(o)
	if err != nil || o == nil {
		return Box{}, false
	}
	arr, ok := o.(types.Array)
	if !ok || len(arr) != 4 {
		return Box{}, false
	}
	var v [4]float64
	for i, e := range arr {
		f, ok := d.number(e)
		if !ok {
			return Box{}, false
		}
		v[i] = f
	}
	b := Box{LLX: math.Min(v[0], v[2]), LLY: math.Min(v[1], v[3]), URX: math.Max(v[0], v[2]), URY: math.Max(v[1], v[3])}
	if b.IsZero() {
		return Box{}, false
	}
	return b, true
}

func (d *Document) number(o types.Object) (float64, bool) {
	o, err := d.Deref(o)
	if err != nil {
		return 0, false
	}
	switch v := o.(type) {
	case types.Integer:
		return float64(v), true
	case types.Float:
		return float64(v), true
	}
	return 0, false
}

func nameOf(o types.Object) string {
	if n, ok := o.(types.Name); ok {
		return string(n)
	}
	return ""
}

func normalizeRotation(r int) int {
	r %= 360
	if r < 0 {
		r += 360
	}
	return r - r%90
}

// PageCountFile counts pages with pdfcpu without keeping the context around.
func PageCountFile(path string) (int, error) {
	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("pdfcpu page count: %w", err)
	}
	return n, nil
}
