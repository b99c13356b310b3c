package pdfwrite

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/local/docshrink/internal/pdfdoc"
)

// skipKeys are never carried into copied objects: they point back into the
// source page tree or its structure tree.
var skipKeys = map[string]bool{
	"Parent":        true,
	"StructParent":  true,
	"StructParents": true,
}

// Copier deep-copies pages from a source document into a Writer. Shared
// objects such as fonts are copied once per document.
type Copier struct {
	w    *Writer
	src  *pdfdoc.Document
	done map[int]int
}

func NewCopier(w *Writer, src *pdfdoc.Document) *Copier {
	return &Copier{w: w, src: src, done: make(map[int]int)}
}

// CopyPage appends source page i unchanged apart from annotations and
// structure links. It returns the new page object number.
func (c *Copier) CopyPage(i int) (int, error) {
	p, err := c.src.Page(i)
	if err != nil {
		return 0, err
	}
	spec := PageSpec{
		MediaBox: boxArray(p.MediaBox),
		Rotate:   p.Rotate,
	}
	crop := boxArray(p.CropBox)
	spec.CropBox = &crop
	if p.Resources != nil {
		if spec.Resources, err = c.value(p.Resources); err != nil {
			return 0, fmt.Errorf("copy page %d resources: %w", i, err)
		}
	}
	if contents, ok := p.Dict["Contents"]; ok && contents != nil {
		if spec.Contents, err = c.value(contents); err != nil {
			return 0, fmt.Errorf("copy page %d contents: %w", i, err)
		}
	}
	if g, ok := p.Dict["Group"]; ok {
		gs, err := c.value(g)
		if err != nil {
			return 0, fmt.Errorf("copy page %d group: %w", i, err)
		}
		spec.Extra = "/Group " + gs
	}
	return c.w.AddPage(spec), nil
}

// CopiedObjects reports how many source objects have been copied so far.
func (c *Copier) CopiedObjects() int { return len(c.done) }

func boxArray(b pdfdoc.Box) [4]float64 {
	return [4]float64{b.LLX, b.LLY, b.URX, b.URY}
}

func (c *Copier) value(o types.Object) (string, error) {
	switch v := o.(type) {
	case nil:
		return "null", nil
	case types.IndirectRef:
		return c.ref(v)
	case types.Dict:
		return c.dict(v, "")
	case types.Array:
		parts := make([]string, 0, len(v))
		for _, e := range v {
			s, err := c.value(e)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return "[" + strings.Join(parts, " ") + "]", nil
	case types.Name:
		return "/" + escapeName(string(v)), nil
	case types.StreamDict:
		return "", fmt.Errorf("direct stream object")
	default:
		return v.PDFString(), nil
	}
}

func (c *Copier) ref(r types.IndirectRef) (string, error) {
	src := r.ObjectNumber.Value()
	if n, ok := c.done[src]; ok {
		return fmt.Sprintf("%d 0 R", n), nil
	}
	obj, err := c.src.Deref(r)
	if err != nil {
		return "", fmt.Errorf("object %d: %w", src, err)
	}
	if d, ok := obj.(types.Dict); ok {
		if t := d["Type"]; t != nil {
			if name, ok := t.(types.Name); ok && (name == "Page" || name == "Pages") {
				return "null", nil
			}
		}
	}
	n := c.w.Alloc()
	c.done[src] = n

	var body []byte
	switch v := obj.(type) {
	case types.StreamDict:
		dict, err := c.dict(v.Dict, "Length")
		if err != nil {
			return "", err
		}
		dict = strings.TrimSuffix(strings.TrimPrefix(dict, "<<"), ">>")
		body, err = streamBody(strings.TrimSpace(dict), v.Raw, false)
		if err != nil {
			return "", err
		}
	default:
		s, err := c.value(obj)
		if err != nil {
			return "", err
		}
		body = []byte(s)
	}
	c.w.Put(n, body)
	return fmt.Sprintf("%d 0 R", n), nil
}

func (c *Copier) dict(d types.Dict, drop string) (string, error) {
	keys := make([]string, 0, len(d))
	for k := range d {
		if skipKeys[k] || k == drop {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString("<<")
	for _, k := range keys {
		s, err := c.value(d[k])
		if err != nil {
			return "", fmt.Errorf("key /%s: %w", k, err)
		}
		b.WriteString(" /")
		b.WriteString(escapeName(k))
		b.WriteByte(' ')
		b.WriteString(s)
	}
	b.WriteString(" >>")
	return b.String(), nil
}

func escapeName(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch < '!' || ch > '~' || strings.IndexByte("#()<>[]{}/%", ch) >= 0 {
			fmt.Fprintf(&b, "#%02X", ch)
			continue
		}
		b.WriteByte(ch)
	}
	return b.String()
}
