package pdfdoc

import (
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// PageWeight estimates the bytes page i pulls into a copy: the raw length of
// every stream reachable from its contents and resources. Shared objects are
// counted once per page.
func (d *Document) PageWeight(i int) (int64, error) {
	p, err := d.Page(i)
	if err != nil {
		return 0, err
	}
	seen := make(map[int]bool)
	n := d.weigh(p.Dict["Contents"], seen, 0)
	n += d.weigh(p.Resources, seen, 0)
	return n, nil
}

func (d *Document) weigh(o types.Object, seen map[int]bool, depth int) int64 {
	if o == nil || depth > maxTreeDepth {
		return 0
	}
	if r, ok := o.(types.IndirectRef); ok {
		num := r.ObjectNumber.Value()
		if seen[num] {
			return 0
		}
		seen[num] = true
		obj, err := d.ctx.Dereference(r)
		if err != nil {
			return 0
		}
		o = obj
	}
	var n int64
	switch v := o.(type) {
	case types.StreamDict:
		n += int64(len(v.Raw))
		n += d.weighDict(v.Dict, seen, depth)
	case types.Dict:
		if t, ok := v["Type"].(types.Name); ok && (t == "Page" || t == "Pages") {
			return 0
		}
		n += d.weighDict(v, seen, depth)
	case types.Array:
		for _, e := range v {
			n += d.weigh(e, seen, depth+1)
		}
	}
	return n
}

func (d *Document) weighDict(dict types.Dict, seen map[int]bool, depth int) int64 {
	var n int64
	for k, v := range dict {
		if k == "Parent" {
			continue
		}
		n += d.weigh(v, seen, depth+1)
	}
	return n
}
