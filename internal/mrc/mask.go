package mrc

import (
	"image"

	"github.com/local/docshrink/internal/model"
)

// Mask is a bi-tonal foreground, one bool per pixel, true for ink.
type Mask struct {
	W, H int
	bits []bool
}

// NewMask reads a binarised bitmap where 0 is ink.
func NewMask(bin *image.Gray) *Mask {
	w, h := bin.Bounds().Dx(), bin.Bounds().Dy()
	m := &Mask{W: w, H: h, bits: make([]bool, w*h)}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			m.bits[y*w+x] = bin.Pix[y*bin.Stride+x] == 0
		}
	}
	return m
}

func (m *Mask) Ink(x, y int) bool {
	if x < 0 || y < 0 || x >= m.W || y >= m.H {
		return false
	}
	return m.bits[y*m.W+x]
}

// Count returns the number of ink pixels.
func (m *Mask) Count() int {
	n := 0
	for _, b := range m.bits {
		if b {
			n++
		}
	}
	return n
}

// Crop returns the sub-mask covering all ink and its rectangle, or nil when
// the mask is empty.
func (m *Mask) Crop() (*Mask, model.Rect) {
	minX, minY, maxX, maxY := m.W, m.H, -1, -1
	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			if m.bits[y*m.W+x] {
				minX, maxX = min(minX, x), max(maxX, x)
				minY, maxY = min(minY, y), max(maxY, y)
			}
		}
	}
	if maxX < 0 {
		return nil, model.Rect{}
	}
	w, h := maxX-minX+1, maxY-minY+1
	c := &Mask{W: w, H: h, bits: make([]bool, w*h)}
	for y := 0; y < h; y++ {
		copy(c.bits[y*w:(y+1)*w], m.bits[(y+minY)*m.W+minX:(y+minY)*m.W+minX+w])
	}
	return c, model.Rect{X: float64(minX), Y: float64(minY), W: float64(w), H: float64(h)}
}

// Pack encodes the mask MSB first with rows padded to whole bytes. Ink is a
// 0 bit, matching a PDF stencil mask with the default decode array.
func (m *Mask) Pack() []byte {
	stride := (m.W + 7) / 8
	out := make([]byte, stride*m.H)
	for y := 0; y < m.H; y++ {
		row := out[y*stride : (y+1)*stride]
		for x := 0; x < m.W; x++ {
			if !m.bits[y*m.W+x] {
				row[x/8] |= 0x80 >> uint(x%8)
			}
		}
		// padding bits mark paper
		if rem := m.W % 8; rem != 0 {
			row[stride-1] |= 0xFF >> uint(rem)
		}
	}
	return out
}
