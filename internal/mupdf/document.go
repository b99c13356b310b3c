package mupdf

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog/log"

	"github.com/local/docshrink/internal/model"
)

// Document is a go-fitz backed PageRasterizer.
// A fitz handle serialises its calls, so up to maxHandles handles are opened
// lazily and handed out to concurrent callers.
type Document struct {
	path       string
	numPages   int
	maxHandles int

	idle chan *fitz.Document

	mu     sync.Mutex
	opened []*fitz.Document
	closed bool
}

var _ model.PageRasterizer = (*Document)(nil)

// Open opens path with one handle; more are opened on demand up to maxHandles.
func Open(path string, maxHandles int) (*Document, error) {
	if maxHandles <= 0 {
		maxHandles = 1
	}
	first, err := fitz.New(path)
	if err != nil {
		return nil, mapOpenError(err)
	}
	n := first.NumPage()
	d := &Document{
		path:       path,
		numPages:   n,
		maxHandles: maxHandles,
		idle:       make(chan *fitz.Document, maxHandles),
		opened:     []*fitz.Document{first},
	}
	d.idle <- first
	log.Debug().Str("file", path).Int("pages", n).Msg("mupdf document opened")
	return d, nil
}

func mapOpenError(err error) error {
	switch {
	case errors.Is(err, fitz.ErrNeedsPassword):
		return model.InputError("open", model.ErrEncrypted)
	case errors.Is(err, fitz.ErrNoSuchFile):
		return model.InputError("open", model.ErrUnreadable)
	}
	return model.InputError("open", fmt.Errorf("%w: %v", model.ErrCorrupted, err))
}

func (d *Document) acquire() (*fitz.Document, error) {
	select {
	case h := <-d.idle:
		return h, nil
	default:
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, errors.New("document closed")
	}
	if len(d.opened) < d.maxHandles {
		h, err := fitz.New(d.path)
		if err == nil {
			d.opened = append(d.opened, h)
			d.mu.Unlock()
			return h, nil
		}
		d.mu.Unlock()
		log.Warn().Err(err).Str("file", d.path).Msg("extra mupdf handle failed, waiting for a free one")
	} else {
		d.mu.Unlock()
	}
	return <-d.idle, nil
}

func (d *Document) release(h *fitz.Document) { d.idle <- h }

func (d *Document) with(fn func(h *fitz.Document) error) error {
	h, err := d.acquire()
	if err != nil {
		return err
	}
	defer d.release(h)
	return fn(h)
}

// NumPage returns the page count.
func (d *Document) NumPage() int { return d.numPages }

func (d *Document) checkPage(page int) error {
	if page < 0 || page >= d.numPages {
		return fmt.Errorf("page %d out of range (document has %d pages)", page, d.numPages)
	}
	return nil
}

// Bounds returns the displayed page size in points, rotation applied.
func (d *Document) Bounds(page int) (float64, float64, error) {
	if err := d.checkPage(page); err != nil {
		return 0, 0, err
	}
	var r image.Rectangle
	err := d.with(func(h *fitz.Document) error {
		var err error
		r, err = h.Bound(page)
		return err
	})
	if err != nil {
		return 0, 0, fmt.Errorf("bound page %d: %w", page, err)
	}
	return float64(r.Dx()), float64(r.Dy()), nil
}

// Text extracts the page's plain text without rendering.
func (d *Document) Text(page int) (string, error) {
	if err := d.checkPage(page); err != nil {
		return "", err
	}
	var text string
	err := d.with(func(h *fitz.Document) error {
		var err error
		text, err = h.Text(page)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("text page %d: %w", page, err)
	}
	return text, nil
}

// Render rasterises a page at dpi.
func (d *Document) Render(page int, dpi float64) (*image.RGBA, error) {
	if err := d.checkPage(page); err != nil {
		return nil, err
	}
	var img *image.RGBA
	err := d.with(func(h *fitz.Document) error {
		var err error
		img, err = h.ImageDPI(page, dpi)
		return err
	})
	if err != nil {
		return nil, model.PageError("render", page, fmt.Errorf("%w: %v", model.ErrRender, err))
	}
	return img, nil
}

// TextElements returns the page's positioned text lines in a pixelW x pixelH space.
func (d *Document) TextElements(page, pixelW, pixelH int) ([]model.TextElement, error) {
	if err := d.checkPage(page); err != nil {
		return nil, err
	}
	var (
		markup string
		bound  image.Rectangle
	)
	err := d.with(func(h *fitz.Document) error {
		var err error
		if bound, err = h.Bound(page); err != nil {
			return err
		}
		markup, err = h.HTML(page, false)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("text layout page %d: %w", page, err)
	}
	lines, err := parseTextLines(markup)
	if err != nil {
		return nil, fmt.Errorf("parse text layout page %d: %w", page, err)
	}
	return toElements(lines, float64(bound.Dx()), float64(bound.Dy()), pixelW, pixelH), nil
}

// Close releases every handle.
func (d *Document) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	var firstErr error
	for _, h := range d.opened {
		if err := h.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	d.opened = nil
	return firstErr
}
