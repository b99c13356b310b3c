// Package imageproc holds the bitmap side of the pipeline: decoding, resizing,
// filter chains, binarisation and the lossy quality search.
package imageproc

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"io"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/local/docshrink/internal/model"
)

// JPEGEncoder implements model.StillImageEncoder with baseline JPEG.
type JPEGEncoder struct{}

func (JPEGEncoder) Codec() string { return model.CodecJPEG }

func (JPEGEncoder) Encode(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(clampQuality(quality))); err != nil {
		return nil, fmt.Errorf("%w: jpeg: %v", model.ErrEncode, err)
	}
	return buf.Bytes(), nil
}

// PNGEncoder re-encodes losslessly at best compression; quality is ignored.
type PNGEncoder struct{}

func (PNGEncoder) Codec() string { return "png" }

func (PNGEncoder) Encode(img image.Image, _ int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG, imaging.PNGCompressionLevel(png.BestCompression)); err != nil {
		return nil, fmt.Errorf("%w: png: %v", model.ErrEncode, err)
	}
	return buf.Bytes(), nil
}

// Decode reads a JPEG, PNG or WebP bitmap and applies EXIF orientation.
func Decode(r io.Reader) (image.Image, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: decode image: %v", model.ErrUnreadable, err)
	}
	return img, nil
}

// DecodeFile is Decode over a path.
func DecodeFile(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: open image: %v", model.ErrUnreadable, err)
	}
	return img, nil
}

func clampQuality(q int) int {
	switch {
	case q < 1:
		return 1
	case q > 100:
		return 100
	}
	return q
}
