package filetype

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// Kind is the media family the engine routes on.
type Kind string

const (
	KindPDF         Kind = "pdf"
	KindJPEG        Kind = "jpeg"
	KindPNG         Kind = "png"
	KindWebP        Kind = "webp"
	KindHEIF        Kind = "heif"
	KindUnsupported Kind = "unsupported"
)

// IsImage reports whether k is a still image kind.
func (k Kind) IsImage() bool {
	return k == KindJPEG || k == KindPNG || k == KindWebP || k == KindHEIF
}

// Class groups kinds for concurrency limits: "document" or "image".
func (k Kind) Class() string {
	if k == KindPDF {
		return "document"
	}
	return "image"
}

// FileTypeInfo contains detected file type information
type FileTypeInfo struct {
	MIMEType    string
	Extension   string
	Kind        Kind
	Supported   bool
	Description string
}

// Detector handles file type detection using magic bytes
type Detector struct{}

// New creates a new file type detector
func New() *Detector {
	return &Detector{}
}

// Detect detects the actual file type using magic bytes, not filename
func (d *Detector) Detect(filePath string) (*FileTypeInfo, error) {
	mtype, err := mimetype.DetectFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to detect file type: %w", err)
	}
	info := classify(mtype.String(), mtype.Extension())

	// HEIF brands are sometimes reported as generic ISO media; trust the extension then.
	if info.Kind == KindUnsupported && strings.HasPrefix(info.MIMEType, "video/") {
		switch strings.ToLower(filepath.Ext(filePath)) {
		case ".heic", ".heif":
			info = classify("image/heif", ".heif")
		}
	}

	log.Debug().Str("mime", info.MIMEType).Str("kind", string(info.Kind)).Str("file", filePath).Msg("detected file type")
	return info, nil
}

// DetectBytes classifies an in-memory payload.
func (d *Detector) DetectBytes(data []byte) *FileTypeInfo {
	mtype := mimetype.Detect(data)
	return classify(mtype.String(), mtype.Extension())
}

func classify(mimeType, ext string) *FileTypeInfo {
	info := &FileTypeInfo{MIMEType: mimeType, Extension: ext, Kind: KindUnsupported}
	switch {
	case mimeType == "application/pdf":
		info.Kind, info.Supported, info.Description = KindPDF, true, "PDF document"
	case mimeType == "image/jpeg":
		info.Kind, info.Supported, info.Description = KindJPEG, true, "JPEG image"
	case mimeType == "image/png":
		info.Kind, info.Supported, info.Description = KindPNG, true, "PNG image"
	case mimeType == "image/webp":
		info.Kind, info.Supported, info.Description = KindWebP, true, "WebP image"
	case mimeType == "image/heic" || mimeType == "image/heif" || strings.HasPrefix(mimeType, "image/heic-") || strings.HasPrefix(mimeType, "image/heif-"):
		// No HEIF decoder is available in-process; analyze only.
		info.Kind, info.Supported, info.Description = KindHEIF, false, "HEIF image"
	default:
		info.Description = "Unsupported file type"
	}
	return info
}
