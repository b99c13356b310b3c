package model

import "image/color"

// PageMetadata holds render-free structural facts about one page.
type PageMetadata struct {
	Index           int     `json:"index"`
	TextLength      int     `json:"text_length"`
	AnnotationCount int     `json:"annotation_count"`
	Rotation        int     `json:"rotation"`
	Width           float64 `json:"width"`  // media box, points
	Height          float64 `json:"height"` // media box, points
	TrimDelta       float64 `json:"trim_delta"`
	Anomaly         int     `json:"anomaly"`
}

// Landscape reports whether the displayed page is wider than tall.
func (m PageMetadata) Landscape() bool {
	w, h := m.Width, m.Height
	if m.Rotation%180 != 0 {
		w, h = h, w
	}
	return w > h
}

// PageContentType is the classifier's verdict for a page.
type PageContentType string

const (
	ContentMainlyText      PageContentType = "mainlyText"
	ContentPhotograph      PageContentType = "photograph"
	ContentScannedDocument PageContentType = "scannedDocument"
	ContentMixed           PageContentType = "mixed"
)

// EncodingIntent is the codec family a page or asset should target.
type EncodingIntent string

const (
	IntentPreserveVector EncodingIntent = "preserveVector"
	IntentJBIG2          EncodingIntent = "jbig2"
	IntentJPEG2000       EncodingIntent = "jpeg2000"
	IntentHEIF           EncodingIntent = "heif"
)

// IntentFor maps a page classification to its recommended encoding intent.
func IntentFor(c PageContentType) EncodingIntent {
	switch c {
	case ContentMainlyText:
		return IntentPreserveVector
	case ContentScannedDocument:
		return IntentJBIG2
	case ContentPhotograph:
		return IntentHEIF
	default:
		return IntentJPEG2000
	}
}

// SegmentationTile is one cell of a page's coverage grid.
type SegmentationTile struct {
	Rect          Rect    `json:"rect"`
	TextCoverage  float64 `json:"text_coverage"`
	ImageCoverage float64 `json:"image_coverage"`
}

// TextElement is a positioned run of text in page pixel space.
type TextElement struct {
	Text string `json:"text"`
	Box  Rect   `json:"box"`
}

// PageSegmentation is the analyzer's output for one page.
type PageSegmentation struct {
	Index         int                `json:"index"`
	Class         PageContentType    `json:"class"`
	HasVectorText bool               `json:"has_vector_text"`
	Tiles         []SegmentationTile `json:"tiles,omitempty"`
	Intent        EncodingIntent     `json:"intent"`
	TextElements  []TextElement      `json:"text_elements,omitempty"`
	TextRects     []Rect             `json:"text_rects,omitempty"`
	ImageRects    []Rect             `json:"image_rects,omitempty"`
	PixelWidth    int                `json:"pixel_width"`
	PixelHeight   int                `json:"pixel_height"`
	TextCoverage  float64            `json:"text_coverage"`
	ImageCoverage float64            `json:"image_coverage"`
}

// LayerType tells the reassembler how to draw an asset.
type LayerType string

const (
	LayerStandard       LayerType = "standard"
	LayerForegroundMask LayerType = "foregroundMask"
	LayerBackgroundBase LayerType = "backgroundBase"
)

// Asset codecs as embedded in the output.
const (
	CodecJPEG     = "jpeg"
	CodecMask1Bit = "mask1bit"
)

// ExtractedAsset is an encoded image bound to a rectangle of its source page.
type ExtractedAsset struct {
	Data        []byte
	Codec       string
	PixelWidth  int
	PixelHeight int
	Rect        Rect // page pixel space
	Layer       LayerType
	Intent      EncodingIntent
	Ink         color.RGBA // foreground masks only
}

// PageSource tags where a reassembled page's content comes from.
type PageSource string

const (
	SourcePreservedOriginal PageSource = "preservedOriginal"
	SourceAssetComposite    PageSource = "assetComposite"
	SourceBlank             PageSource = "blank"
)

// PagePlan is everything the reassembler needs to emit one output page.
type PagePlan struct {
	Index  int
	Source PageSource
	Assets []ExtractedAsset
	Text   []TextElement
	// Width and Height are the displayed page size in points.
	Width, Height float64
	// PixelWidth and PixelHeight define the space Assets and Text are expressed in.
	PixelWidth, PixelHeight int
	Rotation                int
	Route                   string
}
