package filetype

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func TestDetectBytes(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	var jpg, pngBuf bytes.Buffer
	if err := jpeg.Encode(&jpg, img, nil); err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(&pngBuf, img); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		data      []byte
		kind      Kind
		supported bool
	}{
		{"jpeg", jpg.Bytes(), KindJPEG, true},
		{"png", pngBuf.Bytes(), KindPNG, true},
		{"pdf", []byte("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n1 0 obj\n<<>>\nendobj\n"), KindPDF, true},
		{"text", []byte("hello world"), KindUnsupported, false},
	}
	d := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := d.DetectBytes(tt.data)
			if info.Kind != tt.kind || info.Supported != tt.supported {
				t.Errorf("got kind=%s supported=%v (mime %s)", info.Kind, info.Supported, info.MIMEType)
			}
		})
	}
}

func TestDetectFileIgnoresExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "really-a-png.pdf")
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	info, err := New().Detect(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Kind != KindPNG {
		t.Errorf("Kind = %s, want png", info.Kind)
	}
	if KindPNG.Class() != "image" || KindPDF.Class() != "document" {
		t.Error("unexpected class mapping")
	}
}
