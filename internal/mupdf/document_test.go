package mupdf

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/local/docshrink/internal/model"
)

func TestOpenMissingFileIsInputError(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.pdf"), 2)
	if err == nil {
		t.Fatal("expected error")
	}
	if model.KindOf(err) != model.KindInput {
		t.Errorf("KindOf = %v, want input (%v)", model.KindOf(err), err)
	}
}

func TestOpenGarbageIsCorrupted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4\nthis is not a pdf"), 0o644); err != nil {
		t.Fatal(err)
	}
	d, err := Open(path, 1)
	if err == nil {
		// MuPDF repairs aggressively; a repaired file must still report zero pages.
		defer d.Close()
		if d.NumPage() != 0 {
			t.Fatalf("garbage opened with %d pages", d.NumPage())
		}
		return
	}
	if !errors.Is(err, model.ErrCorrupted) && !errors.Is(err, model.ErrUnreadable) {
		t.Errorf("unexpected error %v", err)
	}
}
