package scanner

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/local/docshrink/internal/model"
	"github.com/local/docshrink/internal/pdfdoc"
)

type stubPages []pdfdoc.Page

func (s stubPages) PageCount() int { return len(s) }
func (s stubPages) Page(i int) (pdfdoc.Page, error) {
	if s[i].Index < 0 {
		return pdfdoc.Page{}, errors.New("broken page")
	}
	return s[i], nil
}

type stubText map[int]string

func (s stubText) Text(i int) (string, error) { return s[i], nil }

var letter = pdfdoc.Box{URX: 612, URY: 792}

func TestScoreWeights(t *testing.T) {
	s := New(50)
	cases := []struct {
		name string
		m    model.PageMetadata
		want int
	}{
		{"clean text page", model.PageMetadata{TextLength: 500, Width: 612, Height: 792}, 0},
		{"no text", model.PageMetadata{Width: 612, Height: 792}, 2},
		{"annotated", model.PageMetadata{TextLength: 500, AnnotationCount: 3, Width: 612, Height: 792}, 1},
		{"rotated text", model.PageMetadata{TextLength: 500, Rotation: 90, Width: 612, Height: 792}, 2},
		{"trimmed", model.PageMetadata{TextLength: 500, TrimDelta: 20, Width: 612, Height: 792}, 2},
		{"landscape no text", model.PageMetadata{Width: 792, Height: 612}, 2 + 3},
		{"rotated portrait no text is landscape", model.PageMetadata{Rotation: 90, Width: 612, Height: 792}, 2 + 2 + 3},
		{"oversized", model.PageMetadata{TextLength: 500, Width: 612, Height: 4000}, 2},
	}
	for _, c := range cases {
		if got := s.Score(c.m); got != c.want {
			t.Errorf("%s: score = %d, want %d", c.name, got, c.want)
		}
	}
}

func TestScanSparseMap(t *testing.T) {
	pages := stubPages{
		{Index: 0, MediaBox: letter, TrimBox: letter},
		{Index: -1},
		{Index: 2, MediaBox: letter, TrimBox: pdfdoc.Box{LLX: 10, LLY: 10, URX: 602, URY: 782}, Annots: 2},
	}
	text := stubText{0: "some words but not many", 2: ""}
	meta, err := New(10).Scan(context.Background(), pages, text)
	if err != nil {
		t.Fatal(err)
	}
	if len(meta) != 2 {
		t.Fatalf("len = %d", len(meta))
	}
	if _, ok := meta[1]; ok {
		t.Fatal("broken page should be omitted")
	}
	if meta[0].TextLength != 19 || meta[0].Anomaly != 0 {
		t.Fatalf("page 0 = %+v", meta[0])
	}
	if meta[2].TrimDelta != 40 || meta[2].Anomaly != 2+1+2 {
		t.Fatalf("page 2 = %+v", meta[2])
	}
}

func TestScanCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(0).Scan(ctx, stubPages{{MediaBox: letter}}, nil)
	if !model.IsCancelled(err) {
		t.Fatalf("err = %v", err)
	}
}

func TestTopAnomalies(t *testing.T) {
	meta := map[int]model.PageMetadata{
		0: {Anomaly: 2}, 1: {Anomaly: 0}, 2: {Anomaly: 5}, 3: {Anomaly: 2}, 4: {Anomaly: 7},
	}
	if got := TopAnomalies(meta, 3); !reflect.DeepEqual(got, []int{4, 2, 0}) {
		t.Fatalf("got %v", got)
	}
	if got := TopAnomalies(meta, 10); len(got) != 4 {
		t.Fatalf("zero-score pages included: %v", got)
	}
}
