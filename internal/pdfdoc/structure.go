package pdfdoc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
)

// Structure holds byte-level signals gathered without parsing the object graph.
type Structure struct {
	Size               int64
	EOFMarkers         int
	StartXRefs         int
	PageObjects        int
	ImageObjects       int
	FontPrograms       int
	ObjectStreams      int
	Linearized         bool
	IncrementalUpdates int
}

var (
	tokEOF       = []byte("%%EOF")
	tokStartXRef = []byte("startxref")
	tokFontFile  = []byte("/FontFile")
	tokObjStm    = []byte("/ObjStm")
	tokLinear    = []byte("/Linearized")
	tokPage      = [][]byte{[]byte("/Type/Page"), []byte("/Type /Page")}
	tokImage     = [][]byte{[]byte("/Subtype/Image"), []byte("/Subtype /Image")}
)

const (
	scanChunk   = 1 << 20
	scanOverlap = 16
	// a linearization dictionary must sit within the first KB of the file
	linearHead = 1024
)

// ScanStructureFile runs ScanStructure over a file on disk.
func ScanStructureFile(path string) (Structure, error) {
	f, err := os.Open(path)
	if err != nil {
		return Structure{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return ScanStructure(f)
}

// ScanStructure streams r in fixed chunks and counts structural tokens.
// Chunks overlap so a token split across a boundary is counted exactly once.
// A linearized file carries one extra %%EOF after its first-page xref section;
// that marker is not an incremental update.
func ScanStructure(r io.Reader) (Structure, error) {
	var s Structure
	buf := make([]byte, 0, scanChunk+scanOverlap)
	chunk := make([]byte, scanChunk)
	head := make([]byte, 0, linearHead)
	tail := 0
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			s.Size += int64(n)
			if room := linearHead - len(head); room > 0 {
				head = append(head, chunk[:min(n, room)]...)
			}
			buf = append(buf, chunk[:n]...)
			s.count(buf, tail)
			keep := scanOverlap
			if keep > len(buf) {
				keep = len(buf)
			}
			copy(buf, buf[len(buf)-keep:])
			buf = buf[:keep]
			tail = keep
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return s, fmt.Errorf("scan pdf structure: %w", err)
		}
	}
	s.flush(buf)
	s.Linearized = bytes.Contains(head, tokLinear)
	sections := 1
	if s.Linearized {
		sections = 2
	}
	if s.EOFMarkers > sections {
		s.IncrementalUpdates = s.EOFMarkers - sections
	}
	return s, nil
}

func (s *Structure) count(buf []byte, tail int) {
	s.EOFMarkers += countNew(buf, tail, tokEOF, nil)
	s.StartXRefs += countNew(buf, tail, tokStartXRef, nil)
	s.FontPrograms += countNew(buf, tail, tokFontFile, nil)
	s.ObjectStreams += countNew(buf, tail, tokObjStm, nil)
	notPages := func(next byte) bool { return next != 's' }
	for _, t := range tokPage {
		s.PageObjects += countNew(buf, tail, t, notPages)
	}
	for _, t := range tokImage {
		s.ImageObjects += countNew(buf, tail, t, nil)
	}
}

// flush settles page tokens that ended exactly at the end of the stream.
func (s *Structure) flush(rest []byte) {
	for _, t := range tokPage {
		if bytes.HasSuffix(rest, t) {
			s.PageObjects++
		}
	}
}

// countNew counts matches of tok in buf that end past the first tail bytes.
// accept, if set, inspects the byte following the match. A match with accept
// set that ends at the end of buf is left for the next chunk, where it ends
// exactly at tail and its next byte is known.
func countNew(buf []byte, tail int, tok []byte, accept func(next byte) bool) int {
	n := 0
	off := 0
	for {
		i := bytes.Index(buf[off:], tok)
		if i < 0 {
			return n
		}
		start := off + i
		end := start + len(tok)
		switch {
		case accept == nil:
			if end > tail {
				n++
			}
		case end < tail || end >= len(buf):
		default:
			if accept(buf[end]) {
				n++
			}
		}
		off = start + 1
	}
}
