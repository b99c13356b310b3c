package preflight

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/klauspost/compress/zlib"
)

// imageMeta is what a container walk found besides pixels.
type imageMeta struct {
	Bytes     int64
	EXIF      bool
	GPS       bool
	MakerNote bool
	ICC       bool
	WideGamut bool
	XMP       bool
}

// TIFF tags of interest.
const (
	tagExifIFD   = 0x8769
	tagGPSIFD    = 0x8825
	tagMakerNote = 0x927C
)

var (
	exifHeader = []byte("Exif\x00\x00")
	xmpHeader  = []byte("http://ns.adobe.com/xap/1.0/\x00")
	iccHeader  = []byte("ICC_PROFILE\x00")

	wideGamutNames = [][]byte{
		[]byte("Display P3"),
		[]byte("Adobe RGB"),
		[]byte("ProPhoto"),
		[]byte("ROMM RGB"),
		[]byte("Rec. 2020"),
	}
)

func isWideGamut(profile []byte) bool {
	for _, n := range wideGamutNames {
		if bytes.Contains(profile, n) {
			return true
		}
	}
	// ICC descriptions are often UTF-16BE in mluc tags
	for _, n := range wideGamutNames {
		wide := make([]byte, 0, 2*len(n))
		for _, c := range n {
			wide = append(wide, 0, c)
		}
		if bytes.Contains(profile, wide) {
			return true
		}
	}
	return false
}

// scanJPEG walks APP and COM segments up to the start of scan.
func scanJPEG(data []byte) imageMeta {
	var m imageMeta
	if len(data) < 4 || data[0] != 0xFF || data[1] != 0xD8 {
		return m
	}
	for i := 2; i+4 <= len(data); {
		if data[i] != 0xFF {
			break
		}
		marker := data[i+1]
		if marker == 0xFF {
			i++
			continue
		}
		if marker == 0xDA || marker == 0xD9 {
			break
		}
		if (marker >= 0xD0 && marker <= 0xD7) || marker == 0x01 {
			i += 2
			continue
		}
		length := int(binary.BigEndian.Uint16(data[i+2:]))
		end := i + 2 + length
		if length < 2 || end > len(data) {
			break
		}
		payload := data[i+4 : end]
		isAPP := marker >= 0xE0 && marker <= 0xEF
		switch {
		case marker == 0xE1 && bytes.HasPrefix(payload, exifHeader):
			m.EXIF = true
			m.GPS, m.MakerNote = scanTIFF(payload[len(exifHeader):])
		case marker == 0xE1 && bytes.HasPrefix(payload, xmpHeader):
			m.XMP = true
		case marker == 0xE2 && bytes.HasPrefix(payload, iccHeader):
			m.ICC = true
			m.WideGamut = m.WideGamut || isWideGamut(payload)
		}
		// APP0 (JFIF) is structural, everything else is removable
		if (isAPP && marker != 0xE0) || marker == 0xFE {
			m.Bytes += int64(length + 2)
		}
		i = end
	}
	return m
}

// scanTIFF reports whether an Exif block carries GPS data or a maker note.
func scanTIFF(b []byte) (gps, makerNote bool) {
	if len(b) < 8 {
		return false, false
	}
	var order binary.ByteOrder
	switch string(b[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return false, false
	}
	ifd0 := order.Uint32(b[4:])
	exifIFD := uint32(0)
	walkIFD(b, order, ifd0, func(tag uint16, value uint32) {
		switch tag {
		case tagGPSIFD:
			gps = true
		case tagExifIFD:
			exifIFD = value
		}
	})
	if exifIFD != 0 {
		walkIFD(b, order, exifIFD, func(tag uint16, _ uint32) {
			if tag == tagMakerNote {
				makerNote = true
			}
		})
	}
	return gps, makerNote
}

func walkIFD(b []byte, order binary.ByteOrder, off uint32, fn func(tag uint16, value uint32)) {
	if int64(off)+2 > int64(len(b)) {
		return
	}
	n := int(order.Uint16(b[off:]))
	p := int(off) + 2
	for i := 0; i < n && p+12 <= len(b); i++ {
		fn(order.Uint16(b[p:]), order.Uint32(b[p+8:]))
		p += 12
	}
}

// scanPNG sums ancillary metadata chunks.
func scanPNG(data []byte) imageMeta {
	var m imageMeta
	if len(data) < 8 || !bytes.Equal(data[:8], []byte("\x89PNG\r\n\x1a\n")) {
		return m
	}
	for p := 8; p+12 <= len(data); {
		n := int(binary.BigEndian.Uint32(data[p:]))
		typ := string(data[p+4 : p+8])
		end := p + 12 + n
		if n < 0 || end > len(data) {
			break
		}
		body := data[p+8 : p+8+n]
		switch typ {
		case "eXIf":
			m.EXIF = true
			m.GPS, m.MakerNote = scanTIFF(body)
			m.Bytes += int64(n + 12)
		case "iCCP":
			m.ICC = true
			m.WideGamut = pngProfileWide(body)
			m.Bytes += int64(n + 12)
		case "iTXt":
			if bytes.HasPrefix(body, []byte("XML:com.adobe.xmp")) {
				m.XMP = true
			}
			m.Bytes += int64(n + 12)
		case "tEXt", "zTXt", "tIME":
			m.Bytes += int64(n + 12)
		case "IEND":
			return m
		}
		p = end
	}
	return m
}

// pngProfileWide checks the profile name, then the inflated profile.
func pngProfileWide(body []byte) bool {
	nul := bytes.IndexByte(body, 0)
	if nul < 0 {
		return false
	}
	if isWideGamut(body[:nul]) {
		return true
	}
	if nul+2 > len(body) {
		return false
	}
	zr, err := zlib.NewReader(bytes.NewReader(body[nul+2:]))
	if err != nil {
		return false
	}
	defer zr.Close()
	profile, err := io.ReadAll(io.LimitReader(zr, 4<<20))
	if err != nil && len(profile) == 0 {
		return false
	}
	return isWideGamut(profile)
}

// scanWebP sums the EXIF, XMP and ICC chunks of an extended WebP.
func scanWebP(data []byte) imageMeta {
	var m imageMeta
	if len(data) < 12 || string(data[:4]) != "RIFF" || string(data[8:12]) != "WEBP" {
		return m
	}
	for p := 12; p+8 <= len(data); {
		fourcc := string(data[p : p+4])
		n := int(binary.LittleEndian.Uint32(data[p+4:]))
		end := p + 8 + n + n%2
		if n < 0 || p+8+n > len(data) {
			break
		}
		body := data[p+8 : p+8+n]
		switch fourcc {
		case "EXIF":
			m.EXIF = true
			m.GPS, m.MakerNote = scanTIFF(bytes.TrimPrefix(body, exifHeader))
			m.Bytes += int64(n + 8)
		case "XMP ":
			m.XMP = true
			m.Bytes += int64(n + 8)
		case "ICCP":
			m.ICC = true
			m.WideGamut = isWideGamut(body)
			m.Bytes += int64(n + 8)
		}
		p = end
	}
	return m
}
