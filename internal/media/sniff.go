// internal/media/sniff.go
// File-signature sniffing and header-only dimension extraction.
//
// Declared MIME types are client-controlled and only used for the
// allow-list check; the accept decision comes from these magic numbers.
// An inconclusive sniff (no known signature in the header slice) is not
// a rejection, so truncated header reads degrade safely.

package media

import (
	"bytes"
	"encoding/binary"
)

// Format is a sniffed image container format.
type Format string

const (
	FormatUnknown Format = ""
	FormatJPEG    Format = "jpeg"
	FormatPNG     Format = "png"
	FormatGIF     Format = "gif"
	FormatWebP    Format = "webp"
	FormatHEIC    Format = "heic"
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}

// ISO-BMFF brands accepted as HEIC/HEIF.
var heifBrands = map[string]bool{
	"heic": true, "heix": true, "hevc": true, "hevx": true,
	"heim": true, "heis": true, "hevm": true, "hevs": true,
	"mif1": true, "msf1": true, "heif": true,
}

// SniffFormat inspects the leading bytes of a file against known magic
// numbers. conclusive is false when no signature matched.
func SniffFormat(head []byte) (format Format, conclusive bool) {
	if len(head) >= 3 && head[0] == 0xFF && head[1] == 0xD8 && head[2] == 0xFF {
		return FormatJPEG, true
	}
	if len(head) >= 8 && bytes.Equal(head[:8], pngSignature) {
		return FormatPNG, true
	}
	if len(head) >= 6 && (bytes.Equal(head[:6], []byte("GIF87a")) || bytes.Equal(head[:6], []byte("GIF89a"))) {
		return FormatGIF, true
	}
	if len(head) >= 12 && bytes.Equal(head[:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WEBP")) {
		return FormatWebP, true
	}
	if len(head) >= 12 && bytes.Equal(head[4:8], []byte("ftyp")) && heifBrands[string(head[8:12])] {
		return FormatHEIC, true
	}
	return FormatUnknown, false
}

// formatsForMime maps a declared image MIME type to the sniffed formats
// it may legitimately contain.
func formatsForMime(mime string) map[Format]bool {
	switch mime {
	case "image/jpeg", "image/jpg":
		return map[Format]bool{FormatJPEG: true}
	case "image/png":
		return map[Format]bool{FormatPNG: true}
	case "image/gif":
		return map[Format]bool{FormatGIF: true}
	case "image/webp":
		return map[Format]bool{FormatWebP: true}
	case "image/heic", "image/heif":
		return map[Format]bool{FormatHEIC: true}
	default:
		return nil
	}
}

// Dimensions extracts width and height from the header bytes alone.
// Extraction is best-effort; ok is false when the header does not carry
// enough to decide.
func Dimensions(head []byte, format Format) (width, height int, ok bool) {
	switch format {
	case FormatPNG:
		// IHDR immediately follows the signature; width and height are
		// big-endian at fixed offsets 16 and 20.
		if len(head) < 24 {
			return 0, 0, false
		}
		w := binary.BigEndian.Uint32(head[16:20])
		h := binary.BigEndian.Uint32(head[20:24])
		return int(w), int(h), w > 0 && h > 0

	case FormatGIF:
		// Logical screen descriptor, little-endian at offsets 6 and 8.
		if len(head) < 10 {
			return 0, 0, false
		}
		w := binary.LittleEndian.Uint16(head[6:8])
		h := binary.LittleEndian.Uint16(head[8:10])
		return int(w), int(h), w > 0 && h > 0

	case FormatJPEG:
		return jpegDimensions(head)

	default:
		return 0, 0, false
	}
}

// jpegDimensions scans segment markers for a SOF0/SOF2 frame header.
func jpegDimensions(head []byte) (int, int, bool) {
	i := 2
	for i+9 < len(head) {
		if head[i] != 0xFF {
			return 0, 0, false
		}
		marker := head[i+1]
		// Padding between segments.
		if marker == 0xFF {
			i++
			continue
		}
		if marker == 0xC0 || marker == 0xC2 {
			h := int(binary.BigEndian.Uint16(head[i+5 : i+7]))
			w := int(binary.BigEndian.Uint16(head[i+7 : i+9]))
			return w, h, w > 0 && h > 0
		}
		segLen := int(binary.BigEndian.Uint16(head[i+2 : i+4]))
		if segLen < 2 {
			return 0, 0, false
		}
		i += 2 + segLen
	}
	return 0, 0, false
}
