package media

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pairlyhq/pairly-backend/internal/plan"
	"github.com/pairlyhq/pairly-backend/pkg/apperrors"
)

const (
	mb = int64(1024 * 1024)
)

func newTestValidator() *Validator {
	return NewValidator(
		ImageLimits{Free: 2 * mb, Premium: 8 * mb, PremiumPlus: 20 * mb},
		10*mb,
		300*time.Second,
	)
}

func jpegHead() []byte {
	return []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F'}
}

func pngHead(width, height uint32) []byte {
	head := make([]byte, 24)
	copy(head, pngSignature)
	// length + "IHDR"
	binary.BigEndian.PutUint32(head[8:12], 13)
	copy(head[12:16], "IHDR")
	binary.BigEndian.PutUint32(head[16:20], width)
	binary.BigEndian.PutUint32(head[20:24], height)
	return head
}

func TestValidateImage(t *testing.T) {
	v := newTestValidator()

	t.Run("accepts a small jpeg on free", func(t *testing.T) {
		info, err := v.ValidateImage(ImageUpload{
			FileSize:     1 * mb,
			DeclaredMime: "image/jpeg",
			Plan:         plan.Free,
			Head:         jpegHead(),
			Filename:     "holiday.jpg",
		})
		require.NoError(t, err)
		assert.Equal(t, FormatJPEG, info.Format)
		assert.Equal(t, "holiday.jpg", info.SafeName)
	})

	t.Run("enforces the free ceiling", func(t *testing.T) {
		_, err := v.ValidateImage(ImageUpload{
			FileSize:     6 * mb,
			DeclaredMime: "image/jpeg",
			Plan:         plan.Free,
			Head:         jpegHead(),
		})
		assert.True(t, apperrors.Is(err, apperrors.CodeSizeExceeded))
	})

	t.Run("same size passes on premium", func(t *testing.T) {
		_, err := v.ValidateImage(ImageUpload{
			FileSize:     6 * mb,
			DeclaredMime: "image/jpeg",
			Plan:         plan.Premium,
			Head:         jpegHead(),
		})
		assert.NoError(t, err)
	})

	t.Run("rejects empty files", func(t *testing.T) {
		_, err := v.ValidateImage(ImageUpload{FileSize: 0, DeclaredMime: "image/png", Plan: plan.Free})
		assert.True(t, apperrors.Is(err, apperrors.CodeSizeExceeded))
	})

	t.Run("rejects disallowed mime types", func(t *testing.T) {
		_, err := v.ValidateImage(ImageUpload{
			FileSize:     mb,
			DeclaredMime: "image/svg+xml",
			Plan:         plan.Free,
		})
		assert.True(t, apperrors.Is(err, apperrors.CodeInvalidMime))
	})

	t.Run("rejects a png body declared as jpeg", func(t *testing.T) {
		_, err := v.ValidateImage(ImageUpload{
			FileSize:     mb,
			DeclaredMime: "image/jpeg",
			Plan:         plan.Free,
			Head:         pngHead(640, 480),
		})
		assert.True(t, apperrors.Is(err, apperrors.CodeSignatureMismatch))
	})

	t.Run("inconclusive sniff passes", func(t *testing.T) {
		info, err := v.ValidateImage(ImageUpload{
			FileSize:     mb,
			DeclaredMime: "image/jpeg",
			Plan:         plan.Free,
			Head:         []byte{0x00, 0x01, 0x02},
		})
		require.NoError(t, err)
		assert.Equal(t, FormatUnknown, info.Format)
	})

	t.Run("extracts png dimensions from the header", func(t *testing.T) {
		info, err := v.ValidateImage(ImageUpload{
			FileSize:     mb,
			DeclaredMime: "image/png",
			Plan:         plan.Free,
			Head:         pngHead(1920, 1080),
		})
		require.NoError(t, err)
		assert.Equal(t, 1920, info.Width)
		assert.Equal(t, 1080, info.Height)
	})

	t.Run("handles mime parameters", func(t *testing.T) {
		_, err := v.ValidateImage(ImageUpload{
			FileSize:     mb,
			DeclaredMime: "image/png; charset=binary",
			Plan:         plan.Free,
			Head:         pngHead(10, 10),
		})
		assert.NoError(t, err)
	})
}

func TestValidateVoice(t *testing.T) {
	v := newTestValidator()

	t.Run("accepts a normal clip", func(t *testing.T) {
		err := v.ValidateVoice(VoiceUpload{
			FileSize:     2 * mb,
			DeclaredMime: "audio/m4a",
			Duration:     45 * time.Second,
		})
		assert.NoError(t, err)
	})

	t.Run("rejects oversize clips", func(t *testing.T) {
		err := v.ValidateVoice(VoiceUpload{
			FileSize:     11 * mb,
			DeclaredMime: "audio/m4a",
			Duration:     45 * time.Second,
		})
		assert.True(t, apperrors.Is(err, apperrors.CodeSizeExceeded))
	})

	t.Run("rejects non-audio types", func(t *testing.T) {
		err := v.ValidateVoice(VoiceUpload{
			FileSize:     mb,
			DeclaredMime: "video/mp4",
			Duration:     45 * time.Second,
		})
		assert.True(t, apperrors.Is(err, apperrors.CodeInvalidMime))
	})

	t.Run("bounds the duration", func(t *testing.T) {
		for _, d := range []time.Duration{0, -time.Second, 301 * time.Second} {
			err := v.ValidateVoice(VoiceUpload{
				FileSize:     mb,
				DeclaredMime: "audio/ogg",
				Duration:     d,
			})
			assert.True(t, apperrors.Is(err, apperrors.CodeInvalidDuration), "duration %v", d)
		}
	})

	t.Run("accepts the exact duration ceiling", func(t *testing.T) {
		err := v.ValidateVoice(VoiceUpload{
			FileSize:     mb,
			DeclaredMime: "audio/ogg",
			Duration:     300 * time.Second,
		})
		assert.NoError(t, err)
	})
}

func TestSniffFormat(t *testing.T) {
	tests := []struct {
		name       string
		head       []byte
		format     Format
		conclusive bool
	}{
		{"jpeg", jpegHead(), FormatJPEG, true},
		{"png", pngHead(1, 1), FormatPNG, true},
		{"gif87a", []byte("GIF87a\x0a\x00\x0a\x00"), FormatGIF, true},
		{"gif89a", []byte("GIF89a\x0a\x00\x0a\x00"), FormatGIF, true},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBP"), FormatWebP, true},
		{"heic", []byte{0, 0, 0, 0x18, 'f', 't', 'y', 'p', 'h', 'e', 'i', 'c'}, FormatHEIC, true},
		{"unknown", []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, FormatUnknown, false},
		{"truncated", []byte{0xFF}, FormatUnknown, false},
		{"empty", nil, FormatUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			format, conclusive := SniffFormat(tt.head)
			assert.Equal(t, tt.format, format)
			assert.Equal(t, tt.conclusive, conclusive)
		})
	}
}

func TestDimensions(t *testing.T) {
	t.Run("gif little endian", func(t *testing.T) {
		head := []byte("GIF89a")
		head = append(head, 0x40, 0x01, 0xF0, 0x00) // 320x240
		w, h, ok := Dimensions(head, FormatGIF)
		require.True(t, ok)
		assert.Equal(t, 320, w)
		assert.Equal(t, 240, h)
	})

	t.Run("jpeg sof0 scan", func(t *testing.T) {
		head := []byte{0xFF, 0xD8}
		// APP0 segment, 4 bytes of payload
		head = append(head, 0xFF, 0xE0, 0x00, 0x06, 0, 0, 0, 0)
		// SOF0: len, precision, height, width, then component data
		head = append(head, 0xFF, 0xC0, 0x00, 0x11, 0x08, 0x01, 0xE0, 0x02, 0x80, 0x03)
		w, h, ok := Dimensions(head, FormatJPEG)
		require.True(t, ok)
		assert.Equal(t, 640, w)
		assert.Equal(t, 480, h)
	})

	t.Run("truncated header is not ok", func(t *testing.T) {
		_, _, ok := Dimensions(pngHead(1, 1)[:12], FormatPNG)
		assert.False(t, ok)
	})
}

func TestSanitizeFilename(t *testing.T) {
	t.Run("strips directories", func(t *testing.T) {
		assert.Equal(t, "photo.jpg", SanitizeFilename("../../etc/photo.jpg"))
		assert.Equal(t, "photo.jpg", SanitizeFilename(`C:\Users\me\photo.jpg`))
	})

	t.Run("restricts the character set", func(t *testing.T) {
		assert.Equal(t, "my-photo--1-.jpg", SanitizeFilename("my photo (1).jpg"))
	})

	t.Run("strips null bytes", func(t *testing.T) {
		assert.Equal(t, "a.jpg", SanitizeFilename("a.jpg\x00"))
	})

	t.Run("empty becomes a placeholder", func(t *testing.T) {
		assert.Equal(t, "file", SanitizeFilename("...."))
	})

	t.Run("truncates long names preserving extension", func(t *testing.T) {
		long := ""
		for i := 0; i < 30; i++ {
			long += "abcde"
		}
		out := SanitizeFilename(long + ".jpeg")
		assert.LessOrEqual(t, len(out), 80)
		assert.Equal(t, ".jpeg", out[len(out)-5:])
		// Uniqueness suffix keeps truncated names from colliding.
		other := SanitizeFilename(long + ".jpeg")
		assert.NotEqual(t, out, other)
	})
}
