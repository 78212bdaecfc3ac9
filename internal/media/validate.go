// internal/media/validate.go
// Plan-aware media validation for image and voice uploads. Checks run in
// a fixed order so the cheapest rejection wins and the caller gets a
// stable reason code for each failure mode.

package media

import (
	"strings"
	"time"

	"github.com/pairlyhq/pairly-backend/internal/plan"
	"github.com/pairlyhq/pairly-backend/pkg/apperrors"
)

// ImageLimits are byte ceilings per subscription tier.
type ImageLimits struct {
	Free        int64
	Premium     int64
	PremiumPlus int64
}

func (l ImageLimits) For(p plan.Plan) int64 {
	switch p {
	case plan.Premium:
		return l.Premium
	case plan.PremiumPlus:
		return l.PremiumPlus
	default:
		return l.Free
	}
}

var allowedImageMimes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
	"image/heic": true,
	"image/heif": true,
}

// Validator applies the configured ceilings to uploads.
type Validator struct {
	imageLimits      ImageLimits
	voiceSizeLimit   int64
	voiceMaxDuration time.Duration
}

func NewValidator(imageLimits ImageLimits, voiceSizeLimit int64, voiceMaxDuration time.Duration) *Validator {
	return &Validator{
		imageLimits:      imageLimits,
		voiceSizeLimit:   voiceSizeLimit,
		voiceMaxDuration: voiceMaxDuration,
	}
}

// ImageUpload describes an inbound image before any byte transfer.
// Head is a bounded slice of leading bytes for signature sniffing.
type ImageUpload struct {
	FileSize     int64
	DeclaredMime string
	Plan         plan.Plan
	Head         []byte
	Filename     string
}

// ImageInfo is the accepted-upload result.
type ImageInfo struct {
	Format   Format `json:"format,omitempty"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	SafeName string `json:"safe_name"`
}

// ValidateImage runs the ordered image checks: empty file, plan byte
// ceiling, MIME allow-list, signature sniff, then best-effort dimension
// extraction (failure there is non-fatal).
func (v *Validator) ValidateImage(up ImageUpload) (*ImageInfo, error) {
	if up.FileSize <= 0 {
		return nil, apperrors.New(apperrors.CodeSizeExceeded, "empty file")
	}

	ceiling := v.imageLimits.For(up.Plan)
	if up.FileSize > ceiling {
		return nil, apperrors.New(apperrors.CodeSizeExceeded, "file exceeds plan size limit")
	}

	declared := normalizeMime(up.DeclaredMime)
	if !allowedImageMimes[declared] {
		return nil, apperrors.New(apperrors.CodeInvalidMime, "image type not allowed")
	}

	info := &ImageInfo{SafeName: SanitizeFilename(up.Filename)}

	format, conclusive := SniffFormat(up.Head)
	if conclusive {
		if expected := formatsForMime(declared); expected != nil && !expected[format] {
			return nil, apperrors.New(apperrors.CodeSignatureMismatch, "file signature does not match declared type")
		}
		info.Format = format
		if w, h, ok := Dimensions(up.Head, format); ok {
			info.Width = w
			info.Height = h
		}
	}

	return info, nil
}

// VoiceUpload describes an inbound voice clip.
type VoiceUpload struct {
	FileSize     int64
	DeclaredMime string
	Duration     time.Duration
}

// ValidateVoice applies the fixed voice ceiling and duration bounds.
func (v *Validator) ValidateVoice(up VoiceUpload) error {
	if up.FileSize <= 0 {
		return apperrors.New(apperrors.CodeSizeExceeded, "empty file")
	}
	if up.FileSize > v.voiceSizeLimit {
		return apperrors.New(apperrors.CodeSizeExceeded, "voice clip exceeds size limit")
	}
	if !strings.HasPrefix(normalizeMime(up.DeclaredMime), "audio/") {
		return apperrors.New(apperrors.CodeInvalidMime, "voice clip must be an audio type")
	}
	if up.Duration <= 0 || up.Duration > v.voiceMaxDuration {
		return apperrors.New(apperrors.CodeInvalidDuration, "voice duration out of range")
	}
	return nil
}

func normalizeMime(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	return mime
}
