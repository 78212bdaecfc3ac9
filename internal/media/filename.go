// internal/media/filename.go

package media

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const maxFilenameLength = 80

var filenameCharset = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// SanitizeFilename strips directory components and null bytes, restricts
// the character set, and truncates long names while preserving the
// extension, appending a uniqueness suffix so truncation cannot collide.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\x00", "")
	// Handle both separators; a Windows client may send backslashes.
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)

	name = filenameCharset.ReplaceAllString(name, "-")
	name = strings.Trim(name, "-.")
	if name == "" {
		name = "file"
	}

	if len(name) <= maxFilenameLength {
		return name
	}

	ext := filepath.Ext(name)
	if len(ext) > 10 {
		ext = ""
	}
	suffix := "-" + uuid.New().String()[:8]
	keep := maxFilenameLength - len(ext) - len(suffix)
	if keep < 1 {
		keep = 1
	}
	return name[:keep] + suffix + ext
}
