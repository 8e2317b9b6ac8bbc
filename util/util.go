// Package util is a set of utility variables or methods
package util

import (
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

var ImageExt = mapset.NewSet(
	".jpeg", ".jpg", ".png", ".gif", ".webp",
)

var VideoExt = mapset.NewSet(
	".mp4", ".webm", ".ogg", ".mov",
)

// MediaTypeForExt classifies a file extension as "image" or "video".
// Returns an empty string for anything unsupported.
func MediaTypeForExt(ext string) string {
	ext = strings.ToLower(ext)
	switch {
	case ImageExt.Contains(ext):
		return "image"
	case VideoExt.Contains(ext):
		return "video"
	default:
		return ""
	}
}

func SupportedExt(ext string) bool {
	return MediaTypeForExt(ext) != ""
}
