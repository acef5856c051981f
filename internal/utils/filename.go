package utils

import (
	"path/filepath"
	"regexp"
	"strings"
)

var disallowedFilenameChars = regexp.MustCompile(`[<>:"|?*\x00-\x1f\x7f]`)

// SanitizePath cleans a download-relative path: backslashes become slashes,
// empty, "." and ".." segments are dropped and characters download managers
// reject are stripped from every segment.
func SanitizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")

	segments := make([]string, 0, 4)
	for _, seg := range strings.Split(p, "/") {
		seg = disallowedFilenameChars.ReplaceAllString(seg, "")
		seg = strings.TrimSpace(seg)
		if seg == "" || seg == "." || seg == ".." {
			continue
		}
		// Trailing dots and spaces are rejected on Windows.
		seg = strings.TrimRight(seg, ". ")
		if seg == "" {
			continue
		}
		segments = append(segments, seg)
	}
	return strings.Join(segments, "/")
}

// SanitizeFilename cleans p and falls back when nothing usable is left.
func SanitizeFilename(p, fallback string) string {
	if clean := SanitizePath(p); clean != "" {
		return clean
	}
	return fallback
}

// PathWithinDir reports whether target resolves inside dir.
func PathWithinDir(target, dir string) bool {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	absTarget, err := filepath.Abs(target)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absTarget)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
