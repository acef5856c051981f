package recorder

import (
	"strings"
	"time"

	"github.com/dwnmf/Screen-recoder/internal/media"
)

const (
	// BlobType is the container type of saved recordings.
	BlobType = "video/webm"

	DefaultVideoBitsPerSecond = 2500000
	DefaultTimeslice          = time.Second
)

// mimeLadder is tried in order; the last entry is used even when the factory
// does not claim support for it.
var mimeLadder = []string{
	"video/webm;codecs=vp9",
	"video/webm;codecs=vp8",
	BlobType,
}

// SelectMimeType returns the best format the factory supports.
func SelectMimeType(f media.EncoderFactory) string {
	for _, m := range mimeLadder[:len(mimeLadder)-1] {
		if f.IsTypeSupported(m) {
			return m
		}
	}
	return mimeLadder[len(mimeLadder)-1]
}

// Timestamp renders t as an ISO-8601 UTC time with ':' and '.' replaced by
// '-' and the milliseconds dropped, e.g. 2024-03-01T09-30-00.
func Timestamp(t time.Time) string {
	iso := t.UTC().Format("2006-01-02T15:04:05")
	return strings.NewReplacer(":", "-", ".", "-").Replace(iso)
}

// BaseName is the stem shared by the single-file name and chunk parts.
func BaseName(t time.Time) string {
	return "recording_" + Timestamp(t)
}

func Filename(t time.Time) string {
	return BaseName(t) + ".webm"
}
