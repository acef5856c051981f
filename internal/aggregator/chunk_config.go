package aggregator

import (
	"fmt"

	"github.com/dwnmf/Screen-recoder/internal/utils"
)

const (
	MinChunkSizeMB     = 10
	MaxChunkSizeMB     = 2048
	DefaultChunkSizeMB = 100

	mib = 1024 * 1024
)

// ChunkConfig controls chunked output for one session. NextIndex and
// SavedChunks are only mutated by the Rotator.
type ChunkConfig struct {
	Enabled       bool
	SizeBytes     int64
	Folder        string
	BaseName      string
	NextIndex     int
	RequireSaveAs bool
	SavedChunks   int
}

// ClampChunkSizeMB bounds a requested chunk size. Zero selects the default.
func ClampChunkSizeMB(sizeMB int) int {
	switch {
	case sizeMB == 0:
		return DefaultChunkSizeMB
	case sizeMB < MinChunkSizeMB:
		return MinChunkSizeMB
	case sizeMB > MaxChunkSizeMB:
		return MaxChunkSizeMB
	default:
		return sizeMB
	}
}

// NewChunkConfig builds a fresh per-session config from user settings. An
// empty baseName is filled in by the session.
func NewChunkConfig(enabled bool, sizeMB int, folder, baseName string) ChunkConfig {
	return ChunkConfig{
		Enabled:       enabled,
		SizeBytes:     int64(ClampChunkSizeMB(sizeMB)) * mib,
		Folder:        utils.SanitizePath(folder),
		BaseName:      utils.SanitizePath(baseName),
		NextIndex:     1,
		RequireSaveAs: true,
	}
}

// FileName returns the path of part index, e.g. "clips/recording_part001.webm".
func (c ChunkConfig) FileName(index int) string {
	name := fmt.Sprintf("%s_part%03d.webm", c.BaseName, index)
	if c.Folder == "" {
		return name
	}
	return c.Folder + "/" + name
}
