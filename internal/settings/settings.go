package settings

import (
	"context"
	"fmt"
	"strconv"
)

// Settings are the persisted recorder preferences and the in-progress
// markers the UI needs to resume after a reload. Times are Unix milliseconds.
type Settings struct {
	IsRecording        bool   `json:"isRecording"`
	StartTime          int64  `json:"startTime"`
	PauseTime          int64  `json:"pauseTime"`
	ChunkEnabled       bool   `json:"chunkEnabled"`
	ChunkSizeMB        int    `json:"chunkSizeMB"`
	ChunkFolder        string `json:"chunkFolder"`
	FPS                int    `json:"fps"`
	IncludeAudio       bool   `json:"includeAudio"`
	VideoBitsPerSecond int    `json:"videoBitsPerSecond"`
}

// Defaults returns the settings used before anything was saved.
func Defaults() Settings {
	return Settings{
		ChunkSizeMB:        100,
		FPS:                30,
		IncludeAudio:       true,
		VideoBitsPerSecond: 2500000,
	}
}

// Store persists Settings.
type Store interface {
	Load(ctx context.Context) (Settings, error)
	Save(ctx context.Context, s Settings) error
	// Update applies fn to the stored settings and saves the result.
	Update(ctx context.Context, fn func(*Settings)) (Settings, error)
}

const (
	fieldIsRecording        = "isRecording"
	fieldStartTime          = "startTime"
	fieldPauseTime          = "pauseTime"
	fieldChunkEnabled       = "chunkEnabled"
	fieldChunkSizeMB        = "chunkSizeMB"
	fieldChunkFolder        = "chunkFolder"
	fieldFPS                = "fps"
	fieldIncludeAudio       = "includeAudio"
	fieldVideoBitsPerSecond = "videoBitsPerSecond"
)

// Fields flattens s into string key/value pairs.
func (s Settings) Fields() map[string]string {
	return map[string]string{
		fieldIsRecording:        strconv.FormatBool(s.IsRecording),
		fieldStartTime:          strconv.FormatInt(s.StartTime, 10),
		fieldPauseTime:          strconv.FormatInt(s.PauseTime, 10),
		fieldChunkEnabled:       strconv.FormatBool(s.ChunkEnabled),
		fieldChunkSizeMB:        strconv.Itoa(s.ChunkSizeMB),
		fieldChunkFolder:        s.ChunkFolder,
		fieldFPS:                strconv.Itoa(s.FPS),
		fieldIncludeAudio:       strconv.FormatBool(s.IncludeAudio),
		fieldVideoBitsPerSecond: strconv.Itoa(s.VideoBitsPerSecond),
	}
}

// FromFields overlays stored fields on the defaults. Unknown fields are
// ignored; malformed ones are an error.
func FromFields(fields map[string]string) (Settings, error) {
	s := Defaults()
	for k, v := range fields {
		var err error
		switch k {
		case fieldIsRecording:
			s.IsRecording, err = strconv.ParseBool(v)
		case fieldStartTime:
			s.StartTime, err = strconv.ParseInt(v, 10, 64)
		case fieldPauseTime:
			s.PauseTime, err = strconv.ParseInt(v, 10, 64)
		case fieldChunkEnabled:
			s.ChunkEnabled, err = strconv.ParseBool(v)
		case fieldChunkSizeMB:
			s.ChunkSizeMB, err = strconv.Atoi(v)
		case fieldChunkFolder:
			s.ChunkFolder = v
		case fieldFPS:
			s.FPS, err = strconv.Atoi(v)
		case fieldIncludeAudio:
			s.IncludeAudio, err = strconv.ParseBool(v)
		case fieldVideoBitsPerSecond:
			s.VideoBitsPerSecond, err = strconv.Atoi(v)
		}
		if err != nil {
			return Settings{}, fmt.Errorf("invalid setting %s=%q: %w", k, v, err)
		}
	}
	return s, nil
}
