package media

import "sync"

// Kind identifies the media type carried by a track.
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// Track is a single live media track owned by a Stream.
type Track interface {
	ID() string
	Kind() Kind
	Stop()
}

// LevelSource reports recent audio levels, one byte (0-255) per band.
type LevelSource interface {
	Levels(bands int) []uint8
}

// Stream is a live capture: one video track plus zero or more audio tracks.
// It is owned by exactly one recording session and released once.
type Stream struct {
	id     string
	mu     sync.Mutex
	video  []Track
	audio  []Track
	levels LevelSource
	once   sync.Once
}

// NewStream groups tracks into a stream, splitting them by kind.
func NewStream(id string, tracks ...Track) *Stream {
	s := &Stream{id: id}
	for _, t := range tracks {
		switch t.Kind() {
		case KindVideo:
			s.video = append(s.video, t)
		case KindAudio:
			s.audio = append(s.audio, t)
		}
	}
	return s
}

func (s *Stream) ID() string {
	return s.id
}

func (s *Stream) VideoTracks() []Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Track(nil), s.video...)
}

func (s *Stream) AudioTracks() []Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Track(nil), s.audio...)
}

// Tracks returns video tracks followed by audio tracks.
func (s *Stream) Tracks() []Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Track, 0, len(s.video)+len(s.audio))
	out = append(out, s.video...)
	return append(out, s.audio...)
}

// DropAudio stops and removes every audio track, leaving a video-only stream.
func (s *Stream) DropAudio() {
	s.mu.Lock()
	audio := s.audio
	s.audio = nil
	s.levels = nil
	s.mu.Unlock()

	for _, t := range audio {
		t.Stop()
	}
}

// TrimVideo stops and removes every video track after the first and
// returns how many were removed.
func (s *Stream) TrimVideo() int {
	s.mu.Lock()
	if len(s.video) <= 1 {
		s.mu.Unlock()
		return 0
	}
	extra := s.video[1:]
	s.video = s.video[:1:1]
	s.mu.Unlock()

	for _, t := range extra {
		t.Stop()
	}
	return len(extra)
}

// SetLevelSource attaches an audio level reader used by the visualizer.
func (s *Stream) SetLevelSource(src LevelSource) {
	s.mu.Lock()
	s.levels = src
	s.mu.Unlock()
}

func (s *Stream) LevelSource() LevelSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.levels
}

// Release stops all tracks. Only the first call has any effect.
func (s *Stream) Release() {
	s.once.Do(func() {
		for _, t := range s.Tracks() {
			t.Stop()
		}
	})
}
