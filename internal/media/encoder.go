package media

import (
	"bytes"
	"context"
	"io"
	"time"
)

// Chunk is one encoded blob emitted by an encoder. Its bytes must not be
// modified after emission; order of chunks defines playback order.
type Chunk struct {
	Data []byte
}

// NewChunk copies data into an immutable chunk.
func NewChunk(data []byte) Chunk {
	return Chunk{Data: append([]byte(nil), data...)}
}

func (c Chunk) Size() int64 {
	return int64(len(c.Data))
}

// Blob is an ordered concatenation of chunks.
type Blob struct {
	Type  string
	Parts []Chunk
}

func NewBlob(mimeType string, parts []Chunk) *Blob {
	return &Blob{Type: mimeType, Parts: parts}
}

func (b *Blob) Size() int64 {
	var n int64
	for _, p := range b.Parts {
		n += p.Size()
	}
	return n
}

// Reader streams the blob parts in order without copying them.
func (b *Blob) Reader() io.Reader {
	readers := make([]io.Reader, 0, len(b.Parts))
	for _, p := range b.Parts {
		readers = append(readers, bytes.NewReader(p.Data))
	}
	return io.MultiReader(readers...)
}

// RecorderState mirrors the MediaRecorder state attribute.
type RecorderState string

const (
	StateInactive  RecorderState = "inactive"
	StateRecording RecorderState = "recording"
	StatePaused    RecorderState = "paused"
)

// EncoderOptions configures a new encoder.
type EncoderOptions struct {
	MimeType           string
	VideoBitsPerSecond int
}

// Encoder is the streaming encoder capability a recording session drives.
// Handlers must be registered before Start. The final chunk, if any, is
// delivered before the stopped handler runs.
type Encoder interface {
	Start(timeslice time.Duration) error
	Pause() error
	Resume() error
	Stop() error
	State() RecorderState
	MimeType() string

	OnChunk(func(Chunk))
	OnStopped(func())
	OnError(func(error))
}

// EncoderFactory creates encoders and reports which formats the runtime supports.
type EncoderFactory interface {
	IsTypeSupported(mimeType string) bool
	NewEncoder(stream *Stream, opts EncoderOptions) (Encoder, error)
}

// Devices acquires live streams.
type Devices interface {
	GetUserMedia(ctx context.Context, c Constraints) (*Stream, error)
}
