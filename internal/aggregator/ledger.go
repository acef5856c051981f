package aggregator

import (
	"sync"

	"github.com/dwnmf/Screen-recoder/internal/media"
)

const (
	// HardCapBytes stops the session automatically when reached.
	HardCapBytes int64 = 500 * 1024 * 1024
	// WarnBytes raises the warning flag on buffer reports.
	WarnBytes int64 = 400 * 1024 * 1024
)

// Ledger holds encoded chunks that have not been written out yet.
// pendingBytes always equals the sum of the pending chunk sizes.
type Ledger struct {
	mu           sync.Mutex
	pending      []media.Chunk
	pendingBytes int64
}

func NewLedger() *Ledger {
	return &Ledger{}
}

// Add appends a chunk in playback order.
func (l *Ledger) Add(c media.Chunk) {
	l.mu.Lock()
	l.pending = append(l.pending, c)
	l.pendingBytes += c.Size()
	l.mu.Unlock()
}

// Size returns the buffered byte count.
func (l *Ledger) Size() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pendingBytes
}

// Len returns the number of buffered chunks.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Drain takes every pending chunk and leaves the ledger empty.
func (l *Ledger) Drain() ([]media.Chunk, int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	chunks, n := l.pending, l.pendingBytes
	l.pending = nil
	l.pendingBytes = 0
	return chunks, n
}

// Restore puts chunks taken by Drain back in front of anything buffered since.
func (l *Ledger) Restore(chunks []media.Chunk) {
	if len(chunks) == 0 {
		return
	}
	var n int64
	for _, c := range chunks {
		n += c.Size()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	restored := make([]media.Chunk, 0, len(chunks)+len(l.pending))
	restored = append(restored, chunks...)
	l.pending = append(restored, l.pending...)
	l.pendingBytes += n
}

// Blob returns the pending chunks as one blob without draining them.
func (l *Ledger) Blob(mimeType string) *media.Blob {
	l.mu.Lock()
	defer l.mu.Unlock()
	return media.NewBlob(mimeType, append([]media.Chunk(nil), l.pending...))
}

// Reset drops everything.
func (l *Ledger) Reset() {
	l.mu.Lock()
	l.pending = nil
	l.pendingBytes = 0
	l.mu.Unlock()
}
