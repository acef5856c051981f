package webrtc

import "sync"

const (
	levelHistory = 64
	// Opus frames of loud speech at common bitrates come close to this size.
	levelFullScale = 200
)

// LevelMeter approximates audio levels from the sizes of recent Opus
// payloads, which grow with signal energy.
type LevelMeter struct {
	mu      sync.Mutex
	samples [levelHistory]int
	pos     int
	count   int
	cancel  func()
}

// newLevelMeter meters f until Close.
func newLevelMeter(f *feed) *LevelMeter {
	m := &LevelMeter{}
	m.cancel = f.subscribe(m.observe)
	return m
}

func (m *LevelMeter) observe(payload []byte) {
	m.mu.Lock()
	m.samples[m.pos] = len(payload)
	m.pos = (m.pos + 1) % levelHistory
	if m.count < levelHistory {
		m.count++
	}
	m.mu.Unlock()
}

// Levels returns bands values in [0,255], oldest first.
func (m *LevelMeter) Levels(bands int) []uint8 {
	out := make([]uint8, bands)
	m.mu.Lock()
	defer m.mu.Unlock()

	n := bands
	if n > m.count {
		n = m.count
	}
	start := bands - n
	for i := 0; i < n; i++ {
		idx := (m.pos - n + i + levelHistory) % levelHistory
		v := m.samples[idx] * 255 / levelFullScale
		if v > 255 {
			v = 255
		}
		out[start+i] = uint8(v)
	}
	return out
}

func (m *LevelMeter) Close() {
	if m.cancel != nil {
		m.cancel()
	}
}
