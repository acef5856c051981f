package webrtc

import (
	"sync"

	"github.com/dwnmf/Screen-recoder/internal/media"
)

// feed fans out the RTP payloads of one remote track to its subscribers.
type feed struct {
	id   string
	kind media.Kind

	mu     sync.Mutex
	subs   map[int]func([]byte)
	nextID int
	done   chan struct{}
	closed bool

	packets int64
	bytes   int64
}

func newFeed(id string, kind media.Kind) *feed {
	return &feed{
		id:   id,
		kind: kind,
		subs: make(map[int]func([]byte)),
		done: make(chan struct{}),
	}
}

// subscribe registers fn for every later payload. The returned func removes it.
func (f *feed) subscribe(fn func([]byte)) func() {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = fn
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
		})
	}
}

func (f *feed) publish(payload []byte) {
	if len(payload) == 0 {
		return
	}
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.packets++
	f.bytes += int64(len(payload))
	subs := make([]func([]byte), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()

	for _, fn := range subs {
		fn(payload)
	}
}

// close marks the remote track as ended.
func (f *feed) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	close(f.done)
}

func (f *feed) ended() <-chan struct{} {
	return f.done
}

func (f *feed) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *feed) stats() (packets, bytes int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.packets, f.bytes
}

// trackHandle is the media.Track a session owns for one acquisition of a feed.
type trackHandle struct {
	feed    *feed
	release func()
	once    sync.Once
}

func (t *trackHandle) ID() string       { return t.feed.id }
func (t *trackHandle) Kind() media.Kind { return t.feed.kind }

func (t *trackHandle) Stop() {
	t.once.Do(func() {
		if t.release != nil {
			t.release()
		}
	})
}
