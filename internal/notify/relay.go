package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dwnmf/Screen-recoder/internal/dto"
)

// PublishTimeout bounds a single sink delivery.
const PublishTimeout = 2 * time.Second

// Sink receives every notification in its encoded form.
type Sink interface {
	Name() string
	Publish(ctx context.Context, n dto.Notification, body []byte) error
}

// Relay fans notifications out to sinks and in-process subscribers.
// Delivery is fire-and-forget: failures are logged and dropped.
type Relay struct {
	mu     sync.RWMutex
	sinks  []Sink
	subs   map[int]chan dto.Notification
	nextID int
}

func NewRelay(sinks ...Sink) *Relay {
	return &Relay{
		sinks: sinks,
		subs:  make(map[int]chan dto.Notification),
	}
}

// AddSink registers another sink.
func (r *Relay) AddSink(s Sink) {
	r.mu.Lock()
	r.sinks = append(r.sinks, s)
	r.mu.Unlock()
}

// Emit delivers n to every sink and subscriber.
func (r *Relay) Emit(n dto.Notification) {
	body, err := dto.EncodeNotification(n)
	if err != nil {
		log.Error().Err(err).Msg("Dropping notification")
		return
	}

	r.mu.RLock()
	sinks := append([]Sink(nil), r.sinks...)
	for _, ch := range r.subs {
		select {
		case ch <- n:
		default:
			log.Debug().Msgf("Subscriber queue full, dropping %s", n.Name())
		}
	}
	r.mu.RUnlock()

	for _, s := range sinks {
		ctx, cancel := context.WithTimeout(context.Background(), PublishTimeout)
		if err := s.Publish(ctx, n, body); err != nil {
			log.Warn().Err(err).Msgf("Failed to relay %s to %s", n.Name(), s.Name())
		}
		cancel()
	}
}

// Subscribe returns a buffered channel of notifications and a function that
// ends the subscription and closes the channel.
func (r *Relay) Subscribe(buffer int) (<-chan dto.Notification, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan dto.Notification, buffer)

	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.subs[id] = ch
	r.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, id)
			r.mu.Unlock()
			close(ch)
		})
	}
}

// LogSink writes notifications to the process log. High-frequency actions
// go to debug level.
type LogSink struct{}

func (LogSink) Name() string { return "log" }

func (LogSink) Publish(_ context.Context, n dto.Notification, body []byte) error {
	switch n.Name() {
	case dto.ActionAudioData, dto.ActionBufferSizeUpdate:
		log.Debug().RawJSON("notification", body).Msg(n.Name())
	case dto.ActionRecordingError:
		log.Error().RawJSON("notification", body).Msg(n.Name())
	case dto.ActionRecordingWarning:
		log.Warn().RawJSON("notification", body).Msg(n.Name())
	default:
		log.Info().RawJSON("notification", body).Msg(n.Name())
	}
	return nil
}
