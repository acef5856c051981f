package recorder

import (
	"sync"
	"time"

	"github.com/dwnmf/Screen-recoder/internal/dto"
	"github.com/dwnmf/Screen-recoder/internal/media"
)

// VisualizerInterval is the audioData period.
const VisualizerInterval = 100 * time.Millisecond

// Visualizer samples an audio level source and publishes bar levels.
type Visualizer struct {
	source   media.LevelSource
	interval time.Duration
	emit     func(levels []uint8)

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewVisualizer(source media.LevelSource, interval time.Duration, emit func([]uint8)) *Visualizer {
	if interval <= 0 {
		interval = VisualizerInterval
	}
	return &Visualizer{
		source:   source,
		interval: interval,
		emit:     emit,
		stopCh:   make(chan struct{}),
	}
}

func (v *Visualizer) Start() {
	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		ticker := time.NewTicker(v.interval)
		defer ticker.Stop()
		for {
			select {
			case <-v.stopCh:
				return
			case <-ticker.C:
				v.emit(v.source.Levels(dto.AudioBars))
			}
		}
	}()
}

// Stop is safe to call more than once and on a visualizer never started.
func (v *Visualizer) Stop() {
	v.stopOnce.Do(func() { close(v.stopCh) })
	v.wg.Wait()
}
