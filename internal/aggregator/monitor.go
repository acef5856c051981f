package aggregator

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// MonitorInterval is the buffer report period.
const MonitorInterval = time.Second

// Report is one buffer size observation.
type Report struct {
	Size      int64
	Formatted string
	Warning   bool
}

// Monitor periodically reports the ledger size and fires the hard-cap
// callback once when the buffer reaches HardCapBytes.
type Monitor struct {
	ledger    *Ledger
	interval  time.Duration
	onReport  func(Report)
	onHardCap func(size int64)
	warnAt    int64
	capAt     int64

	mu       sync.Mutex
	capFired bool
	running  bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewMonitor creates a monitor. Callbacks run on the monitor goroutine and
// must not call Stop.
func NewMonitor(ledger *Ledger, interval time.Duration, onReport func(Report), onHardCap func(int64)) *Monitor {
	if interval <= 0 {
		interval = MonitorInterval
	}
	return &Monitor{
		ledger:    ledger,
		interval:  interval,
		onReport:  onReport,
		onHardCap: onHardCap,
		warnAt:    WarnBytes,
		capAt:     HardCapBytes,
	}
}

// SetLimits overrides the warning and hard-cap thresholds. Zero keeps the
// current value.
func (m *Monitor) SetLimits(warn, hardCap int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if warn > 0 {
		m.warnAt = warn
	}
	if hardCap > 0 {
		m.capAt = hardCap
	}
}

// Start launches the ticker. Starting a running monitor restarts it.
func (m *Monitor) Start() {
	m.Stop()

	m.mu.Lock()
	m.stopCh = make(chan struct{})
	m.running = true
	stopCh := m.stopCh
	m.mu.Unlock()

	m.wg.Add(1)
	go m.loop(stopCh)
}

// Stop halts the ticker and waits for an in-flight tick to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	m.mu.Unlock()

	m.wg.Wait()
}

func (m *Monitor) loop(stopCh chan struct{}) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			m.Tick()
		}
	}
}

// Tick takes one observation and returns it.
func (m *Monitor) Tick() Report {
	m.mu.Lock()
	warnAt, capAt := m.warnAt, m.capAt
	m.mu.Unlock()

	size := m.ledger.Size()
	r := Report{
		Size:      size,
		Formatted: FormatBytes(size),
		Warning:   size >= warnAt,
	}
	if m.onReport != nil {
		m.onReport(r)
	}

	if size < capAt {
		return r
	}

	m.mu.Lock()
	fire := !m.capFired
	m.capFired = true
	m.mu.Unlock()

	if fire {
		log.Warn().Msgf("Buffer size limit reached (%s), stopping recording automatically", r.Formatted)
		if m.onHardCap != nil {
			m.onHardCap(size)
		}
	}
	return r
}
