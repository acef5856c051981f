package aggregator

import (
	"context"
	"fmt"
	"path"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dwnmf/Screen-recoder/internal/media"
)

// Conflict actions understood by a Saver.
const (
	ConflictUniquify  = "uniquify"
	ConflictOverwrite = "overwrite"
)

// SaveRequest asks a Saver to persist one blob.
type SaveRequest struct {
	Blob           *media.Blob
	Filename       string
	SaveAs         bool
	ConflictAction string
}

// SaveResult reports where a blob ended up, relative to the download root.
type SaveResult struct {
	DownloadID int
	Filename   string
}

// Saver persists blobs. Save blocks until the write finished or failed.
type Saver interface {
	Save(ctx context.Context, req SaveRequest) (SaveResult, error)
}

type flushJob struct {
	force bool
	done  chan struct{}
}

// Rotator writes the ledger out as numbered part files once it crosses the
// chunk threshold. Flushes run one at a time on a single worker, in the
// order they were requested.
type Rotator struct {
	ledger   *Ledger
	saver    Saver
	mimeType string
	onError  func(error)
	ctx      context.Context

	mu      sync.Mutex
	cfg     ChunkConfig
	lastErr error
	queued  bool
	files   []string

	// sendMu serializes sends and the final close of jobs. The worker never
	// takes it, so a blocked send can always drain.
	sendMu sync.Mutex
	closed bool
	jobs   chan flushJob
	wg     sync.WaitGroup
}

// NewRotator starts the flush worker when cfg is enabled. onError is
// called with every failed part write.
func NewRotator(ctx context.Context, cfg ChunkConfig, ledger *Ledger, saver Saver, mimeType string, onError func(error)) *Rotator {
	if cfg.NextIndex < 1 {
		cfg.NextIndex = 1
	}
	r := &Rotator{
		ledger:   ledger,
		saver:    saver,
		mimeType: mimeType,
		onError:  onError,
		ctx:      ctx,
		cfg:      cfg,
		jobs:     make(chan flushJob, 16),
	}
	if cfg.Enabled {
		r.wg.Add(1)
		go r.worker()
	} else {
		r.closed = true
		close(r.jobs)
	}
	return r
}

func (r *Rotator) Enabled() bool {
	return r.cfg.Enabled
}

// MaybeFlush queues a flush when the ledger reached the chunk size. A
// threshold flush that is already waiting absorbs the request.
func (r *Rotator) MaybeFlush() {
	if !r.cfg.Enabled || r.ledger.Size() < r.cfg.SizeBytes {
		return
	}

	r.sendMu.Lock()
	defer r.sendMu.Unlock()
	if r.closed {
		return
	}

	r.mu.Lock()
	if r.queued {
		r.mu.Unlock()
		return
	}
	r.queued = true
	r.mu.Unlock()

	r.jobs <- flushJob{}
}

// ForceFlush queues a flush of whatever is buffered.
func (r *Rotator) ForceFlush() {
	r.enqueue(flushJob{force: true})
}

// Sync waits until every flush queued before the call has run.
func (r *Rotator) Sync(ctx context.Context) error {
	done := make(chan struct{})
	if !r.enqueue(flushJob{done: done}) {
		return r.wait(ctx)
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Finish flushes the remainder, stops the worker and returns the error of
// the last failed write that was not recovered by a later one.
func (r *Rotator) Finish(ctx context.Context) error {
	r.sendMu.Lock()
	if !r.closed {
		r.closed = true
		r.jobs <- flushJob{force: true}
		close(r.jobs)
	}
	r.sendMu.Unlock()

	if err := r.wait(ctx); err != nil {
		return err
	}
	return r.LastError()
}

// Abort stops the worker without writing anything further.
func (r *Rotator) Abort() {
	r.sendMu.Lock()
	if !r.closed {
		r.closed = true
		close(r.jobs)
	}
	r.sendMu.Unlock()
	r.wg.Wait()
}

func (r *Rotator) SavedChunks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg.SavedChunks
}

func (r *Rotator) LastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

// Files lists the written parts in order.
func (r *Rotator) Files() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.files...)
}

// Config returns a snapshot of the current chunk state.
func (r *Rotator) Config() ChunkConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg
}

func (r *Rotator) enqueue(job flushJob) bool {
	r.sendMu.Lock()
	defer r.sendMu.Unlock()
	if r.closed {
		return false
	}
	r.jobs <- job
	return true
}

func (r *Rotator) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Rotator) worker() {
	defer r.wg.Done()
	for job := range r.jobs {
		if job.done != nil {
			close(job.done)
			continue
		}
		r.flush(job.force)
	}
}

func (r *Rotator) flush(force bool) {
	r.mu.Lock()
	if !force {
		r.queued = false
		if r.ledger.Size() < r.cfg.SizeBytes {
			r.mu.Unlock()
			return
		}
	}
	chunks, size := r.ledger.Drain()
	if len(chunks) == 0 || size == 0 {
		r.mu.Unlock()
		return
	}
	index := r.cfg.NextIndex
	r.cfg.NextIndex++
	filename := r.cfg.FileName(index)
	saveAs := r.cfg.RequireSaveAs
	r.mu.Unlock()

	log.Info().Msgf("Saving chunk %s (%s)", filename, FormatBytes(size))

	res, err := r.saver.Save(r.ctx, SaveRequest{
		Blob:           media.NewBlob(r.mimeType, chunks),
		Filename:       filename,
		SaveAs:         saveAs,
		ConflictAction: ConflictUniquify,
	})
	if err != nil {
		r.ledger.Restore(chunks)
		err = fmt.Errorf("failed to save chunk %s: %w", filename, err)

		r.mu.Lock()
		r.lastErr = err
		r.mu.Unlock()

		log.Error().Err(err).Msg("Chunk save failed, data kept in buffer")
		if r.onError != nil {
			r.onError(err)
		}
		return
	}

	r.mu.Lock()
	r.cfg.SavedChunks++
	r.lastErr = nil
	r.files = append(r.files, res.Filename)
	if saveAs {
		r.cfg.RequireSaveAs = false
		if dir := path.Dir(res.Filename); dir != "." && dir != "/" && dir != "" {
			r.cfg.Folder = dir
		}
	}
	saved := r.cfg.SavedChunks
	r.mu.Unlock()

	log.Info().Msgf("Chunk %s saved (download %d, %d parts so far)", res.Filename, res.DownloadID, saved)
}
