package downloads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dwnmf/Screen-recoder/internal/aggregator"
	"github.com/dwnmf/Screen-recoder/internal/dto"
	"github.com/dwnmf/Screen-recoder/internal/utils"
)

// PartialSuffix marks a download still being written.
const PartialSuffix = ".crdownload"

const maxUniquify = 1000

var (
	ErrUnknownURL         = errors.New("unknown or revoked download url")
	ErrSaveAsCancelled    = errors.New("save dialog cancelled")
	ErrOutsideDownloadDir = errors.New("download path escapes the downloads directory")
)

// Prompter asks the user where to save a file. It returns a path relative to
// the downloads directory.
type Prompter interface {
	PromptSaveAs(ctx context.Context, suggested string) (string, error)
}

// PrompterFunc adapts a function to Prompter.
type PrompterFunc func(ctx context.Context, suggested string) (string, error)

func (f PrompterFunc) PromptSaveAs(ctx context.Context, suggested string) (string, error) {
	return f(ctx, suggested)
}

// AcceptPrompter confirms the suggested location without asking. It is the
// headless default.
var AcceptPrompter = PrompterFunc(func(_ context.Context, suggested string) (string, error) {
	return suggested, nil
})

// Result describes a completed download.
type Result struct {
	DownloadID int
	// Filename is relative to the downloads directory, slash separated.
	Filename string
	Path     string
	Bytes    int64
}

// Manager writes blobs into a downloads directory.
type Manager struct {
	root     string
	blobs    *BlobRegistry
	prompter Prompter

	mu     sync.Mutex
	nextID int
}

func NewManager(root string, blobs *BlobRegistry, prompter Prompter) *Manager {
	if prompter == nil {
		prompter = AcceptPrompter
	}
	return &Manager{root: root, blobs: blobs, prompter: prompter}
}

func (m *Manager) Root() string {
	return m.root
}

func (m *Manager) Blobs() *BlobRegistry {
	return m.blobs
}

// Download saves the blob behind req.URL.
func (m *Manager) Download(ctx context.Context, req dto.SaveRecordingRequest) (Result, error) {
	blob, ok := m.blobs.Resolve(req.URL)
	if !ok {
		return Result{}, ErrUnknownURL
	}

	name := utils.SanitizeFilename(req.Filename, "download")
	if req.SaveAs {
		chosen, err := m.prompter.PromptSaveAs(ctx, name)
		if err != nil {
			return Result{}, err
		}
		name = utils.SanitizeFilename(chosen, name)
	}

	conflict := req.ConflictAction
	if conflict == "" {
		conflict = aggregator.ConflictUniquify
	}
	if conflict != aggregator.ConflictUniquify && conflict != aggregator.ConflictOverwrite {
		return Result{}, fmt.Errorf("unsupported conflictAction %q", conflict)
	}

	target := filepath.Join(m.root, filepath.FromSlash(name))
	if !utils.PathWithinDir(target, m.root) {
		return Result{}, ErrOutsideDownloadDir
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return Result{}, fmt.Errorf("failed to create download directory: %w", err)
	}

	target, tmp, id, err := m.reserve(target, conflict)
	if err != nil {
		return Result{}, err
	}

	n, err := writeBlob(ctx, tmp, blob.Reader())
	if err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return Result{}, fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return Result{}, fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return Result{}, fmt.Errorf("failed to finish %s: %w", name, err)
	}

	rel, err := filepath.Rel(m.root, target)
	if err != nil {
		rel = filepath.Base(target)
	}
	res := Result{DownloadID: id, Filename: filepath.ToSlash(rel), Path: target, Bytes: n}
	log.Info().Msgf("Download %d complete: %s (%s)", id, res.Filename, aggregator.FormatBytes(n))
	return res, nil
}

// reserve picks the final name and creates its partial file while holding
// the lock, so two downloads never claim the same name.
func (m *Manager) reserve(target, conflict string) (string, *os.File, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	candidate := target
	for i := 1; i <= maxUniquify; i++ {
		if conflict == aggregator.ConflictUniquify && exists(candidate) {
			candidate = numbered(target, i)
			continue
		}

		flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
		tmp, err := os.OpenFile(candidate+PartialSuffix, flags, 0644)
		if err == nil {
			m.nextID++
			return candidate, tmp, m.nextID, nil
		}
		if !os.IsExist(err) {
			return "", nil, 0, fmt.Errorf("failed to create %s: %w", candidate+PartialSuffix, err)
		}
		if conflict == aggregator.ConflictOverwrite {
			return "", nil, 0, fmt.Errorf("download of %s already in progress", filepath.Base(candidate))
		}
		candidate = numbered(target, i)
	}
	return "", nil, 0, fmt.Errorf("no free file name for %s", filepath.Base(target))
}

// numbered turns "a/b.webm" into "a/b (n).webm".
func numbered(path string, n int) string {
	ext := filepath.Ext(path)
	return fmt.Sprintf("%s (%d)%s", strings.TrimSuffix(path, ext), n, ext)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func writeBlob(ctx context.Context, w io.Writer, r io.Reader) (int64, error) {
	return io.Copy(w, ctxReader{ctx: ctx, r: r})
}
