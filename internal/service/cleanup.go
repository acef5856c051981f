package service

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dwnmf/Screen-recoder/internal/config"
	"github.com/dwnmf/Screen-recoder/internal/downloads"
)

// PartialCleanup removes partial downloads left behind by interrupted saves.
type PartialCleanup struct {
	dir    string
	config *config.Config
	now    func() time.Time
}

func NewPartialCleanup(dir string, cfg *config.Config) *PartialCleanup {
	return &PartialCleanup{
		dir:    dir,
		config: cfg,
		now:    time.Now,
	}
}

func (pc *PartialCleanup) Start(ctx context.Context) {
	ticker := time.NewTicker(pc.config.CleanupInterval)
	defer ticker.Stop()

	log.Info().Msgf("Started cleanup service for: %s (window: %v)", pc.dir, pc.config.CleanupWindow)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msgf("Cleanup service stopped for: %s", pc.dir)
			return
		case <-ticker.C:
			pc.Sweep()
		}
	}
}

// Sweep deletes every partial download older than the cleanup window and
// returns how many were removed.
func (pc *PartialCleanup) Sweep() int {
	cutoffTime := pc.now().Add(-pc.config.CleanupWindow)
	deletedCount := 0

	err := filepath.WalkDir(pc.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), downloads.PartialSuffix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(cutoffTime) {
			if err := os.Remove(path); err != nil {
				log.Warn().Err(err).Msgf("Failed to delete stale partial download %s", path)
			} else {
				deletedCount++
			}
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msgf("Error reading downloads directory %s", pc.dir)
	}

	if deletedCount > 0 {
		log.Info().Msgf("Cleaned up %d stale partial downloads from: %s", deletedCount, pc.dir)
	}
	return deletedCount
}
