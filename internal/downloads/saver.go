package downloads

import (
	"context"

	"github.com/dwnmf/Screen-recoder/internal/aggregator"
	"github.com/dwnmf/Screen-recoder/internal/dto"
)

// Downloader is implemented by *Manager.
type Downloader interface {
	Download(ctx context.Context, req dto.SaveRecordingRequest) (Result, error)
}

// BlobSaver hands blobs to the download manager through an object URL, the
// same way a client would with saveRecording.
type BlobSaver struct {
	blobs      *BlobRegistry
	downloader Downloader
	onSaved    func(Result)
}

// NewBlobSaver creates a saver. onSaved, if set, observes every completed
// download.
func NewBlobSaver(blobs *BlobRegistry, downloader Downloader, onSaved func(Result)) *BlobSaver {
	return &BlobSaver{blobs: blobs, downloader: downloader, onSaved: onSaved}
}

func (s *BlobSaver) Save(ctx context.Context, req aggregator.SaveRequest) (aggregator.SaveResult, error) {
	url := s.blobs.CreateObjectURL(req.Blob)
	defer s.blobs.Revoke(url)

	res, err := s.downloader.Download(ctx, dto.SaveRecordingRequest{
		Action:         dto.ActionSaveRecording,
		URL:            url,
		Filename:       req.Filename,
		SaveAs:         req.SaveAs,
		ConflictAction: req.ConflictAction,
	})
	if err != nil {
		return aggregator.SaveResult{}, err
	}
	if s.onSaved != nil {
		s.onSaved(res)
	}
	return aggregator.SaveResult{DownloadID: res.DownloadID, Filename: res.Filename}, nil
}
