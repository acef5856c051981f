package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// MetadataReader reads container metadata with ffprobe.
type MetadataReader struct {
	path string
}

// NewMetadataReader uses the ffprobe binary at path, or "ffprobe" from PATH.
func NewMetadataReader(path string) *MetadataReader {
	if path == "" {
		path = "ffprobe"
	}
	return &MetadataReader{path: path}
}

// CheckInstallation verifies if ffprobe is installed and accessible
func (p *MetadataReader) CheckInstallation() error {
	cmd := exec.Command(p.path, "-version")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffprobe is not installed or not in PATH: %w", err)
	}
	return nil
}

// Duration returns the container duration of a recording in seconds
func (p *MetadataReader) Duration(ctx context.Context, videoPath string) (float64, error) {
	cmd := exec.CommandContext(ctx, p.path,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath,
	)

	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("failed to get video info: %w", err)
	}

	return ParseDuration(string(output))
}

// ParseDuration parses ffprobe's bare duration output. WebM files written
// without a seek index report "N/A".
func ParseDuration(output string) (float64, error) {
	value := strings.TrimSpace(output)
	if value == "" || value == "N/A" {
		return 0, fmt.Errorf("duration not available")
	}
	d, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration %q: %w", value, err)
	}
	return d, nil
}
