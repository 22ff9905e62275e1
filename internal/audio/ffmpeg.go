package audio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Converter shells out to ffmpeg.
type Converter struct {
	Path    string // ffmpeg binary, "ffmpeg" when empty
	scratch *Scratch
}

// NewConverter returns a Converter writing its output into scratch.
func NewConverter(path string, scratch *Scratch) *Converter {
	if path == "" {
		path = "ffmpeg"
	}
	return &Converter{Path: path, scratch: scratch}
}

// ToWAV converts src to mono 16 kHz WAV, the format diarization
// pipelines expect. cleanup removes the output and is non-nil whenever
// err is nil.
func (c *Converter) ToWAV(ctx context.Context, src string) (dst string, cleanup func(), err error) {
	dst, cleanup, err = c.scratch.TempPath(".wav")
	if err != nil {
		return "", nil, err
	}

	// ffmpeg -y -i input -ac 1 -ar 16000 -f wav output
	cmd := exec.CommandContext(ctx, c.Path,
		"-hide_banner", "-loglevel", "error",
		"-y", "-i", src,
		"-ac", "1", "-ar", "16000",
		"-f", "wav", dst,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		cleanup()
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", nil, fmt.Errorf("ffmpeg: %w: %s", err, msg)
		}
		return "", nil, fmt.Errorf("ffmpeg: %w", err)
	}
	return dst, cleanup, nil
}
