// Package audio handles uploaded audio on disk: scoped scratch files,
// content hashing, format checks and WAV normalization.
package audio

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"lukechampine.com/blake3"

	"github.com/lexiqai/speech-gateway/internal/apperror"
)

// DefaultSuffix is used when the upload's filename carries no extension.
const DefaultSuffix = ".m4a"

// AllowedExtensions lists the upload formats the engines can decode.
var AllowedExtensions = map[string]bool{
	".m4a":  true,
	".mp3":  true,
	".wav":  true,
	".flac": true,
	".ogg":  true,
	".webm": true,
}

// Suffix returns the lower-cased extension of filename, or DefaultSuffix.
func Suffix(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		return DefaultSuffix
	}
	return ext
}

// CheckFormat rejects filenames whose extension is not allowed.
func CheckFormat(filename string) error {
	ext := Suffix(filename)
	if !AllowedExtensions[ext] {
		return apperror.Newf(apperror.KindValidation, "unsupported audio format %q", ext).
			WithDetail("filename", filename)
	}
	return nil
}

// Scratch creates temporary files under one directory.
type Scratch struct {
	dir string
}

// NewScratch returns a Scratch rooted at dir, the OS temp dir when empty.
func NewScratch(dir string) (*Scratch, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	return &Scratch{dir: dir}, nil
}

// Dir returns the scratch directory.
func (s *Scratch) Dir() string { return s.dir }

// Clip is an uploaded audio file persisted to scratch space.
type Clip struct {
	ID       string // blake3 of the content, hex
	Path     string
	Filename string
	Size     int64
}

// Remove deletes the clip's file. Safe to call more than once.
func (c *Clip) Remove() error {
	if c == nil || c.Path == "" {
		return nil
	}
	if err := os.Remove(c.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Save copies r into a new scratch file named after filename's extension,
// hashing it on the way. maxBytes <= 0 disables the size check. The file
// is removed on any error; on success the caller owns it.
func (s *Scratch) Save(r io.Reader, filename string, maxBytes int64) (clip *Clip, err error) {
	f, err := os.CreateTemp(s.dir, "upload-*"+Suffix(filename))
	if err != nil {
		return nil, fmt.Errorf("create scratch file: %w", err)
	}
	defer func() {
		f.Close()
		if err != nil {
			os.Remove(f.Name())
		}
	}()

	h := blake3.New(32, nil)
	src := r
	if maxBytes > 0 {
		src = io.LimitReader(r, maxBytes+1)
	}
	n, err := io.Copy(io.MultiWriter(f, h), src)
	if err != nil {
		return nil, fmt.Errorf("write scratch file: %w", err)
	}
	if n == 0 {
		return nil, apperror.Validation("audio file is empty").WithDetail("filename", filename)
	}
	if maxBytes > 0 && n > maxBytes {
		return nil, apperror.Newf(apperror.KindValidation, "audio file exceeds %d bytes", maxBytes).
			WithDetail("filename", filename)
	}
	if err := f.Sync(); err != nil {
		return nil, fmt.Errorf("sync scratch file: %w", err)
	}

	return &Clip{
		ID:       hex.EncodeToString(h.Sum(nil)),
		Path:     f.Name(),
		Filename: filename,
		Size:     n,
	}, nil
}

// TempPath reserves a fresh, empty path in scratch space with the given
// suffix. The returned cleanup removes whatever ends up at the path.
func (s *Scratch) TempPath(suffix string) (string, func(), error) {
	f, err := os.CreateTemp(s.dir, "work-*"+suffix)
	if err != nil {
		return "", nil, fmt.Errorf("create scratch file: %w", err)
	}
	path := f.Name()
	f.Close()
	return path, func() { os.Remove(path) }, nil
}
