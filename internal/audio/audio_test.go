package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"lukechampine.com/blake3"

	"github.com/lexiqai/speech-gateway/internal/apperror"
)

func TestCheckFormat(t *testing.T) {
	tests := []struct {
		filename string
		ok       bool
	}{
		{"call.m4a", true},
		{"CALL.MP3", true},
		{"a.wav", true},
		{"a.flac", true},
		{"a.ogg", true},
		{"a.webm", true},
		{"noext", true},
		{"notes.txt", false},
		{"video.mp4", false},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			err := CheckFormat(tt.filename)
			if tt.ok && err != nil {
				t.Errorf("Expected %q to be accepted, got %v", tt.filename, err)
			}
			if !tt.ok && apperror.KindOf(err) != apperror.KindValidation {
				t.Errorf("Expected VALIDATION for %q, got %v", tt.filename, err)
			}
		})
	}
}

func TestSuffix(t *testing.T) {
	if s := Suffix("x.MP3"); s != ".mp3" {
		t.Errorf("Expected .mp3, got %s", s)
	}
	if s := Suffix(""); s != DefaultSuffix {
		t.Errorf("Expected default suffix, got %s", s)
	}
}

func TestScratch_Save(t *testing.T) {
	s, err := NewScratch(t.TempDir())
	if err != nil {
		t.Fatalf("NewScratch() failed: %v", err)
	}

	content := []byte("some audio bytes")
	clip, err := s.Save(bytes.NewReader(content), "call.wav", 1024)
	if err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	defer clip.Remove()

	sum := blake3.Sum256(content)
	if clip.ID != hex.EncodeToString(sum[:]) {
		t.Errorf("Expected blake3 id, got %s", clip.ID)
	}
	if clip.Size != int64(len(content)) || clip.Filename != "call.wav" {
		t.Errorf("Unexpected clip: %+v", clip)
	}
	if !strings.HasSuffix(clip.Path, ".wav") {
		t.Errorf("Expected .wav suffix, got %s", clip.Path)
	}
	data, err := os.ReadFile(clip.Path)
	if err != nil || !bytes.Equal(data, content) {
		t.Errorf("Expected file content to match upload, got %q, %v", data, err)
	}

	if err := clip.Remove(); err != nil {
		t.Errorf("Remove() failed: %v", err)
	}
	if _, err := os.Stat(clip.Path); !os.IsNotExist(err) {
		t.Error("Expected file to be removed")
	}
	if err := clip.Remove(); err != nil {
		t.Errorf("Expected second Remove() to be a no-op, got %v", err)
	}
}

func TestScratch_SaveRejectsAndCleansUp(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewScratch(dir)

	if _, err := s.Save(bytes.NewReader(nil), "empty.m4a", 1024); apperror.KindOf(err) != apperror.KindValidation {
		t.Errorf("Expected VALIDATION for empty upload, got %v", err)
	}
	if _, err := s.Save(bytes.NewReader(make([]byte, 11)), "big.m4a", 10); apperror.KindOf(err) != apperror.KindValidation {
		t.Errorf("Expected VALIDATION for oversized upload, got %v", err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("Expected no leftover scratch files, got %d", len(entries))
	}
}

func TestScratch_TempPath(t *testing.T) {
	s, _ := NewScratch(t.TempDir())
	path, cleanup, err := s.TempPath(".wav")
	if err != nil {
		t.Fatalf("TempPath() failed: %v", err)
	}
	if filepath.Dir(path) != s.Dir() {
		t.Errorf("Expected path inside scratch dir, got %s", path)
	}
	cleanup()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Expected cleanup to remove the file")
	}
}

func TestConverter_MissingBinary(t *testing.T) {
	dir := t.TempDir()
	s, _ := NewScratch(dir)
	c := NewConverter(filepath.Join(dir, "no-such-ffmpeg"), s)

	if _, _, err := c.ToWAV(context.Background(), "in.m4a"); err == nil {
		t.Fatal("Expected error for missing ffmpeg")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("Expected failed conversion to leave nothing behind, got %d files", len(entries))
	}
}

func buildWAV(sampleRate int, samples []int16, extraChunk bool) []byte {
	var data bytes.Buffer
	for _, s := range samples {
		_ = binary.Write(&data, binary.LittleEndian, s)
	}

	var body bytes.Buffer
	body.WriteString("WAVE")
	body.WriteString("fmt ")
	_ = binary.Write(&body, binary.LittleEndian, uint32(16))
	_ = binary.Write(&body, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(&body, binary.LittleEndian, uint16(1)) // mono
	_ = binary.Write(&body, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(&body, binary.LittleEndian, uint32(sampleRate*2))
	_ = binary.Write(&body, binary.LittleEndian, uint16(2))
	_ = binary.Write(&body, binary.LittleEndian, uint16(16))
	if extraChunk {
		body.WriteString("LIST")
		_ = binary.Write(&body, binary.LittleEndian, uint32(3))
		body.Write([]byte{'a', 'b', 'c', 0})
	}
	body.WriteString("data")
	_ = binary.Write(&body, binary.LittleEndian, uint32(data.Len()))
	body.Write(data.Bytes())

	var out bytes.Buffer
	out.WriteString("RIFF")
	_ = binary.Write(&out, binary.LittleEndian, uint32(body.Len()))
	out.Write(body.Bytes())
	return out.Bytes()
}

func TestReadWAV(t *testing.T) {
	samples := make([]int16, 16000)
	for i := range samples {
		if i%2 == 0 {
			samples[i] = 1000
		} else {
			samples[i] = -1000
		}
	}

	info, err := ReadWAV(bytes.NewReader(buildWAV(16000, samples, true)))
	if err != nil {
		t.Fatalf("ReadWAV() failed: %v", err)
	}
	if info.Channels != 1 || info.SampleRate != 16000 || info.BitsPerSample != 16 {
		t.Errorf("Unexpected format: %+v", info)
	}
	if math.Abs(info.Duration-1.0) > 1e-9 {
		t.Errorf("Expected 1s duration, got %f", info.Duration)
	}
	if math.Abs(info.RMS-1000) > 1e-6 {
		t.Errorf("Expected RMS 1000, got %f", info.RMS)
	}
}

func TestReadWAV_Silence(t *testing.T) {
	info, err := ReadWAV(bytes.NewReader(buildWAV(8000, make([]int16, 4000), false)))
	if err != nil {
		t.Fatalf("ReadWAV() failed: %v", err)
	}
	if info.RMS != 0 {
		t.Errorf("Expected silent RMS 0, got %f", info.RMS)
	}
	if math.Abs(info.Duration-0.5) > 1e-9 {
		t.Errorf("Expected 0.5s duration, got %f", info.Duration)
	}
}

func TestReadWAV_NotWAV(t *testing.T) {
	if _, err := ReadWAV(strings.NewReader("ID3\x03\x00\x00\x00\x00\x00\x00\x00\x00")); err == nil {
		t.Error("Expected error for non-WAV input")
	}
}

func TestInspectWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.wav")
	if err := os.WriteFile(path, buildWAV(16000, make([]int16, 8000), false), 0o600); err != nil {
		t.Fatal(err)
	}
	info, err := InspectWAV(path)
	if err != nil {
		t.Fatalf("InspectWAV() failed: %v", err)
	}
	if math.Abs(info.Duration-0.5) > 1e-9 {
		t.Errorf("Expected 0.5s, got %f", info.Duration)
	}
}
