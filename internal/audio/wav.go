package audio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

// WAVInfo describes a PCM WAV file.
type WAVInfo struct {
	Channels      int
	SampleRate    int
	BitsPerSample int
	DataBytes     int64
	Duration      float64 // seconds
	RMS           float64 // 16-bit PCM only, 0 otherwise
}

var errNotWAV = errors.New("not a RIFF/WAVE file")

// InspectWAV reads the header of the WAV file at path and, for 16-bit
// PCM, the RMS level of its samples.
func InspectWAV(path string) (*WAVInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadWAV(bufio.NewReader(f))
}

// ReadWAV is InspectWAV over a reader.
func ReadWAV(r io.Reader) (*WAVInfo, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return nil, fmt.Errorf("read wav header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, errNotWAV
	}

	info := &WAVInfo{}
	haveFmt := false
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return nil, fmt.Errorf("read wav chunk: %w", err)
		}
		id := string(hdr[0:4])
		size := int64(binary.LittleEndian.Uint32(hdr[4:8]))

		switch id {
		case "fmt ":
			buf := make([]byte, size)
			if _, err := io.ReadFull(r, buf); err != nil {
				return nil, fmt.Errorf("read fmt chunk: %w", err)
			}
			if len(buf) < 16 {
				return nil, fmt.Errorf("fmt chunk too short: %d bytes", len(buf))
			}
			info.Channels = int(binary.LittleEndian.Uint16(buf[2:4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(buf[4:8]))
			info.BitsPerSample = int(binary.LittleEndian.Uint16(buf[14:16]))
			haveFmt = true

		case "data":
			if !haveFmt {
				return nil, errors.New("data chunk before fmt chunk")
			}
			// ffmpeg writes 0xFFFFFFFF as size when streaming to a pipe.
			if size == math.MaxUint32 {
				size = 0
			}
			info.DataBytes = size
			bytesPerSecond := info.SampleRate * info.Channels * info.BitsPerSample / 8
			if bytesPerSecond > 0 {
				info.Duration = float64(size) / float64(bytesPerSecond)
			}
			if info.BitsPerSample == 16 {
				rms, err := pcm16RMS(io.LimitReader(r, size))
				if err != nil {
					return nil, err
				}
				info.RMS = rms
			}
			return info, nil

		default:
			// Chunks are word aligned.
			if _, err := io.CopyN(io.Discard, r, size+size%2); err != nil {
				return nil, fmt.Errorf("skip %q chunk: %w", id, err)
			}
		}
	}
}

// pcm16RMS streams little-endian 16-bit samples and returns their root
// mean square.
func pcm16RMS(r io.Reader) (float64, error) {
	var sum float64
	var n int64
	buf := make([]byte, 32*1024)
	var carry []byte

	for {
		m, err := r.Read(buf)
		chunk := append(carry, buf[:m]...)
		i := 0
		for ; i+1 < len(chunk); i += 2 {
			s := float64(int16(binary.LittleEndian.Uint16(chunk[i : i+2])))
			sum += s * s
			n++
		}
		carry = append(carry[:0:0], chunk[i:]...)

		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("read wav samples: %w", err)
		}
	}
	if n == 0 {
		return 0, nil
	}
	return math.Sqrt(sum / float64(n)), nil
}
