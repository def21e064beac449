package compose

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os/exec"
	"path/filepath"
	"strings"
)

const maxStderrBytes = 4096

// Decoder turns any audio file into PCM of the requested format
type Decoder interface {
	Decode(ctx context.Context, path string, sampleRate, channels int) (*Buffer, error)
}

// FFmpegDecoder reads matching wav files directly and shells out to ffmpeg
// for everything else.
type FFmpegDecoder struct {
	Bin string
}

func (d FFmpegDecoder) Decode(ctx context.Context, path string, sampleRate, channels int) (*Buffer, error) {
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		if b, err := ReadWAV(path); err == nil && b.SampleRate == sampleRate {
			if b, err := b.Remix(channels); err == nil {
				return b, nil
			}
		}
	}

	var stdout bytes.Buffer
	err := runFFmpeg(ctx, d.bin(), &stdout,
		"-nostdin", "-v", "error",
		"-i", path,
		"-vn",
		"-ac", fmt.Sprint(channels),
		"-ar", fmt.Sprint(sampleRate),
		"-f", "f32le",
		"-acodec", "pcm_f32le",
		"pipe:1",
	)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	raw := stdout.Bytes()
	frameBytes := 4 * channels
	raw = raw[:len(raw)-len(raw)%frameBytes]
	out := &Buffer{SampleRate: sampleRate, Channels: channels, Data: make([]float32, len(raw)/4)}
	for i := range out.Data {
		v := math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		out.Data[i] = clip(v)
	}
	if len(out.Data) == 0 {
		return nil, fmt.Errorf("decode %s: no audio samples", path)
	}
	return out, nil
}

func (d FFmpegDecoder) bin() string {
	if d.Bin == "" {
		return "ffmpeg"
	}
	return d.Bin
}

// runFFmpeg runs bin with args, keeping the stderr tail for the error message
func runFFmpeg(ctx context.Context, bin string, stdout io.Writer, args ...string) error {
	var stderrBuf bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stderr = &limitedWriter{w: &stderrBuf, limit: maxStderrBytes}
	if stdout != nil {
		cmd.Stdout = stdout
	} else {
		cmd.Stdout = io.Discard
	}

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if tail := strings.TrimSpace(stderrBuf.String()); tail != "" {
			return fmt.Errorf("%s: %w: %s", bin, err, lastLine(tail))
		}
		return fmt.Errorf("%s: %w", bin, err)
	}
	return nil
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// limitedWriter keeps only the last limit bytes written
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		b := lw.w.Bytes()
		tail := append([]byte(nil), b[len(b)-lw.limit:]...)
		lw.w.Reset()
		lw.w.Write(tail)
	}
	return n, nil
}
