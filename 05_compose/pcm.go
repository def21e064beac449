package compose

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Buffer is interleaved float PCM in [-1, 1]
type Buffer struct {
	SampleRate int
	Channels   int
	Data       []float32
}

func NewSilence(sampleRate, channels, frames int) *Buffer {
	if frames < 0 {
		frames = 0
	}
	return &Buffer{SampleRate: sampleRate, Channels: channels, Data: make([]float32, frames*channels)}
}

func (b *Buffer) Frames() int {
	if b == nil || b.Channels == 0 {
		return 0
	}
	return len(b.Data) / b.Channels
}

// Duration in seconds
func (b *Buffer) Duration() float64 {
	if b == nil || b.SampleRate == 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.SampleRate)
}

func (b *Buffer) sameFormat(o *Buffer) bool {
	return b.SampleRate == o.SampleRate && b.Channels == o.Channels
}

// FramesFor converts seconds to a whole frame count
func FramesFor(seconds float64, sampleRate int) int {
	return int(math.Round(seconds * float64(sampleRate)))
}

// Fit pads with silence or truncates to exactly frames
func (b *Buffer) Fit(frames int) *Buffer {
	out := NewSilence(b.SampleRate, b.Channels, frames)
	copy(out.Data, b.Data)
	return out
}

// Gain scales every sample in place
func (b *Buffer) Gain(g float64) {
	for i, v := range b.Data {
		b.Data[i] = float32(float64(v) * g)
	}
}

// Concat joins buffers of identical format back to back
func Concat(bufs ...*Buffer) (*Buffer, error) {
	if len(bufs) == 0 {
		return nil, errors.New("concat: no buffers")
	}
	first := bufs[0]
	total := 0
	for _, b := range bufs {
		if !b.sameFormat(first) {
			return nil, fmt.Errorf("concat: format %d Hz/%dch does not match %d Hz/%dch",
				b.SampleRate, b.Channels, first.SampleRate, first.Channels)
		}
		total += len(b.Data)
	}
	out := &Buffer{SampleRate: first.SampleRate, Channels: first.Channels, Data: make([]float32, 0, total)}
	for _, b := range bufs {
		out.Data = append(out.Data, b.Data...)
	}
	return out, nil
}

// Stretch plays b at rate factor and returns exactly frames frames.
// Output frame k reads input position k*factor with linear interpolation;
// positions past the end read silence.
func Stretch(b *Buffer, factor float64, frames int) *Buffer {
	out := NewSilence(b.SampleRate, b.Channels, frames)
	in := b.Frames()
	if in == 0 || factor <= 0 {
		return out
	}
	ch := b.Channels
	for k := 0; k < frames; k++ {
		pos := float64(k) * factor
		i := int(pos)
		if i >= in {
			break
		}
		frac := float32(pos - float64(i))
		next := i + 1
		if next >= in {
			next = i
		}
		for c := 0; c < ch; c++ {
			a := b.Data[i*ch+c]
			z := b.Data[next*ch+c]
			out.Data[k*ch+c] = a + (z-a)*frac
		}
	}
	return out
}

// Loop repeats whole copies of b back to back and trims to exactly frames
func Loop(b *Buffer, frames int) *Buffer {
	out := NewSilence(b.SampleRate, b.Channels, frames)
	if len(b.Data) == 0 {
		return out
	}
	for off := 0; off < len(out.Data); {
		off += copy(out.Data[off:], b.Data)
	}
	return out
}

// Mix sums b into a sample-wise, clipping to [-1, 1]. The result has a's length.
func Mix(a, b *Buffer) (*Buffer, error) {
	out := &Buffer{SampleRate: a.SampleRate, Channels: a.Channels, Data: make([]float32, len(a.Data))}
	copy(out.Data, a.Data)
	if b == nil {
		return out, nil
	}
	if !a.sameFormat(b) {
		return nil, fmt.Errorf("mix: format %d Hz/%dch does not match %d Hz/%dch",
			b.SampleRate, b.Channels, a.SampleRate, a.Channels)
	}
	for i := range out.Data {
		if i >= len(b.Data) {
			break
		}
		out.Data[i] = clip(out.Data[i] + b.Data[i])
	}
	return out, nil
}

func clip(v float32) float32 {
	switch {
	case v > 1:
		return 1
	case v < -1:
		return -1
	}
	return v
}

// Remix converts between mono and stereo
func (b *Buffer) Remix(channels int) (*Buffer, error) {
	switch {
	case b.Channels == channels:
		return b, nil
	case b.Channels == 1 && channels == 2:
		out := NewSilence(b.SampleRate, 2, b.Frames())
		for i, v := range b.Data {
			out.Data[2*i], out.Data[2*i+1] = v, v
		}
		return out, nil
	case b.Channels == 2 && channels == 1:
		out := NewSilence(b.SampleRate, 1, b.Frames())
		for i := range out.Data {
			out.Data[i] = (b.Data[2*i] + b.Data[2*i+1]) / 2
		}
		return out, nil
	}
	return nil, fmt.Errorf("remix: %d to %d channels not supported", b.Channels, channels)
}

// ReadWAV loads an integer PCM wav file
func ReadWAV(path string) (*Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("%s: not a valid wav file", path)
	}
	if d.WavAudioFormat != 1 && d.WavAudioFormat != 0xFFFE {
		return nil, fmt.Errorf("%s: wav format %d is not integer pcm", path, d.WavAudioFormat)
	}
	ib, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%s: read pcm: %w", path, err)
	}
	depth := ib.SourceBitDepth
	if depth == 0 {
		depth = int(d.BitDepth)
	}
	if depth < 8 || depth > 32 {
		return nil, fmt.Errorf("%s: unsupported bit depth %d", path, depth)
	}

	scale := float32(math.Pow(2, float64(depth-1)))
	out := &Buffer{
		SampleRate: ib.Format.SampleRate,
		Channels:   ib.Format.NumChannels,
		Data:       make([]float32, len(ib.Data)),
	}
	for i, v := range ib.Data {
		if depth == 8 {
			v -= 128 // 8-bit wav is unsigned
		}
		out.Data[i] = clip(float32(v) / scale)
	}
	if out.Channels <= 0 || out.SampleRate <= 0 {
		return nil, fmt.Errorf("%s: invalid format %d Hz/%dch", path, out.SampleRate, out.Channels)
	}
	return out, nil
}

// WriteWAV stores b as 16-bit PCM
func WriteWAV(path string, b *Buffer) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	enc := wav.NewEncoder(f, b.SampleRate, 16, b.Channels, 1)
	ib := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: b.Channels, SampleRate: b.SampleRate},
		Data:           make([]int, len(b.Data)),
		SourceBitDepth: 16,
	}
	for i, v := range b.Data {
		ib.Data[i] = int(math.Round(float64(clip(v)) * 32767))
	}
	if err := enc.Write(ib); err != nil {
		f.Close()
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("finalize wav: %w", err)
	}
	return f.Close()
}
