package compose

import (
	"math"
	"path/filepath"
	"testing"
)

func ramp(frames, sampleRate, channels int) *Buffer {
	b := NewSilence(sampleRate, channels, frames)
	for i := range b.Data {
		b.Data[i] = float32(i%97+1) / 100
	}
	return b
}

func sine(seconds float64, sampleRate, channels int, hz, amp float64) *Buffer {
	frames := FramesFor(seconds, sampleRate)
	b := NewSilence(sampleRate, channels, frames)
	for k := 0; k < frames; k++ {
		v := float32(amp * math.Sin(2*math.Pi*hz*float64(k)/float64(sampleRate)))
		for c := 0; c < channels; c++ {
			b.Data[k*channels+c] = v
		}
	}
	return b
}

func TestStretchProducesExactFrameCount(t *testing.T) {
	src := ramp(10*8000, 8000, 1)
	factor := 10.0 / 15.0
	out := Stretch(src, factor, FramesFor(15, 8000))

	if got, want := out.Frames(), 15*8000; got != want {
		t.Fatalf("Frames() = %d, want %d", got, want)
	}
	if got := out.Duration(); got != 15 {
		t.Errorf("Duration() = %v, want 15", got)
	}
	// The last output frame still reads inside the source.
	if out.Data[len(out.Data)-1] == 0 {
		t.Error("tail of stretched track is silent")
	}
}

func TestStretchIdentity(t *testing.T) {
	src := ramp(1000, 8000, 2)
	out := Stretch(src, 1, src.Frames())
	for i := range src.Data {
		if out.Data[i] != src.Data[i] {
			t.Fatalf("sample %d = %v, want %v", i, out.Data[i], src.Data[i])
		}
	}
}

func TestLoopIsSeamless(t *testing.T) {
	// 3 s of music looped to 15 s
	sr := 8000
	src := sine(3, sr, 1, 220, 0.5)
	out := Loop(src, FramesFor(15, sr))

	if got, want := out.Frames(), 15*sr; got != want {
		t.Fatalf("Frames() = %d, want %d", got, want)
	}
	n := src.Frames()
	for seam := n; seam < out.Frames(); seam += n {
		for k := -2; k < 2; k++ {
			if out.Data[seam+k] != src.Data[(seam+k)%n] {
				t.Fatalf("sample at seam %d%+d does not match source", seam, k)
			}
		}
	}
	if run := longestSilentRun(out.Data); run > 2 {
		t.Errorf("longest silent run = %d samples, want <= 2", run)
	}
}

func TestLoopTrimsLongSource(t *testing.T) {
	src := ramp(20*8000, 8000, 1)
	out := Loop(src, 15*8000)
	if out.Frames() != 15*8000 {
		t.Fatalf("Frames() = %d, want %d", out.Frames(), 15*8000)
	}
	if out.Data[100] != src.Data[100] {
		t.Error("trimmed track does not start at the beginning of the source")
	}
}

func longestSilentRun(data []float32) int {
	longest, cur := 0, 0
	for _, v := range data {
		if v == 0 {
			cur++
			if cur > longest {
				longest = cur
			}
		} else {
			cur = 0
		}
	}
	return longest
}

func TestMixClipsAndKeepsLength(t *testing.T) {
	a := &Buffer{SampleRate: 8000, Channels: 1, Data: []float32{0.9, -0.9, 0.1, 0.2}}
	b := &Buffer{SampleRate: 8000, Channels: 1, Data: []float32{0.5, -0.5, 0.1}}

	out, err := Mix(a, b)
	if err != nil {
		t.Fatalf("Mix() error = %v", err)
	}
	want := []float32{1, -1, 0.2, 0.2}
	for i := range want {
		if math.Abs(float64(out.Data[i]-want[i])) > 1e-6 {
			t.Errorf("sample %d = %v, want %v", i, out.Data[i], want[i])
		}
	}

	if _, err := Mix(a, &Buffer{SampleRate: 44100, Channels: 1}); err == nil {
		t.Error("Mix() with mismatched rate = nil error")
	}
}

func TestConcatRejectsMixedFormats(t *testing.T) {
	if _, err := Concat(NewSilence(8000, 1, 10), NewSilence(8000, 2, 10)); err == nil {
		t.Fatal("Concat() = nil error")
	}
	out, err := Concat(NewSilence(8000, 2, 10), NewSilence(8000, 2, 5))
	if err != nil {
		t.Fatal(err)
	}
	if out.Frames() != 15 {
		t.Errorf("Frames() = %d, want 15", out.Frames())
	}
}

func TestFitPadsAndTrims(t *testing.T) {
	src := ramp(100, 8000, 2)
	if got := src.Fit(150).Frames(); got != 150 {
		t.Errorf("padded Frames() = %d, want 150", got)
	}
	short := src.Fit(40)
	if short.Frames() != 40 || short.Data[79] != src.Data[79] {
		t.Errorf("trimmed buffer wrong: %d frames", short.Frames())
	}
}

func TestRemix(t *testing.T) {
	mono := &Buffer{SampleRate: 8000, Channels: 1, Data: []float32{0.25, -0.5}}
	st, err := mono.Remix(2)
	if err != nil {
		t.Fatal(err)
	}
	if want := []float32{0.25, 0.25, -0.5, -0.5}; len(st.Data) != 4 || st.Data[1] != want[1] || st.Data[3] != want[3] {
		t.Errorf("stereo = %v, want %v", st.Data, want)
	}
	back, err := st.Remix(1)
	if err != nil {
		t.Fatal(err)
	}
	if back.Data[0] != 0.25 || back.Data[1] != -0.5 {
		t.Errorf("mono = %v", back.Data)
	}
}

func TestWAVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	src := sine(0.5, 8000, 2, 440, 0.8)
	if err := WriteWAV(path, src); err != nil {
		t.Fatalf("WriteWAV() error = %v", err)
	}
	got, err := ReadWAV(path)
	if err != nil {
		t.Fatalf("ReadWAV() error = %v", err)
	}
	if got.SampleRate != 8000 || got.Channels != 2 || got.Frames() != src.Frames() {
		t.Fatalf("format = %d Hz/%dch/%d frames, want 8000/2/%d", got.SampleRate, got.Channels, got.Frames(), src.Frames())
	}
	for i := range src.Data {
		if math.Abs(float64(got.Data[i]-src.Data[i])) > 1.0/16000 {
			t.Fatalf("sample %d = %v, want %v", i, got.Data[i], src.Data[i])
		}
	}
}
