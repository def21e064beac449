package audio

import (
	"context"
	"errors"
	"os"
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"shorts-pipeline/config"
)

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"猫は夜行性です。犬は違う！本当？", []string{"猫は夜行性です。", "犬は違う！", "本当？"}},
		{"Hello there. How are you?! Fine", []string{"Hello there.", "How are you?!", "Fine"}},
		{"line one\nline two\r\n\nline three", []string{"line one", "line two", "line three"}},
		{"It costs 3.5 dollars. Cheap.", []string{"It costs 3.5 dollars.", "Cheap."}},
		{"。。。\n  \n!?", nil},
		{"", nil},
	}
	for _, tt := range tests {
		if got := SplitSentences(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("SplitSentences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

type fakeSynth struct {
	fail  map[string]int // text -> number of failures before success (-1: always)
	calls map[string]int
}

func (f *fakeSynth) Synthesize(_ context.Context, text, outFile string) error {
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[text]++
	if n, ok := f.fail[text]; ok && (n < 0 || f.calls[text] <= n) {
		return errors.New("engine crashed")
	}
	return os.WriteFile(outFile, []byte(text), 0644)
}

// fakeProber reports one second per byte written by fakeSynth.
type fakeProber struct{}

func (fakeProber) Duration(_ context.Context, path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return float64(len(data)), nil
}

func TestRunProducesFailureSegments(t *testing.T) {
	cfg := config.Default()
	synth := &fakeSynth{fail: map[string]int{"bb.": -1, "ccc.": 2}}
	core, logs := observer.New(zapcore.WarnLevel)
	g := New(cfg, zap.New(core), WithSynthesizer(synth), WithProber(fakeProber{}), WithBackoff(0))

	segs, err := g.Run(context.Background(), "a. bb. ccc.", t.TempDir())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(segs) != 3 {
		t.Fatalf("len(segs) = %d, want 3", len(segs))
	}

	if !segs[0].Valid() || segs[0].Seconds() != 2 {
		t.Errorf("seg 0 = %+v, want valid 2s", segs[0])
	}
	if segs[1].Valid() || segs[1].AudioPath != "" || segs[1].Seconds() != 0 {
		t.Errorf("seg 1 = %+v, want failure segment", segs[1])
	}
	if !segs[2].Valid() || segs[2].Seconds() != 4 {
		t.Errorf("seg 2 = %+v, want valid after retries", segs[2])
	}
	for i, s := range segs {
		if s.Index != i {
			t.Errorf("seg %d index = %d", i, s.Index)
		}
	}

	if synth.calls["bb."] != cfg.TTS.Attempts {
		t.Errorf("attempts for failing sentence = %d, want %d", synth.calls["bb."], cfg.TTS.Attempts)
	}
	if logs.FilterMessage("TTS failed, sentence will be skipped").Len() != 1 {
		t.Errorf("warnings = %v", logs.All())
	}
}

func TestRunEmptyScript(t *testing.T) {
	g := New(config.Default(), nil, WithSynthesizer(&fakeSynth{}), WithProber(fakeProber{}))
	if _, err := g.Run(context.Background(), " \n。\n", t.TempDir()); !errors.Is(err, ErrNoSentences) {
		t.Fatalf("error = %v, want ErrNoSentences", err)
	}
}

func TestCommandArgs(t *testing.T) {
	tests := []struct {
		cmd  Command
		want string
	}{
		{Command{Command: "edge-tts", Voice: "ja-JP-NanamiNeural"}, "edge-tts --voice ja-JP-NanamiNeural --text hi --write-media o.mp3"},
		{Command{Command: "tts.py"}, "python3 tts.py --text hi --output o.mp3"},
		{Command{Command: "/bin/say"}, "/bin/say --text hi --output o.mp3"},
	}
	for _, tt := range tests {
		if got := strings.Join(tt.cmd.Args("hi", "o.mp3"), " "); got != tt.want {
			t.Errorf("Args() = %q, want %q", got, tt.want)
		}
	}
}

func TestResolveCommandPrefersEnv(t *testing.T) {
	t.Setenv("TTS_COMMAND", "my-tts")
	cmd, err := resolveCommand(config.TTSConfig{Command: "other", Voice: "v"})
	if err != nil {
		t.Fatal(err)
	}
	if cmd.Command != "my-tts" || cmd.Voice != "v" {
		t.Errorf("resolveCommand() = %+v", cmd)
	}
}
