package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"shorts-pipeline/config"
	"shorts-pipeline/types"
)

// ErrNoSentences is returned when the script splits into nothing speakable
var ErrNoSentences = errors.New("script has no sentences")

// Synthesizer turns one sentence into an audio file
type Synthesizer interface {
	Synthesize(ctx context.Context, text, outFile string) error
}

// Prober measures an audio file's duration in seconds
type Prober interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// Generator handles per-sentence TTS
type Generator struct {
	cfg     *config.Config
	logger  *zap.Logger
	synth   Synthesizer
	prober  Prober
	backoff time.Duration
}

// Option customises a Generator
type Option func(*Generator)

// WithSynthesizer replaces the command-line TTS engine
func WithSynthesizer(s Synthesizer) Option { return func(g *Generator) { g.synth = s } }

// WithProber replaces ffprobe
func WithProber(p Prober) Option { return func(g *Generator) { g.prober = p } }

// WithBackoff sets the base delay between TTS attempts
func WithBackoff(d time.Duration) Option { return func(g *Generator) { g.backoff = d } }

// New creates a new Generator
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Generator{
		cfg:     cfg,
		logger:  logger.Named("audio"),
		prober:  FFprobe{Bin: cfg.FFmpeg.ProbePath},
		backoff: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Run synthesizes every sentence of text into outputDir. A sentence whose
// synthesis or measurement fails yields a segment with no audio and zero
// duration; only an empty script is an error.
func (g *Generator) Run(ctx context.Context, text, outputDir string) ([]types.NarrationSegment, error) {
	sentences := SplitSentences(text)
	if len(sentences) == 0 {
		return nil, ErrNoSentences
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("create audio dir: %w", err)
	}

	synth := g.synth
	if synth == nil {
		cmd, err := resolveCommand(g.cfg.TTS)
		if err != nil {
			return nil, err
		}
		g.logger.Info("🎙️ using TTS engine", zap.String("command", cmd.Command), zap.String("voice", cmd.Voice))
		synth = cmd
	}

	segments := make([]types.NarrationSegment, 0, len(sentences))
	ok := 0
	for i, sentence := range sentences {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		seg := types.NarrationSegment{Index: i, Text: sentence, Duration: types.Seconds(0)}
		outFile := filepath.Join(outputDir, fmt.Sprintf("sentence_%03d.mp3", i))

		if err := g.synthesize(ctx, synth, sentence, outFile); err != nil {
			g.logger.Warn("TTS failed, sentence will be skipped",
				zap.Int("index", i), zap.String("text", sentence), zap.Error(err))
			segments = append(segments, seg)
			continue
		}
		dur, err := g.prober.Duration(ctx, outFile)
		if err != nil || dur <= 0 {
			g.logger.Warn("could not measure sentence audio, sentence will be skipped",
				zap.Int("index", i), zap.String("path", outFile), zap.Error(err))
			segments = append(segments, seg)
			continue
		}

		seg.AudioPath = outFile
		seg.Duration = types.Seconds(dur)
		segments = append(segments, seg)
		ok++
		g.logger.Debug("sentence ready", zap.Int("index", i), zap.Float64("seconds", dur))
	}

	g.logger.Info("✅ narration synthesized", zap.Int("sentences", len(sentences)), zap.Int("ok", ok))
	return segments, nil
}

func (g *Generator) synthesize(ctx context.Context, synth Synthesizer, text, outFile string) error {
	attempts := max(g.cfg.TTS.Attempts, 1)
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = synth.Synthesize(ctx, text, outFile); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		g.logger.Warn("TTS attempt failed, retrying", zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * g.backoff):
		}
	}
	return err
}

// Command runs an external TTS program. "edge-tts" gets its own argument
// shape; a .py path runs under python3; anything else receives
// --text/--output.
type Command struct {
	Command string
	Voice   string
}

func resolveCommand(cfg config.TTSConfig) (Command, error) {
	cmd := strings.TrimSpace(os.Getenv("TTS_COMMAND"))
	if cmd == "" {
		cmd = strings.TrimSpace(cfg.Command)
	}
	if cmd == "" {
		if _, err := exec.LookPath("edge-tts"); err != nil {
			return Command{}, fmt.Errorf("no TTS engine found. Set TTS_COMMAND in .env or install edge-tts: pip install edge-tts")
		}
		cmd = "edge-tts"
	}
	return Command{Command: cmd, Voice: cfg.Voice}, nil
}

// Args returns the argv for one sentence
func (c Command) Args(text, outFile string) []string {
	switch {
	case c.Command == "edge-tts":
		args := []string{"edge-tts"}
		if c.Voice != "" {
			args = append(args, "--voice", c.Voice)
		}
		return append(args, "--text", text, "--write-media", outFile)
	case strings.HasSuffix(c.Command, ".py"):
		return []string{"python3", c.Command, "--text", text, "--output", outFile}
	default:
		return []string{c.Command, "--text", text, "--output", outFile}
	}
}

// Synthesize runs the command once
func (c Command) Synthesize(ctx context.Context, text, outFile string) error {
	args := c.Args(text, outFile)
	out, err := exec.CommandContext(ctx, args[0], args[1:]...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", args[0], err, lastLine(string(out)))
	}
	if fi, err := os.Stat(outFile); err != nil || fi.Size() == 0 {
		return fmt.Errorf("%s produced no audio", args[0])
	}
	return nil
}

// FFprobe measures durations with ffprobe
type FFprobe struct {
	Bin string
}

// Duration uses ffprobe to get the container duration in seconds
func (p FFprobe) Duration(ctx context.Context, path string) (float64, error) {
	bin := p.Bin
	if bin == "" {
		bin = "ffprobe"
	}
	out, err := exec.CommandContext(ctx, bin,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	).Output()
	if err != nil {
		return 0, err
	}
	var dur float64
	_, err = fmt.Sscanf(strings.TrimSpace(string(out)), "%f", &dur)
	return dur, err
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
