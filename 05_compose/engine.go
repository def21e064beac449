// Package compose turns narration segments, still images and optional
// background music into one vertical video with burned-in captions.
//
// The visual timeline is authoritative: its duration (slides x image
// duration) fixes the narration stretch, the music length and the encode
// length. One Normalization value drives both the narration audio and the
// subtitle cues.
package compose

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"shorts-pipeline/config"
	"shorts-pipeline/types"
)

// Engine runs one composition at a time. It holds no per-run state.
type Engine struct {
	cfg     *config.Config
	logger  *zap.Logger
	decoder Decoder
	encoder Encoder
	now     func() time.Time
}

type Option func(*Engine)

func WithDecoder(d Decoder) Option { return func(e *Engine) { e.decoder = d } }

func WithEncoder(enc Encoder) Option { return func(e *Engine) { e.encoder = enc } }

// WithClock overrides the clock used for output names
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// New creates an Engine backed by ffmpeg unless overridden by opts
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{cfg: cfg, logger: logger.Named("compose"), now: time.Now}
	if cfg != nil {
		e.decoder = FFmpegDecoder{Bin: cfg.FFmpeg.Path}
		e.encoder = &FFmpegEncoder{Bin: cfg.FFmpeg.Path, Video: cfg.Video, Logger: e.logger}
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Result describes a finished video
type Result struct {
	VideoPath    string              `json:"video_path"`
	SubtitlePath string              `json:"subtitle_path,omitempty"`
	Stem         string              `json:"stem"`
	Duration     float64             `json:"duration"`
	Factor       float64             `json:"factor"`
	SlideCount   int                 `json:"slide_count"`
	SegmentCount int                 `json:"segment_count"`
	HasBGM       bool                `json:"has_bgm"`
	Frames       []Frame             `json:"frames"`
	Cues         []types.SubtitleCue `json:"cues"`
	Stages       []StageReport       `json:"stages"`
}

// Compose builds the video for job. On failure it returns a *FatalError and
// leaves no output file behind.
func (e *Engine) Compose(ctx context.Context, job types.Job) (*Result, error) {
	if e.cfg == nil || strings.TrimSpace(job.Topic) == "" {
		return nil, fatal("validate", ErrInvalidJob)
	}
	if e.decoder == nil || e.encoder == nil {
		return nil, fatal("validate", fmt.Errorf("%w: missing decoder or encoder", ErrInvalidJob))
	}
	if err := e.cfg.Validate(); err != nil {
		return nil, fatal("validate", fmt.Errorf("%w: %v", ErrInvalidJob, err))
	}
	cfg := e.cfg
	log := e.logger.With(zap.String("topic", job.Topic))
	started := e.now()
	log.Info("🎬 composition started", zap.Int("images", len(job.Images)), zap.Int("segments", len(job.Segments)))

	scope := NewScope(log)
	defer scope.Close()

	if err := os.MkdirAll(cfg.Paths.Work, 0755); err != nil {
		return nil, fatal("prepare", err)
	}
	workDir, err := os.MkdirTemp(cfg.Paths.Work, "compose-")
	if err != nil {
		return nil, fatal("prepare", err)
	}
	if !cfg.Compose.KeepWork {
		scope.AcquireDir(workDir)
	}

	var stages reports
	res := &Result{Stem: OutputStem(started, job.Topic, cfg.Video.MaxNameLength)}

	// Visual timeline; colours were checked by Validate
	bg, _ := config.ParseColor(cfg.Video.BackgroundColor)
	tl, err := BuildSlides(job.Images, SlideOptions{
		Width:       cfg.Video.Width,
		Height:      cfg.Video.Height,
		Duration:    cfg.Video.ImageDuration,
		Background:  bg,
		Placeholder: cfg.Images.Placeholder,
	}, workDir, scope, log.Named("slides"))
	if err != nil {
		return nil, fatal("slides", err)
	}
	target := tl.Duration()
	if tl.Substituted > 0 || tl.Dropped > 0 {
		stages.add("slides", OutcomeDegraded, "%d slides, %d substituted, %d dropped", len(tl.Frames), tl.Substituted, tl.Dropped)
	} else {
		stages.add("slides", OutcomeOK, "%d slides", len(tl.Frames))
	}
	log.Info("🖼️ visual timeline ready", zap.Int("slides", len(tl.Frames)), zap.Float64("duration", target))

	// Narration
	sr, ch := cfg.Audio.SampleRate, cfg.Audio.Channels
	clips := LoadNarration(ctx, e.decoder, job.Segments, sr, ch, log.Named("narration"))
	norm, err := Normalize(lo.Map(clips, func(c Clip, _ int) types.NarrationSegment { return c.Segment }), target)
	if err != nil {
		return nil, fatal("narration", err)
	}
	narration, err := BuildNarration(clips, norm, sr, ch)
	if err != nil {
		return nil, fatal("narration", fmt.Errorf("%w: %v", ErrNoNarration, err))
	}
	if n := len(norm.Segments); n < len(job.Segments) {
		stages.add("narration", OutcomeDegraded, "%d of %d segments, factor %.4f", n, len(job.Segments), norm.Factor)
	} else {
		stages.add("narration", OutcomeOK, "%d segments, factor %.4f", n, norm.Factor)
	}
	log.Info("🎙️ narration normalized",
		zap.Float64("raw", norm.Raw), zap.Float64("target", norm.Target), zap.Float64("factor", norm.Factor))

	// Subtitles
	cues := DeriveCues(norm)
	workSRT := ""
	if !cfg.Subtitles.Enabled {
		stages.add("subtitles", OutcomeSkipped, "disabled")
	} else {
		path := filepath.Join(workDir, "captions.srt")
		if n, err := WriteSRT(path, cues); err != nil {
			log.Warn("subtitle track unavailable, continuing without subtitles", zap.Error(err))
			stages.add("subtitles", OutcomeDegraded, "%v", err)
		} else {
			workSRT = path
			stages.add("subtitles", OutcomeOK, "%d cues", n)
		}
	}

	// Background music
	bgm, err := LoadBGM(ctx, e.decoder, job.BGMPath, cfg.BGM.Gain, FramesFor(target, sr), sr, ch)
	switch {
	case errors.Is(err, errNoBGM):
		log.Info("no background music, narration only")
		stages.add("bgm", OutcomeSkipped, "none configured")
	case err != nil:
		log.Warn("background music unavailable, continuing without it", zap.String("path", job.BGMPath), zap.Error(err))
		stages.add("bgm", OutcomeDegraded, "%v", err)
	default:
		stages.add("bgm", OutcomeOK, "%s at gain %.2f", filepath.Base(job.BGMPath), cfg.BGM.Gain)
	}

	// Audio mix
	mixed, err := Mix(narration, bgm)
	if err != nil {
		return nil, fatal("mix", fmt.Errorf("%w: %v", ErrEncode, err))
	}
	mixPath := filepath.Join(workDir, "mix.wav")
	if err := WriteWAV(mixPath, mixed); err != nil {
		return nil, fatal("mix", fmt.Errorf("%w: %v", ErrEncode, err))
	}
	stages.add("mix", OutcomeOK, "%.3fs", mixed.Duration())

	// Encode
	videoPath, err := e.render(ctx, RenderInput{
		Frames:        lo.Map(tl.Frames, func(f Frame, _ int) string { return f.Path }),
		SlideDuration: tl.SlideDuration,
		Duration:      target,
		AudioPath:     mixPath,
		SubtitlePath:  workSRT,
		Style:         e.style(job),
		WorkDir:       workDir,
	}, res.Stem)
	if err != nil {
		return nil, fatal("render", err)
	}
	stages.add("render", OutcomeOK, "%s", filepath.Base(videoPath))

	// Publish the subtitle file next to the video
	subtitlePath := ""
	if workSRT != "" {
		dst := filepath.Join(cfg.Paths.Subtitles, res.Stem+".srt")
		if err := copyFile(workSRT, dst); err != nil {
			log.Warn("could not save subtitle file", zap.String("path", dst), zap.Error(err))
			stages.add("subtitle_file", OutcomeDegraded, "%v", err)
		} else {
			subtitlePath = dst
		}
	}

	res.VideoPath = videoPath
	res.SubtitlePath = subtitlePath
	res.Duration = target
	res.Factor = norm.Factor
	res.SlideCount = len(tl.Frames)
	res.SegmentCount = len(norm.Segments)
	res.HasBGM = bgm != nil
	res.Frames = tl.Frames
	res.Cues = cues
	res.Stages = stages

	log.Info("✅ composition finished",
		zap.String("video", videoPath),
		zap.Float64("duration", target),
		zap.Duration("elapsed", time.Since(started)),
		zap.Strings("degraded", Degraded(stages)))
	return res, nil
}

// render encodes to a partial file and renames it into place only once the
// encoder succeeded.
func (e *Engine) render(ctx context.Context, in RenderInput, stem string) (string, error) {
	if err := os.MkdirAll(e.cfg.Paths.Videos, 0755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncode, err)
	}
	final := filepath.Join(e.cfg.Paths.Videos, stem+".mp4")
	partial := filepath.Join(e.cfg.Paths.Videos, stem+".part.mp4")
	in.OutputPath = partial

	if err := e.encoder.Encode(ctx, in); err != nil {
		os.Remove(partial)
		return "", fmt.Errorf("%w: %w", ErrEncode, err)
	}
	info, err := os.Stat(partial)
	if err != nil || info.Size() == 0 {
		os.Remove(partial)
		return "", fmt.Errorf("%w: encoder produced no output", ErrEncode)
	}
	if err := os.Rename(partial, final); err != nil {
		os.Remove(partial)
		return "", fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return final, nil
}

func (e *Engine) style(job types.Job) SubtitleStyle {
	s := e.cfg.Subtitles
	// colours were checked by Validate
	fg, _ := config.ParseColor(s.Color)
	stroke, _ := config.ParseColor(s.StrokeColor)
	style := SubtitleStyle{
		FontName:      job.FontName,
		FontSize:      s.FontSize,
		Color:         fg,
		StrokeColor:   stroke,
		StrokeWidth:   s.StrokeWidth,
		PositionRatio: s.PositionRatio,
	}
	if style.FontName == "" {
		style.FontName = s.FallbackFont
	}
	if job.FontPath != "" {
		style.FontsDir = filepath.Dir(job.FontPath)
	}
	return style
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
