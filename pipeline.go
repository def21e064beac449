package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/samber/lo"
	"go.uber.org/zap"

	topics "shorts-pipeline/01_topics"
	script "shorts-pipeline/02_script"
	audio "shorts-pipeline/03_audio"
	visuals "shorts-pipeline/04_visuals"
	compose "shorts-pipeline/05_compose"
	thumbnail "shorts-pipeline/06_thumbnail"
	upload "shorts-pipeline/07_upload"
	history "shorts-pipeline/08_history"
	"shorts-pipeline/config"
	"shorts-pipeline/logging"
	"shorts-pipeline/types"
)

type flags struct {
	config string
	topic  string
	script string
	images string
	bgm    string
	style  string
	dryRun bool
}

func parseFlags() flags {
	var f flags
	flag.StringVar(&f.config, "config", "config.yaml", "path to config.yaml")
	flag.StringVar(&f.topic, "topic", "", "produce a single video about this topic")
	flag.StringVar(&f.script, "script", "", "narration script file (skips generation)")
	flag.StringVar(&f.images, "images", "", "directory of images to use instead of images.manual_dir")
	flag.StringVar(&f.bgm, "bgm", "", "background music file (overrides bgm.path)")
	flag.StringVar(&f.style, "style", "", "image style appended to generation prompts")
	flag.BoolVar(&f.dryRun, "dry-run", false, "select topics and scripts, then stop")
	flag.Parse()
	return f
}

// stages holds the per-run collaborators
type stages struct {
	cfg       *config.Config
	logger    *zap.Logger
	flags     flags
	script    *script.Writer
	audio     *audio.Generator
	visuals   *visuals.Collector
	engine    *compose.Engine
	thumbnail *thumbnail.Generator
	uploader  *upload.Uploader
	archiver  *upload.Archiver
	ledger    *history.Ledger
}

func main() {
	// Load .env (local dev only; CI uses secrets)
	_ = godotenv.Load()
	f := parseFlags()

	cfg, err := config.Load(f.config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(2)
	}
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(2)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, f, logger); err != nil {
		logger.Error("❌ pipeline failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, f flags, logger *zap.Logger) error {
	for _, dir := range []string{cfg.Paths.Videos, cfg.Paths.Subtitles, cfg.Paths.Thumbnails, cfg.Paths.Work, cfg.Paths.Logs} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create dir %s: %w", dir, err)
		}
	}

	s := &stages{cfg: cfg, logger: logger, flags: f}

	if cfg.Paths.HistoryDB != "" {
		ledger, err := history.Open(cfg.Paths.HistoryDB, logger)
		if err != nil {
			logger.Warn("history ledger unavailable, continuing without it", zap.Error(err))
		} else {
			s.ledger = ledger
			defer ledger.Close()
		}
	}

	var used topics.UsedTopics
	if s.ledger != nil {
		used = s.ledger
	}
	batch, err := topics.New(cfg, logger, nil, used).Run(ctx, f.topic)
	if err != nil {
		return fmt.Errorf("select topics: %w", err)
	}

	s.script = script.New(cfg, logger)
	s.audio = audio.New(cfg, logger)
	s.visuals = visuals.New(cfg, logger, nil)
	s.engine = compose.New(cfg, logger)
	s.thumbnail = thumbnail.New(cfg, logger)
	if cfg.Upload.YouTube.Enabled {
		s.uploader = upload.New(cfg, logger)
	}
	if cfg.Upload.Archive.Enabled {
		archiver, err := upload.NewArchiver(cfg.Upload.Archive, logger)
		if err != nil {
			logger.Warn("archive unavailable, continuing without it", zap.Error(err))
		} else {
			s.archiver = archiver
		}
	}

	logger.Info("🎬 shorts pipeline starting", zap.Int("topics", len(batch)), zap.Bool("dry_run", f.dryRun))

	var records []*types.RunRecord
	for i, c := range batch {
		if err := ctx.Err(); err != nil {
			return err
		}
		logger.Info(fmt.Sprintf("━━━ topic %d/%d ━━━", i+1, len(batch)), zap.String("topic", c.Title), zap.String("source", c.Source))
		records = append(records, s.runTopic(ctx, c.Title))
	}

	ok := lo.CountBy(records, func(r *types.RunRecord) bool { return r.Succeeded() })
	logger.Info("🏁 batch finished", zap.Int("succeeded", ok), zap.Int("failed", len(records)-ok))
	if !f.dryRun && ok == 0 {
		return errors.New("no video was produced")
	}
	return nil
}

// runTopic produces one video. Failures end the topic, never the batch.
func (s *stages) runTopic(ctx context.Context, topic string) *types.RunRecord {
	runID := uuid.NewString()[:8]
	logger := logging.WithRun(s.logger, runID, topic)
	rec := &types.RunRecord{
		RunID:     runID,
		Topic:     topic,
		Style:     s.flags.style,
		StartedAt: time.Now().UTC().Format(time.RFC3339),
	}

	if s.ledger != nil && !s.flags.dryRun {
		if err := s.ledger.Start(ctx, runID, topic); err != nil {
			logger.Warn("could not record run start", zap.Error(err))
		}
	}
	defer s.finish(ctx, rec, logger)

	runDir := filepath.Join(s.cfg.Paths.Work, "run_"+runID)
	if !s.cfg.Compose.KeepWork {
		defer os.RemoveAll(runDir)
	}

	// Script
	text, err := s.script.Run(ctx, topic, s.flags.script)
	if err != nil {
		rec.Error = fmt.Sprintf("script: %v", err)
		return rec
	}
	rec.Script = text
	if s.flags.dryRun {
		logger.Info("🧪 dry run, stopping after script", zap.Int("sentences", len(audio.SplitSentences(text))))
		return rec
	}

	// Audio
	segments, err := s.audio.Run(ctx, text, filepath.Join(runDir, "audio"))
	if err != nil {
		rec.Error = fmt.Sprintf("audio: %v", err)
		return rec
	}

	// Visuals
	slides, err := s.visuals.Run(ctx, visuals.Request{
		Topic:     topic,
		Style:     s.flags.style,
		Sentences: lo.Map(segments, func(seg types.NarrationSegment, _ int) string { return seg.Text }),
		ManualDir: s.flags.images,
		OutputDir: filepath.Join(runDir, "images"),
	})
	if err != nil {
		rec.Error = fmt.Sprintf("visuals: %v", err)
		return rec
	}
	rec.Images = lo.Map(slides, func(sl types.ImageSlide, _ int) string { return sl.Path })

	bgmPath := s.flags.bgm
	if bgmPath == "" {
		bgmPath = s.cfg.BGM.Path
	}
	rec.BGMPath = visuals.SelectBGM(bgmPath, s.cfg.BGM.DefaultCandidates, logger)
	font := visuals.ResolveFont(s.cfg.Subtitles, logger)

	// Compose
	composeCtx := ctx
	if timeout := s.cfg.Compose.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		composeCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	result, err := s.engine.Compose(composeCtx, types.Job{
		Topic:    topic,
		Segments: segments,
		Images:   slides,
		BGMPath:  rec.BGMPath,
		FontPath: font.Path,
		FontName: font.Family,
	})
	if err != nil {
		rec.Error = err.Error()
		return rec
	}
	rec.VideoFile = result.VideoPath
	rec.SubtitleFile = result.SubtitlePath
	rec.DurationSec = result.Duration
	rec.StretchFactor = result.Factor
	rec.SlideCount = result.SlideCount
	if degraded := compose.Degraded(result.Stages); len(degraded) > 0 {
		logger.Warn("video produced with degraded stages", zap.Strings("stages", degraded))
	}

	// Thumbnail
	thumb, err := s.thumbnail.Run(ctx, thumbnail.Request{
		Image:    thumbnailSource(result.Frames, s.cfg.Images.Placeholder),
		Title:    topic,
		Stem:     result.Stem,
		FontPath: font.Path,
		FontName: font.Family,
	})
	if err != nil {
		logger.Warn("⚠️ thumbnail failed, continuing without thumbnail", zap.Error(err))
	}
	rec.ThumbnailFile = thumb

	// Upload
	if s.uploader != nil {
		md := s.uploader.Metadata(topic, text)
		id, url, err := s.uploader.Run(ctx, result.VideoPath, md)
		if err != nil {
			logger.Warn("⚠️ upload failed, continuing without upload", zap.Error(err))
		} else {
			rec.YouTubeID, rec.YouTubeURL = id, url
			if _, err := upload.WriteUploadLog(s.cfg.Paths.Logs, id, url, result.VideoPath, md, time.Now()); err != nil {
				logger.Warn("could not write upload log", zap.Error(err))
			}
		}
	}
	if s.archiver != nil {
		key, err := s.archiver.Store(ctx, runID, result.VideoPath, result.SubtitlePath, rec.ThumbnailFile)
		if err != nil {
			logger.Warn("⚠️ archive failed, continuing without archive", zap.Error(err))
		}
		rec.ArchiveKey = key
	}

	logger.Info("✅ topic complete", zap.String("video", rec.VideoFile), zap.Float64("seconds", rec.DurationSec))
	return rec
}

// finish persists the record everywhere it is tracked
func (s *stages) finish(ctx context.Context, rec *types.RunRecord, logger *zap.Logger) {
	rec.CompletedAt = time.Now().UTC().Format(time.RFC3339)
	if rec.Error != "" {
		logger.Error("❌ topic failed", zap.String("error", rec.Error))
	}
	if s.flags.dryRun {
		return
	}

	// The parent context may already be cancelled; the ledger write must still land.
	ctx = context.WithoutCancel(ctx)
	if s.ledger != nil {
		if err := s.ledger.Finish(ctx, rec); err != nil {
			logger.Warn("could not record run", zap.Error(err))
		}
	}
	if rec.Succeeded() && s.cfg.Paths.CSVLog != "" {
		if err := history.AppendCSV(s.cfg.Paths.CSVLog, rec, time.Now()); err != nil {
			logger.Warn("could not append csv log", zap.Error(err))
		}
	}
	saveJSON(filepath.Join(s.cfg.Paths.Logs, fmt.Sprintf("run_%s.json", rec.RunID)), rec, logger)
}

// thumbnailSource picks the first real slide image, else the placeholder
func thumbnailSource(frames []compose.Frame, placeholder string) string {
	if f, ok := lo.Find(frames, func(f compose.Frame) bool { return !f.Substituted }); ok {
		return f.Source
	}
	return placeholder
}

func saveJSON(path string, v any, logger *zap.Logger) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		logger.Warn("could not marshal JSON", zap.String("path", path), zap.Error(err))
		return
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		logger.Warn("could not save JSON", zap.String("path", path), zap.Error(err))
	}
}
