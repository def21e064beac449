package visuals

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"shorts-pipeline/config"
	"shorts-pipeline/types"
)

var imageExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".webp": true}

// Collector gathers the still images for one topic
type Collector struct {
	cfg     *config.Config
	logger  *zap.Logger
	fetcher Fetcher
}

// New creates a Collector. A nil fetcher uses Pollinations.
func New(cfg *config.Config, logger *zap.Logger, fetcher Fetcher) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("visuals")
	if fetcher == nil {
		fetcher = NewPollinationsFetcher(cfg.Video.Width, cfg.Video.Height, cfg.Images.Model, logger)
	}
	return &Collector{cfg: cfg, logger: logger, fetcher: fetcher}
}

// Request describes the images wanted for one topic
type Request struct {
	Topic     string
	Style     string
	Sentences []string
	ManualDir string // overrides images.manual_dir when set
	OutputDir string // where generated images are written
}

// Run returns the ordered slides: manual images first, then generated ones
// up to images.count. A failed generation falls back to the placeholder
// path so the slot is kept.
func (c *Collector) Run(ctx context.Context, req Request) ([]types.ImageSlide, error) {
	dir := req.ManualDir
	if dir == "" {
		dir = c.cfg.Images.ManualDir
	}
	paths, err := ManualImages(dir, c.cfg.Images.Placeholder)
	if err != nil {
		c.logger.Warn("manual images unavailable, continuing without them", zap.String("dir", dir), zap.Error(err))
	}
	c.logger.Info("🖼️ manual images", zap.String("dir", dir), zap.Int("count", len(paths)))

	want := c.cfg.Images.Count - len(paths)
	if c.cfg.Images.Generate && want > 0 {
		if err := os.MkdirAll(req.OutputDir, 0755); err != nil {
			return nil, fmt.Errorf("create image dir: %w", err)
		}
		for i := 0; i < want; i++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			paths = append(paths, c.generate(ctx, req, i))
		}
	}

	slides := make([]types.ImageSlide, len(paths))
	for i, p := range paths {
		slides[i] = types.ImageSlide{Path: p, Ordinal: i}
	}
	return slides, nil
}

func (c *Collector) generate(ctx context.Context, req Request, i int) string {
	sentence := ""
	if len(req.Sentences) > 0 {
		sentence = req.Sentences[i%len(req.Sentences)]
	}
	prompt := BuildPrompt(req.Topic, req.Style, sentence)
	out := filepath.Join(req.OutputDir, fmt.Sprintf("generated_%03d.jpg", i))

	c.logger.Info("🎨 generating image", zap.Int("index", i), zap.String("prompt", truncate(prompt, 60)))
	if err := c.fetcher.Fetch(ctx, prompt, i*42+7, out); err != nil {
		c.logger.Warn("image generation failed, using placeholder",
			zap.Int("index", i), zap.String("placeholder", c.cfg.Images.Placeholder), zap.Error(err))
		return c.cfg.Images.Placeholder
	}
	return out
}

// ManualImages lists the usable images in dir, sorted by name and with
// duplicates (same absolute path) and the placeholder itself removed.
func ManualImages(dir, placeholder string) ([]string, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	skip := ""
	if placeholder != "" {
		skip, _ = filepath.Abs(placeholder)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		p := filepath.Join(dir, e.Name())
		if abs, _ := filepath.Abs(p); abs == skip {
			continue
		}
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return lo.UniqBy(paths, func(p string) string {
		abs, err := filepath.Abs(p)
		if err != nil {
			return p
		}
		return abs
	}), nil
}
