package thumbnail

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"shorts-pipeline/config"
)

// runeWrap is the line width for the title, in runes
const runeWrap = 12

// Generator draws the title over an image with ffmpeg
type Generator struct {
	cfg    *config.Config
	logger *zap.Logger
}

// New creates a new thumbnail Generator
func New(cfg *config.Config, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{cfg: cfg, logger: logger.Named("thumbnail")}
}

// Request is one thumbnail to draw
type Request struct {
	Image    string // source still, any size
	Title    string
	Stem     string // output name without extension
	FontPath string // optional font file
	FontName string // used when FontPath is empty
}

// Run writes <paths.thumbnails>/<stem>.jpg. Callers treat a failure as soft.
func (g *Generator) Run(ctx context.Context, req Request) (string, error) {
	if !g.cfg.Thumbnail.Enabled {
		return "", nil
	}
	if req.Image == "" {
		return "", fmt.Errorf("no image for thumbnail")
	}
	if err := os.MkdirAll(g.cfg.Paths.Thumbnails, 0755); err != nil {
		return "", fmt.Errorf("create thumbnail dir: %w", err)
	}
	out := filepath.Join(g.cfg.Paths.Thumbnails, req.Stem+".jpg")

	cmd := exec.CommandContext(ctx, g.cfg.FFmpeg.Path, g.Args(req, out)...)
	if output, err := cmd.CombinedOutput(); err != nil {
		os.Remove(out)
		return "", fmt.Errorf("ffmpeg thumbnail: %w: %s", err, strings.TrimSpace(lastLine(string(output))))
	}
	g.logger.Info("🖼️ thumbnail ready", zap.String("path", out))
	return out, nil
}

// Args builds the ffmpeg invocation for req
func (g *Generator) Args(req Request, out string) []string {
	v := g.cfg.Video
	bg := strings.TrimPrefix(v.BackgroundColor, "#")
	if bg != v.BackgroundColor {
		bg = "0x" + bg
	}

	font := ""
	switch {
	case req.FontPath != "":
		font = "fontfile=" + escapeFilterValue(req.FontPath) + ":"
	case req.FontName != "":
		font = "font=" + escapeFilterValue(req.FontName) + ":"
	}

	size := g.cfg.Thumbnail.FontSize
	filters := []string{
		fmt.Sprintf("scale=%d:-2", v.Width),
		fmt.Sprintf("pad=%d:%d:(ow-iw)/2:(oh-ih)/2:color=%s", v.Width, v.Height, bg),
		fmt.Sprintf("drawtext=%stext='%s':fontcolor=white:fontsize=%d:borderw=4:bordercolor=black:box=1:boxcolor=black@0.4:boxborderw=20:x=(w-tw)/2:y=h*0.35",
			font, escapeText(Wrap(req.Title, runeWrap)), size),
	}
	if s := strings.TrimSpace(g.cfg.Thumbnail.SeriesText); s != "" {
		filters = append(filters, fmt.Sprintf(
			"drawtext=%stext='%s':fontcolor=yellow:fontsize=%d:borderw=3:bordercolor=black:x=(w-tw)/2:y=h*0.12",
			font, escapeText(s), size*2/3))
	}

	return []string{
		"-y", "-nostdin", "-v", "error",
		"-i", req.Image,
		"-vf", strings.Join(filters, ","),
		"-frames:v", "1",
		"-q:v", "2",
		out,
	}
}

// Wrap breaks s into lines of at most width runes, preferring spaces
func Wrap(s string, width int) string {
	var lines []string
	var cur []rune
	for _, word := range strings.Fields(s) {
		w := []rune(word)
		if len(cur) > 0 && len(cur)+1+len(w) > width {
			lines = append(lines, string(cur))
			cur = nil
		}
		if len(cur) > 0 {
			cur = append(cur, ' ')
		}
		cur = append(cur, w...)
		for len(cur) > width {
			lines = append(lines, string(cur[:width]))
			cur = cur[width:]
		}
	}
	if len(cur) > 0 {
		lines = append(lines, string(cur))
	}
	return strings.Join(lines, "\n")
}

func escapeText(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "'", `'\''`)
	s = strings.ReplaceAll(s, ":", `\:`)
	s = strings.ReplaceAll(s, "%", `\%`)
	return s
}

func escapeFilterValue(s string) string {
	s = strings.ReplaceAll(filepath.ToSlash(s), ":", `\:`)
	return strings.ReplaceAll(s, ",", `\,`)
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
