package compose

import (
	"context"
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"shorts-pipeline/config"
)

// libass scales SRT styles against this script height
const assPlayResY = 288

// RenderInput is everything the final encode needs
type RenderInput struct {
	Frames        []string
	SlideDuration float64
	Duration      float64
	AudioPath     string
	SubtitlePath  string // empty means no overlay
	Style         SubtitleStyle
	OutputPath    string
	WorkDir       string
}

// Encoder writes the final container file at in.OutputPath
type Encoder interface {
	Encode(ctx context.Context, in RenderInput) error
}

// SubtitleStyle is the burned-in caption look
type SubtitleStyle struct {
	FontName      string
	FontsDir      string
	FontSize      int
	Color         color.RGBA
	StrokeColor   color.RGBA
	StrokeWidth   float64
	PositionRatio float64
}

// FFmpegEncoder renders slides, mixed audio and captions in one ffmpeg pass
type FFmpegEncoder struct {
	Bin    string
	Video  config.VideoConfig
	Logger *zap.Logger
}

func (e *FFmpegEncoder) Encode(ctx context.Context, in RenderInput) error {
	if len(in.Frames) == 0 {
		return fmt.Errorf("no frames to encode")
	}
	listFile := filepath.Join(in.WorkDir, "slides.ffconcat")
	if err := os.WriteFile(listFile, []byte(concatList(in.Frames, in.SlideDuration)), 0644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}

	args := e.args(in, listFile)
	if e.Logger != nil {
		e.Logger.Debug("running ffmpeg", zap.Strings("args", args))
	}
	bin := e.Bin
	if bin == "" {
		bin = "ffmpeg"
	}
	return runFFmpeg(ctx, bin, nil, args...)
}

func (e *FFmpegEncoder) args(in RenderInput, listFile string) []string {
	v := e.Video
	filters := []string{fmt.Sprintf("fps=%d", v.FPS), "format=" + v.PixelFormat}
	if in.SubtitlePath != "" {
		filters = append(filters, in.Style.filter(in.SubtitlePath, v.Height))
	}

	return []string{
		"-y", "-nostdin", "-v", "error",
		"-f", "concat", "-safe", "0", "-i", listFile,
		"-i", in.AudioPath,
		"-map", "0:v:0", "-map", "1:a:0",
		"-vf", strings.Join(filters, ","),
		"-c:v", v.Codec,
		"-preset", v.Preset,
		"-crf", fmt.Sprint(v.CRF),
		"-pix_fmt", v.PixelFormat,
		"-r", fmt.Sprint(v.FPS),
		"-c:a", v.AudioCodec,
		"-b:a", v.AudioBitrate,
		"-t", fmt.Sprintf("%.3f", in.Duration),
		"-movflags", "+faststart",
		"-f", "mp4",
		in.OutputPath,
	}
}

// concatList holds each frame for its duration. The last file is repeated
// because the concat demuxer ignores the final duration directive.
func concatList(frames []string, duration float64) string {
	var b strings.Builder
	b.WriteString("ffconcat version 1.0\n")
	for _, f := range frames {
		fmt.Fprintf(&b, "file '%s'\nduration %.3f\n", quoteConcatPath(f), duration)
	}
	fmt.Fprintf(&b, "file '%s'\n", quoteConcatPath(frames[len(frames)-1]))
	return b.String()
}

func quoteConcatPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	return strings.ReplaceAll(filepath.ToSlash(p), "'", `'\''`)
}

// filter builds the libass subtitles filter. Sizes are given in output
// pixels and rescaled to the 288-line script space libass uses for SRT.
func (s SubtitleStyle) filter(srtPath string, frameHeight int) string {
	scale := float64(assPlayResY) / float64(frameHeight)
	marginV := int(math.Round((1 - s.PositionRatio) * assPlayResY))

	style := fmt.Sprintf(
		"FontName=%s,FontSize=%d,PrimaryColour=%s,OutlineColour=%s,BorderStyle=1,Outline=%.2f,Shadow=0,Alignment=2,MarginV=%d",
		s.FontName,
		int(math.Max(1, math.Round(float64(s.FontSize)*scale))),
		assColour(s.Color),
		assColour(s.StrokeColor),
		s.StrokeWidth*scale,
		marginV,
	)

	f := "subtitles=" + escapeFilterPath(srtPath)
	if s.FontsDir != "" {
		f += ":fontsdir=" + escapeFilterPath(s.FontsDir)
	}
	return f + ":force_style='" + style + "'"
}

// assColour formats &HAABBGGRR with full opacity
func assColour(c color.RGBA) string {
	return fmt.Sprintf("&H00%02X%02X%02X", c.B, c.G, c.R)
}

// escapeFilterPath escapes the characters the filtergraph parser treats as
// separators.
func escapeFilterPath(path string) string {
	path = strings.ReplaceAll(path, `\`, "/")
	r := strings.NewReplacer(":", `\:`, "'", `\'`, ",", `\,`, "[", `\[`, "]", `\]`, ";", `\;`)
	return r.Replace(path)
}
