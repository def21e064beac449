package config

import (
	"errors"
	"fmt"
	"image/color"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	Topics    TopicsConfig    `yaml:"topics"`
	Script    ScriptConfig    `yaml:"script"`
	TTS       TTSConfig       `yaml:"tts"`
	Images    ImagesConfig    `yaml:"images"`
	Video     VideoConfig     `yaml:"video"`
	Audio     AudioConfig     `yaml:"audio"`
	BGM       BGMConfig       `yaml:"bgm"`
	Subtitles SubtitlesConfig `yaml:"subtitles"`
	Thumbnail ThumbnailConfig `yaml:"thumbnail"`
	Upload    UploadConfig    `yaml:"upload"`
	FFmpeg    FFmpegConfig    `yaml:"ffmpeg"`
	Compose   ComposeConfig   `yaml:"compose"`
	Paths     PathsConfig     `yaml:"paths"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json | console
}

type TopicsConfig struct {
	Themes     []string `yaml:"themes"`
	Subreddits []string `yaml:"subreddits"`
	MinScore   int      `yaml:"min_score"`
	PostLimit  int      `yaml:"post_limit"`
	BatchSize  int      `yaml:"batch_size"`
	UserAgent  string   `yaml:"user_agent"`
}

type ScriptConfig struct {
	GroqModel   string  `yaml:"groq_model"`
	Temperature float64 `yaml:"temperature"`
	TargetChars int     `yaml:"target_chars"`
}

type TTSConfig struct {
	Command  string `yaml:"command"`
	Voice    string `yaml:"voice"`
	Attempts int    `yaml:"attempts"`
}

type ImagesConfig struct {
	ManualDir   string `yaml:"manual_dir"`
	Placeholder string `yaml:"placeholder"`
	Count       int    `yaml:"count"`
	Generate    bool   `yaml:"generate"`
	Style       string `yaml:"style"`
	Model       string `yaml:"model"`
}

// VideoConfig describes the visual timeline and the final encode
type VideoConfig struct {
	Width           int     `yaml:"width"`
	Height          int     `yaml:"height"`
	FPS             int     `yaml:"fps"`
	ImageDuration   float64 `yaml:"image_duration"`
	BackgroundColor string  `yaml:"background_color"`
	Codec           string  `yaml:"codec"`
	Preset          string  `yaml:"preset"`
	CRF             int     `yaml:"crf"`
	PixelFormat     string  `yaml:"pix_fmt"`
	AudioCodec      string  `yaml:"audio_codec"`
	AudioBitrate    string  `yaml:"audio_bitrate"`
	MaxNameLength   int     `yaml:"max_name_length"`
}

type AudioConfig struct {
	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`
}

type BGMConfig struct {
	Path              string   `yaml:"path"`
	Gain              float64  `yaml:"gain"`
	DefaultCandidates []string `yaml:"default_candidates"`
}

type SubtitlesConfig struct {
	Enabled       bool    `yaml:"enabled"`
	Font          string  `yaml:"font"`
	FallbackFont  string  `yaml:"fallback_font"`
	FontSize      int     `yaml:"font_size"`
	Color         string  `yaml:"color"`
	StrokeColor   string  `yaml:"stroke_color"`
	StrokeWidth   float64 `yaml:"stroke_width"`
	PositionRatio float64 `yaml:"position_ratio"`
}

type ThumbnailConfig struct {
	Enabled    bool   `yaml:"enabled"`
	SeriesText string `yaml:"series_text"`
	FontSize   int    `yaml:"font_size"`
}

type UploadConfig struct {
	YouTube YouTubeConfig `yaml:"youtube"`
	Archive ArchiveConfig `yaml:"archive"`
}

type YouTubeConfig struct {
	Enabled         bool     `yaml:"enabled"`
	Visibility      string   `yaml:"visibility"`
	CategoryID      string   `yaml:"category_id"`
	DefaultLanguage string   `yaml:"default_language"`
	MadeForKids     bool     `yaml:"made_for_kids"`
	Tags            []string `yaml:"tags"`
}

type ArchiveConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	UseSSL   bool   `yaml:"use_ssl"`
}

type FFmpegConfig struct {
	Path      string `yaml:"path"`
	ProbePath string `yaml:"probe_path"`
}

type ComposeConfig struct {
	TimeoutSec int  `yaml:"timeout_sec"`
	KeepWork   bool `yaml:"keep_work"`
}

// Timeout returns the per-topic composition timeout, 0 meaning none
func (c ComposeConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

type PathsConfig struct {
	Videos     string `yaml:"videos"`
	Subtitles  string `yaml:"subtitles"`
	Thumbnails string `yaml:"thumbnails"`
	Scripts    string `yaml:"scripts"`
	Work       string `yaml:"work"`
	Logs       string `yaml:"logs"`
	HistoryDB  string `yaml:"history_db"`
	CSVLog     string `yaml:"csv_log"`
}

// Default returns the documented defaults for every field
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Format: "console"},
		Topics: TopicsConfig{
			MinScore:  100,
			PostLimit: 25,
			BatchSize: 5,
			UserAgent: "shorts-pipeline/1.0",
		},
		Script: ScriptConfig{
			GroqModel:   "llama-3.3-70b-versatile",
			Temperature: 0.8,
			TargetChars: 320,
		},
		TTS: TTSConfig{Voice: "ja-JP-NanamiNeural", Attempts: 3},
		Images: ImagesConfig{
			ManualDir:   "input/images",
			Placeholder: "input/images/placeholder.png",
			Count:       12,
			Generate:    true,
			Model:       "flux",
		},
		Video: VideoConfig{
			Width:           1080,
			Height:          1920,
			FPS:             30,
			ImageDuration:   5.0,
			BackgroundColor: "#000000",
			Codec:           "libx264",
			Preset:          "medium",
			CRF:             23,
			PixelFormat:     "yuv420p",
			AudioCodec:      "aac",
			AudioBitrate:    "192k",
			MaxNameLength:   50,
		},
		Audio: AudioConfig{SampleRate: 44100, Channels: 2},
		BGM: BGMConfig{
			Gain:              0.08,
			DefaultCandidates: []string{"input/bgm/default_bgm.mp3", "sample.mp4"},
		},
		Subtitles: SubtitlesConfig{
			Enabled:       true,
			Font:          "input/fonts/font.ttf",
			FallbackFont:  "Arial",
			FontSize:      60,
			Color:         "white",
			StrokeColor:   "black",
			StrokeWidth:   2,
			PositionRatio: 0.8,
		},
		Thumbnail: ThumbnailConfig{Enabled: true, FontSize: 80},
		Upload: UploadConfig{
			YouTube: YouTubeConfig{
				Visibility:      "private",
				CategoryID:      "28",
				DefaultLanguage: "ja",
				Tags:            []string{"shorts"},
			},
			Archive: ArchiveConfig{Prefix: "shorts", UseSSL: true},
		},
		FFmpeg:  FFmpegConfig{Path: "ffmpeg", ProbePath: "ffprobe"},
		Compose: ComposeConfig{TimeoutSec: 900},
		Paths: PathsConfig{
			Videos:     "output/videos",
			Subtitles:  "output/subtitles",
			Thumbnails: "output/thumbnails",
			Scripts:    "input/scripts",
			Work:       "temp",
			Logs:       "output/logs",
			HistoryDB:  "output/logs/history.db",
			CSVLog:     "output/logs/log.csv",
		},
	}
}

// Load reads config.yaml over the defaults and validates the result
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid field at once
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	v := c.Video
	check(v.Width > 0 && v.Width%2 == 0, "video.width must be a positive even number, got %d", v.Width)
	check(v.Height > 0 && v.Height%2 == 0, "video.height must be a positive even number, got %d", v.Height)
	check(v.FPS > 0, "video.fps must be positive, got %d", v.FPS)
	check(v.ImageDuration > 0, "video.image_duration must be positive, got %v", v.ImageDuration)
	check(v.CRF >= 0 && v.CRF <= 51, "video.crf must be within 0..51, got %d", v.CRF)
	check(v.Codec != "", "video.codec is required")
	check(v.AudioCodec != "", "video.audio_codec is required")
	check(v.MaxNameLength > 0, "video.max_name_length must be positive, got %d", v.MaxNameLength)
	if _, err := ParseColor(v.BackgroundColor); err != nil {
		errs = append(errs, fmt.Errorf("video.background_color: %w", err))
	}

	check(c.Audio.SampleRate >= 8000, "audio.sample_rate must be at least 8000, got %d", c.Audio.SampleRate)
	check(c.Audio.Channels == 1 || c.Audio.Channels == 2, "audio.channels must be 1 or 2, got %d", c.Audio.Channels)

	check(c.BGM.Gain > 0 && c.BGM.Gain < 1, "bgm.gain must be within (0,1), got %v", c.BGM.Gain)

	s := c.Subtitles
	check(s.FontSize > 0, "subtitles.font_size must be positive, got %d", s.FontSize)
	check(s.StrokeWidth >= 0, "subtitles.stroke_width must not be negative, got %v", s.StrokeWidth)
	check(s.PositionRatio > 0 && s.PositionRatio <= 1, "subtitles.position_ratio must be within (0,1], got %v", s.PositionRatio)
	if _, err := ParseColor(s.Color); err != nil {
		errs = append(errs, fmt.Errorf("subtitles.color: %w", err))
	}
	if _, err := ParseColor(s.StrokeColor); err != nil {
		errs = append(errs, fmt.Errorf("subtitles.stroke_color: %w", err))
	}

	check(c.Images.Count >= 0, "images.count must not be negative, got %d", c.Images.Count)
	check(c.Topics.BatchSize > 0, "topics.batch_size must be positive, got %d", c.Topics.BatchSize)
	check(c.TTS.Attempts > 0, "tts.attempts must be positive, got %d", c.TTS.Attempts)
	check(c.Compose.TimeoutSec >= 0, "compose.timeout_sec must not be negative, got %d", c.Compose.TimeoutSec)
	check(c.FFmpeg.Path != "", "ffmpeg.path is required")
	check(c.Paths.Videos != "", "paths.videos is required")
	check(c.Paths.Work != "", "paths.work is required")

	if c.Upload.Archive.Enabled {
		check(c.Upload.Archive.Endpoint != "", "upload.archive.endpoint is required when archive is enabled")
		check(c.Upload.Archive.Bucket != "", "upload.archive.bucket is required when archive is enabled")
	}

	return errors.Join(errs...)
}

var namedColors = map[string]color.RGBA{
	"black":  {0, 0, 0, 255},
	"white":  {255, 255, 255, 255},
	"red":    {255, 0, 0, 255},
	"green":  {0, 128, 0, 255},
	"blue":   {0, 0, 255, 255},
	"yellow": {255, 255, 0, 255},
	"gray":   {128, 128, 128, 255},
	"grey":   {128, 128, 128, 255},
}

// ParseColor accepts a CSS-style name or #RRGGBB
func ParseColor(s string) (color.RGBA, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if c, ok := namedColors[s]; ok {
		return c, nil
	}
	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 6 || hex == s {
		return color.RGBA{}, fmt.Errorf("unsupported color %q", s)
	}
	n, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("unsupported color %q", s)
	}
	return color.RGBA{R: uint8(n >> 16), G: uint8(n >> 8), B: uint8(n), A: 255}, nil
}
