package types

// NarrationSegment is one synthesized sentence/phrase of narration.
// An empty AudioPath or a nil/zero Duration marks a synthesis failure.
type NarrationSegment struct {
	Index     int      `json:"index"`
	AudioPath string   `json:"audio_path"`
	Duration  *float64 `json:"duration"`
	Text      string   `json:"text"`
}

// Valid reports whether the segment can take part in the timeline
func (s NarrationSegment) Valid() bool {
	return s.AudioPath != "" && s.Duration != nil && *s.Duration > 0
}

// Seconds returns the declared duration, or 0 when unknown
func (s NarrationSegment) Seconds() float64 {
	if s.Duration == nil {
		return 0
	}
	return *s.Duration
}

// Seconds is a helper for building optional durations
func Seconds(v float64) *float64 {
	return &v
}

// ImageSlide is one still image in display order
type ImageSlide struct {
	Path    string `json:"path"`
	Ordinal int    `json:"ordinal"`
}

// SubtitleCue is one subtitle window in output time, seconds
type SubtitleCue struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Duration returns End - Start
func (c SubtitleCue) Duration() float64 {
	return c.End - c.Start
}

// Job is everything the composition engine needs for one topic
type Job struct {
	Topic    string             `json:"topic"`
	Segments []NarrationSegment `json:"segments"`
	Images   []ImageSlide       `json:"images"`
	BGMPath  string             `json:"bgm_path"`
	FontPath string             `json:"font_path"`
	FontName string             `json:"font_name"`
}

// VideoMetadata holds publishing metadata for one video
type VideoMetadata struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	CategoryID  string   `json:"category_id"`
	Visibility  string   `json:"visibility"`
}

// RunRecord tracks the full state of one topic run
type RunRecord struct {
	RunID         string   `json:"run_id"`
	Topic         string   `json:"topic"`
	Style         string   `json:"style"`
	StartedAt     string   `json:"started_at"`
	CompletedAt   string   `json:"completed_at"`
	Script        string   `json:"script"`
	Images        []string `json:"images"`
	BGMPath       string   `json:"bgm_path"`
	VideoFile     string   `json:"video_file"`
	SubtitleFile  string   `json:"subtitle_file"`
	ThumbnailFile string   `json:"thumbnail_file"`
	DurationSec   float64  `json:"duration_sec"`
	StretchFactor float64  `json:"stretch_factor"`
	SlideCount    int      `json:"slide_count"`
	YouTubeID     string   `json:"youtube_id"`
	YouTubeURL    string   `json:"youtube_url"`
	ArchiveKey    string   `json:"archive_key"`
	Error         string   `json:"error,omitempty"`
}

// Succeeded reports whether the run produced a video
func (r *RunRecord) Succeeded() bool {
	return r.Error == "" && r.VideoFile != ""
}
