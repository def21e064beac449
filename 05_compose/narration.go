package compose

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"shorts-pipeline/types"
)

// Clip is a decoded narration segment
type Clip struct {
	Segment types.NarrationSegment
	PCM     *Buffer
}

// LoadNarration decodes every valid segment in index order. Segments that
// fail to decode are skipped before any duration math runs.
func LoadNarration(ctx context.Context, dec Decoder, segments []types.NarrationSegment, sampleRate, channels int, logger *zap.Logger) []Clip {
	if logger == nil {
		logger = zap.NewNop()
	}
	valid := FilterSegments(segments)
	if skipped := len(segments) - len(valid); skipped > 0 {
		logger.Warn("skipping failed narration segments", zap.Int("count", skipped))
	}

	clips := make([]Clip, 0, len(valid))
	for _, s := range valid {
		pcm, err := dec.Decode(ctx, s.AudioPath, sampleRate, channels)
		if err != nil {
			logger.Warn("skipping undecodable narration segment",
				zap.Int("index", s.Index), zap.String("path", s.AudioPath), zap.Error(err))
			continue
		}
		clips = append(clips, Clip{Segment: s, PCM: pcm})
	}
	return clips
}

// BuildNarration concatenates the clips and plays the result at
// norm.Factor so it lasts exactly norm.Target seconds. Each clip is first
// fitted to its declared duration so the audio and the cues share one
// segment grid.
func BuildNarration(clips []Clip, norm Normalization, sampleRate, channels int) (*Buffer, error) {
	if len(clips) != len(norm.Segments) {
		return nil, fmt.Errorf("narration: %d clips for %d normalized segments", len(clips), len(norm.Segments))
	}
	parts := make([]*Buffer, 0, len(clips))
	for i, c := range clips {
		if c.Segment.Index != norm.Segments[i].Index {
			return nil, fmt.Errorf("narration: clip %d has index %d, want %d", i, c.Segment.Index, norm.Segments[i].Index)
		}
		pcm, err := c.PCM.Remix(channels)
		if err != nil {
			return nil, err
		}
		if pcm.SampleRate != sampleRate {
			return nil, fmt.Errorf("narration: segment %d is %d Hz, want %d", c.Segment.Index, pcm.SampleRate, sampleRate)
		}
		parts = append(parts, pcm.Fit(FramesFor(c.Segment.Seconds(), sampleRate)))
	}
	track, err := Concat(parts...)
	if err != nil {
		return nil, fmt.Errorf("narration: %w", err)
	}
	return Stretch(track, norm.Factor, FramesFor(norm.Target, sampleRate)), nil
}
