package compose

import (
	"shorts-pipeline/types"
)

// DeriveCues places each normalized segment where it is heard in the
// stretched narration: start_i = sum(d_j, j<i) / f, end_i = start_i + d_i / f.
// Consecutive cues share their boundary exactly and the last cue ends at
// norm.Target.
func DeriveCues(norm Normalization) []types.SubtitleCue {
	cues := make([]types.SubtitleCue, 0, len(norm.Segments))
	if norm.Raw <= 0 {
		return cues
	}
	scale := norm.Target / norm.Raw
	elapsed := 0.0
	start := 0.0
	for i, s := range norm.Segments {
		elapsed += s.Seconds()
		end := elapsed * scale
		if i == len(norm.Segments)-1 {
			end = norm.Target
		}
		cues = append(cues, types.SubtitleCue{
			Start: start,
			End:   end,
			Text:  s.Text,
		})
		start = end
	}
	return cues
}
