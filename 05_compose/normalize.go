package compose

import (
	"fmt"
	"sort"

	"github.com/samber/lo"

	"shorts-pipeline/types"
)

// Normalization is the single shared timing decision for a run. Narration
// audio and subtitle cues are both derived from it so they cannot disagree
// about which segments survived or how far they were stretched.
type Normalization struct {
	Segments []types.NarrationSegment
	Raw      float64 // sum of declared segment durations
	Target   float64 // visual timeline duration
	Factor   float64 // Raw / Target, applied to the whole track
}

// FilterSegments drops synthesis failures and orders the rest by index
func FilterSegments(segments []types.NarrationSegment) []types.NarrationSegment {
	valid := lo.Filter(segments, func(s types.NarrationSegment, _ int) bool { return s.Valid() })
	sort.SliceStable(valid, func(i, j int) bool { return valid[i].Index < valid[j].Index })
	return valid
}

// Normalize computes the uniform stretch factor mapping the surviving
// narration onto target seconds.
func Normalize(segments []types.NarrationSegment, target float64) (Normalization, error) {
	if target <= 0 {
		return Normalization{}, fmt.Errorf("target duration must be positive, got %v", target)
	}
	valid := FilterSegments(segments)
	if len(valid) == 0 {
		return Normalization{}, ErrNoNarration
	}
	raw := lo.SumBy(valid, func(s types.NarrationSegment) float64 { return s.Seconds() })
	return Normalization{
		Segments: valid,
		Raw:      raw,
		Target:   target,
		Factor:   raw / target,
	}, nil
}
