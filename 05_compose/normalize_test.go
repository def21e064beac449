package compose

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"shorts-pipeline/types"
)

const eps = 1e-9

func seg(index int, path string, dur float64, text string) types.NarrationSegment {
	return types.NarrationSegment{Index: index, AudioPath: path, Duration: types.Seconds(dur), Text: text}
}

func TestNormalizeScenarioA(t *testing.T) {
	// 3 slides x 5 s, narration 4 s + 6 s
	norm, err := Normalize([]types.NarrationSegment{
		seg(0, "a.wav", 4, "first"),
		seg(1, "b.wav", 6, "second"),
	}, 15)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if norm.Raw != 10 {
		t.Errorf("Raw = %v, want 10", norm.Raw)
	}
	if math.Abs(norm.Factor-10.0/15.0) > eps {
		t.Errorf("Factor = %v, want %v", norm.Factor, 10.0/15.0)
	}
	if norm.Target != 15 {
		t.Errorf("Target = %v, want 15", norm.Target)
	}
}

func TestNormalizeDropsFailedSegments(t *testing.T) {
	segments := []types.NarrationSegment{
		seg(2, "c.wav", 3, "third"),
		{Index: 1, AudioPath: "", Duration: types.Seconds(2), Text: "no audio"},
		{Index: 3, AudioPath: "d.wav", Duration: nil, Text: "no duration"},
		seg(4, "e.wav", 0, "zero"),
		seg(0, "a.wav", 1, "first"),
	}
	norm, err := Normalize(segments, 8)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	got := []int{}
	for _, s := range norm.Segments {
		got = append(got, s.Index)
	}
	if want := []int{0, 2}; !reflect.DeepEqual(got, want) {
		t.Errorf("surviving indexes = %v, want %v", got, want)
	}
	if norm.Raw != 4 {
		t.Errorf("Raw = %v, want 4", norm.Raw)
	}
	if norm.Factor != 0.5 {
		t.Errorf("Factor = %v, want 0.5", norm.Factor)
	}
}

func TestNormalizeNoValidSegments(t *testing.T) {
	_, err := Normalize([]types.NarrationSegment{
		{Index: 0, AudioPath: "", Duration: types.Seconds(3)},
		{Index: 1, AudioPath: "x.wav", Duration: types.Seconds(0)},
	}, 10)
	if !errors.Is(err, ErrNoNarration) {
		t.Fatalf("Normalize() error = %v, want ErrNoNarration", err)
	}
	if _, err := Normalize(nil, 10); !errors.Is(err, ErrNoNarration) {
		t.Fatalf("Normalize(nil) error = %v, want ErrNoNarration", err)
	}
}

func TestNormalizeRejectsEmptyTimeline(t *testing.T) {
	if _, err := Normalize([]types.NarrationSegment{seg(0, "a.wav", 1, "x")}, 0); err == nil {
		t.Fatal("Normalize(target 0) = nil error")
	}
}

func TestFilterSegmentsDoesNotMutateInput(t *testing.T) {
	in := []types.NarrationSegment{seg(1, "b.wav", 1, "b"), seg(0, "a.wav", 1, "a")}
	FilterSegments(in)
	if in[0].Index != 1 {
		t.Error("FilterSegments reordered its input")
	}
}
