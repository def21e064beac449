package compose

import (
	"math"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/asticode/go-astisub"

	"shorts-pipeline/types"
)

func TestDeriveCuesScenarioA(t *testing.T) {
	norm, err := Normalize([]types.NarrationSegment{
		seg(0, "a.wav", 4, "first"),
		seg(1, "b.wav", 6, "second"),
	}, 15)
	if err != nil {
		t.Fatal(err)
	}
	cues := DeriveCues(norm)
	if len(cues) != 2 {
		t.Fatalf("len(cues) = %d, want 2", len(cues))
	}

	// stretched to 15 s, the 4 s line is heard over [0, 6) and the 6 s line over [6, 15)
	want := []types.SubtitleCue{
		{Start: 0, End: 6, Text: "first"},
		{Start: 6, End: 15, Text: "second"},
	}
	for i := range want {
		if math.Abs(cues[i].Start-want[i].Start) > eps || math.Abs(cues[i].End-want[i].End) > eps {
			t.Errorf("cue %d = [%.4f, %.4f), want [%.4f, %.4f)", i, cues[i].Start, cues[i].End, want[i].Start, want[i].End)
		}
		if cues[i].Text != want[i].Text {
			t.Errorf("cue %d text = %q, want %q", i, cues[i].Text, want[i].Text)
		}
	}
}

func TestDeriveCuesContiguousAndProportional(t *testing.T) {
	segments := []types.NarrationSegment{
		seg(0, "a.wav", 1.25, "a"),
		seg(1, "b.wav", 0.5, "b"),
		{Index: 2, AudioPath: "", Duration: types.Seconds(9)},
		seg(3, "d.wav", 3.75, "d"),
		seg(4, "e.wav", 2.5, "e"),
	}
	norm, err := Normalize(segments, 10)
	if err != nil {
		t.Fatal(err)
	}
	cues := DeriveCues(norm)
	if len(cues) != 4 {
		t.Fatalf("len(cues) = %d, want 4", len(cues))
	}

	total := 0.0
	for i, c := range cues {
		if c.End <= c.Start {
			t.Errorf("cue %d is empty: [%v, %v)", i, c.Start, c.End)
		}
		if i > 0 && c.Start != cues[i-1].End {
			t.Errorf("gap between cue %d and %d: %v != %v", i-1, i, cues[i-1].End, c.Start)
		}
		d := norm.Segments[i].Seconds()
		if math.Abs(c.Duration()-d/norm.Factor) > 1e-6 {
			t.Errorf("cue %d duration = %v, want %v", i, c.Duration(), d/norm.Factor)
		}
		total += c.Duration()
	}
	if cues[0].Start != 0 {
		t.Errorf("first cue starts at %v", cues[0].Start)
	}
	if math.Abs(total-norm.Target) > 1e-6 {
		t.Errorf("sum of cue durations = %v, want %v", total, norm.Target)
	}
	if last := cues[len(cues)-1].End; last != norm.Target {
		t.Errorf("last cue ends at %v, want %v", last, norm.Target)
	}
}

func TestDeriveCuesIdempotent(t *testing.T) {
	segments := []types.NarrationSegment{seg(0, "a.wav", 2.2, "a"), seg(1, "b.wav", 3.3, "b")}
	n1, _ := Normalize(segments, 10)
	n2, _ := Normalize(segments, 10)
	if !reflect.DeepEqual(DeriveCues(n1), DeriveCues(n2)) {
		t.Error("identical inputs produced different cues")
	}
}

func TestWriteSRTSkipsBlankText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subs.srt")
	cues := []types.SubtitleCue{
		{Start: 0, End: 1.5, Text: "こんにちは"},
		{Start: 1.5, End: 2, Text: "   "},
		{Start: 2, End: 3.25, Text: "line one\nline two"},
	}
	n, err := WriteSRT(path, cues)
	if err != nil {
		t.Fatalf("WriteSRT() error = %v", err)
	}
	if n != 2 {
		t.Errorf("written = %d, want 2", n)
	}

	subs, err := astisub.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	if len(subs.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(subs.Items))
	}
	if subs.Items[1].StartAt != 2*time.Second || subs.Items[1].EndAt != 3250*time.Millisecond {
		t.Errorf("item 2 = %v --> %v", subs.Items[1].StartAt, subs.Items[1].EndAt)
	}
	if got := subs.Items[0].Lines[0].Items[0].Text; !strings.Contains(got, "こんにちは") {
		t.Errorf("item 1 text = %q", got)
	}
	if len(subs.Items[1].Lines) != 2 {
		t.Errorf("item 2 lines = %d, want 2", len(subs.Items[1].Lines))
	}
}

func TestWriteSRTNothingToWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subs.srt")
	if _, err := WriteSRT(path, []types.SubtitleCue{{Start: 0, End: 1}}); err == nil {
		t.Fatal("WriteSRT() = nil error for blank cues")
	}
	if _, err := WriteSRT(path, nil); err == nil {
		t.Fatal("WriteSRT(nil) = nil error")
	}
}
