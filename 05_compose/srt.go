package compose

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/asticode/go-astisub"

	"shorts-pipeline/types"
)

var errNoCueText = errors.New("no cue has text")

// WriteSRT writes cues as SubRip. Cues with blank text keep their slot in the
// timing but produce no entry. It returns the number of entries written.
func WriteSRT(path string, cues []types.SubtitleCue) (int, error) {
	subs := astisub.NewSubtitles()
	for _, c := range cues {
		text := strings.TrimSpace(c.Text)
		if text == "" {
			continue
		}
		item := &astisub.Item{
			StartAt: toDuration(c.Start),
			EndAt:   toDuration(c.End),
		}
		for _, line := range strings.Split(text, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				item.Lines = append(item.Lines, astisub.Line{Items: []astisub.LineItem{{Text: line}}})
			}
		}
		subs.Items = append(subs.Items, item)
	}
	if len(subs.Items) == 0 {
		return 0, errNoCueText
	}

	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	if err := subs.WriteToSRT(f); err != nil {
		f.Close()
		os.Remove(path)
		return 0, fmt.Errorf("write srt: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return 0, err
	}
	return len(subs.Items), nil
}

func toDuration(seconds float64) time.Duration {
	return time.Duration(math.Round(seconds * 1000)) * time.Millisecond
}
