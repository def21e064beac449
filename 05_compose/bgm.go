package compose

import (
	"context"
	"errors"
	"fmt"
)

var errNoBGM = errors.New("no background music configured")

// LoadBGM decodes path, applies gain and loops or trims it to exactly
// frames frames. Loop seams are sample-exact.
func LoadBGM(ctx context.Context, dec Decoder, path string, gain float64, frames, sampleRate, channels int) (*Buffer, error) {
	if path == "" {
		return nil, errNoBGM
	}
	src, err := dec.Decode(ctx, path, sampleRate, channels)
	if err != nil {
		return nil, err
	}
	if src.Frames() == 0 {
		return nil, fmt.Errorf("%s: empty audio", path)
	}
	src, err = src.Remix(channels)
	if err != nil {
		return nil, err
	}
	src.Gain(gain)
	return Loop(src, frames), nil
}
