package compose

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sort"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"go.uber.org/zap"

	"shorts-pipeline/types"
)

// SlideOptions controls frame layout
type SlideOptions struct {
	Width       int
	Height      int
	Duration    float64
	Background  color.RGBA
	Placeholder string
}

// Frame is one rendered full-canvas slide
type Frame struct {
	Path        string `json:"path"`
	Source      string `json:"source"`
	Ordinal     int    `json:"ordinal"`
	Substituted bool   `json:"substituted"`
}

// Timeline is the ordered visual track. Its duration is authoritative for
// the whole output.
type Timeline struct {
	Frames        []Frame
	SlideDuration float64
	Substituted   int
	Dropped       int
}

func (t Timeline) Duration() float64 {
	return float64(len(t.Frames)) * t.SlideDuration
}

// BuildSlides renders every slide onto a WxH canvas under dir. Unreadable
// images fall back to the placeholder; if that fails too the slide is dropped.
func BuildSlides(slides []types.ImageSlide, opts SlideOptions, dir string, scope *Scope, logger *zap.Logger) (Timeline, error) {
	if opts.Width <= 0 || opts.Height <= 0 || opts.Duration <= 0 {
		return Timeline{}, fmt.Errorf("invalid slide options %dx%d %.3fs", opts.Width, opts.Height, opts.Duration)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if scope == nil {
		scope = NewScope(logger)
		defer scope.Close()
	}

	ordered := make([]types.ImageSlide, len(slides))
	copy(ordered, slides)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Ordinal < ordered[j].Ordinal })

	tl := Timeline{SlideDuration: opts.Duration}
	var placeholder image.Image
	placeholderTried := false

	for _, s := range ordered {
		img, err := loadImage(s.Path, scope)
		substituted := false
		if err != nil {
			if !placeholderTried {
				placeholderTried = true
				if opts.Placeholder != "" {
					p, perr := loadImage(opts.Placeholder, scope)
					if perr != nil {
						logger.Warn("placeholder unavailable", zap.String("path", opts.Placeholder), zap.Error(perr))
					} else {
						placeholder = p
					}
				}
			}
			if placeholder == nil {
				logger.Warn("dropping unreadable slide", zap.String("path", s.Path), zap.Error(err))
				tl.Dropped++
				continue
			}
			logger.Warn("substituting placeholder for unreadable slide", zap.String("path", s.Path), zap.Error(err))
			img = placeholder
			substituted = true
			tl.Substituted++
		}

		out := filepath.Join(dir, fmt.Sprintf("slide_%03d.png", len(tl.Frames)))
		if err := writePNG(out, fitToCanvas(img, opts)); err != nil {
			return Timeline{}, fmt.Errorf("write slide %s: %w", out, err)
		}
		tl.Frames = append(tl.Frames, Frame{Path: out, Source: s.Path, Ordinal: s.Ordinal, Substituted: substituted})
	}

	if len(tl.Frames) == 0 {
		return tl, ErrNoSlides
	}
	return tl, nil
}

func loadImage(path string, scope *Scope) (image.Image, error) {
	if path == "" {
		return nil, errors.New("empty image path")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	h := scope.Acquire("image "+path, f)
	defer h.Release()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("decode %s: empty image", path)
	}
	return img, nil
}

// fitToCanvas scales src to the canvas width, keeping aspect ratio, and
// centers it vertically on an opaque background.
func fitToCanvas(src image.Image, opts SlideOptions) *image.RGBA {
	canvas := image.NewRGBA(image.Rect(0, 0, opts.Width, opts.Height))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: opts.Background}, image.Point{}, draw.Src)

	sb := src.Bounds()
	h := int(float64(sb.Dy())*float64(opts.Width)/float64(sb.Dx()) + 0.5)
	if h < 1 {
		h = 1
	}
	top := (opts.Height - h) / 2
	dst := image.Rect(0, top, opts.Width, top+h)
	draw.CatmullRom.Scale(canvas, dst, src, sb, draw.Over, nil)
	return canvas
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(f, img); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}
