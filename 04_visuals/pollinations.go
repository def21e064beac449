package visuals

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
)

const pollinationsBase = "https://image.pollinations.ai/prompt/"

// Fetcher produces one generated image for a prompt
type Fetcher interface {
	Fetch(ctx context.Context, prompt string, seed int, outFile string) error
}

// PollinationsFetcher generates AI images via Pollinations.ai (free, no key needed)
type PollinationsFetcher struct {
	httpClient *http.Client
	logger     *zap.Logger
	baseURL    string
	width      int
	height     int
	model      string
	attempts   int
	backoff    time.Duration
}

// NewPollinationsFetcher creates a fetcher for width x height images
func NewPollinationsFetcher(width, height int, model string, logger *zap.Logger) *PollinationsFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if model == "" {
		model = "flux"
	}
	return &PollinationsFetcher{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
		baseURL:    pollinationsBase,
		width:      width,
		height:     height,
		model:      model,
		attempts:   3,
		backoff:    3 * time.Second,
	}
}

// URL builds the Pollinations request for prompt
func (p *PollinationsFetcher) URL(prompt string, seed int) string {
	return fmt.Sprintf("%s%s?width=%d&height=%d&nologo=true&model=%s&seed=%d",
		p.baseURL, url.PathEscape(prompt), p.width, p.height, url.QueryEscape(p.model), seed)
}

// Fetch downloads the image, retrying since Pollinations occasionally times out
func (p *PollinationsFetcher) Fetch(ctx context.Context, prompt string, seed int, outFile string) error {
	imageURL := p.URL(prompt, seed)
	var err error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if err = p.download(ctx, imageURL, outFile); err == nil {
			return nil
		}
		if attempt == p.attempts {
			break
		}
		p.logger.Warn("image generation attempt failed", zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * p.backoff):
		}
	}
	return fmt.Errorf("pollinations fetch failed after %d attempts: %w", p.attempts, err)
}

func (p *PollinationsFetcher) download(ctx context.Context, imageURL, outFile string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; ShortsPipeline/1.0)")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d from Pollinations", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	// An error page is tiny; a real image never is.
	if len(data) < 100 {
		return fmt.Errorf("response too small (%d bytes), likely an error", len(data))
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") {
		return fmt.Errorf("unexpected content type %q", ct)
	}
	return os.WriteFile(outFile, data, 0644)
}

// BuildPrompt combines topic, style and the narration sentence the image illustrates
func BuildPrompt(topic, style, sentence string) string {
	parts := []string{strings.TrimSpace(topic)}
	if s := strings.TrimSpace(sentence); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(style); s != "" {
		parts = append(parts, s)
	} else {
		parts = append(parts, "cinematic lighting, vivid colors, vertical composition")
	}
	parts = append(parts, "no text, no watermark")
	return strings.Join(parts, ", ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
