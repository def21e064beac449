package topics

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"
	"github.com/vartanbeno/go-reddit/v2/reddit"
	"go.uber.org/zap"

	"shorts-pipeline/config"
)

// Candidate is one topic with where it came from
type Candidate struct {
	Title  string
	Source string
	Score  int
}

// PostSource lists hot posts of a subreddit
type PostSource interface {
	HotPosts(ctx context.Context, subreddit string, limit int) ([]*reddit.Post, error)
}

// UsedTopics reports topics already produced successfully
type UsedTopics interface {
	UsedTopics(ctx context.Context) ([]string, error)
}

// Selector picks the batch of topics for one run
type Selector struct {
	cfg    *config.Config
	logger *zap.Logger
	posts  PostSource
	used   UsedTopics
}

// New creates a Selector. posts may be nil to use a read-only Reddit client;
// used may be nil to skip history dedup.
func New(cfg *config.Config, logger *zap.Logger, posts PostSource, used UsedTopics) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{cfg: cfg, logger: logger.Named("topics"), posts: posts, used: used}
}

// Run returns up to topics.batch_size fresh topics. An explicit topic wins
// outright and is never filtered.
func (s *Selector) Run(ctx context.Context, explicit string) ([]Candidate, error) {
	if t := strings.TrimSpace(explicit); t != "" {
		return []Candidate{{Title: t, Source: "flag"}}, nil
	}

	var candidates []Candidate
	for _, theme := range s.cfg.Topics.Themes {
		candidates = append(candidates, Candidate{Title: strings.TrimSpace(theme), Source: "config"})
	}

	if len(s.cfg.Topics.Subreddits) > 0 {
		fromReddit, err := s.fromReddit(ctx)
		if err != nil {
			s.logger.Warn("reddit unavailable, continuing with configured themes", zap.Error(err))
		}
		candidates = append(candidates, fromReddit...)
	}

	used := map[string]bool{}
	if s.used != nil {
		prev, err := s.used.UsedTopics(ctx)
		if err != nil {
			s.logger.Warn("could not read topic history, continuing without dedup", zap.Error(err))
		}
		for _, t := range prev {
			used[Key(t)] = true
		}
	}

	fresh := lo.Filter(lo.UniqBy(candidates, func(c Candidate) string { return Key(c.Title) }),
		func(c Candidate, _ int) bool { return Key(c.Title) != "" && !used[Key(c.Title)] })
	if len(fresh) == 0 {
		return nil, fmt.Errorf("no fresh topics (%d candidates, %d already used)", len(candidates), len(used))
	}
	if len(fresh) > s.cfg.Topics.BatchSize {
		fresh = fresh[:s.cfg.Topics.BatchSize]
	}

	s.logger.Info("✅ topics selected", zap.Int("count", len(fresh)), zap.Strings("topics", lo.Map(fresh, func(c Candidate, _ int) string { return c.Title })))
	return fresh, nil
}

func (s *Selector) fromReddit(ctx context.Context) ([]Candidate, error) {
	if s.posts == nil {
		client, err := NewRedditSource(s.cfg.Topics.UserAgent)
		if err != nil {
			return nil, err
		}
		s.posts = client
	}

	var out []Candidate
	var lastErr error
	for _, sub := range s.cfg.Topics.Subreddits {
		posts, err := s.posts.HotPosts(ctx, sub, s.cfg.Topics.PostLimit)
		if err != nil {
			s.logger.Warn("subreddit scrape failed", zap.String("subreddit", sub), zap.Error(err))
			lastErr = err
			continue
		}
		kept := 0
		for _, p := range posts {
			if p == nil || p.Stickied || p.NSFW || p.Score < s.cfg.Topics.MinScore {
				continue
			}
			out = append(out, Candidate{Title: strings.TrimSpace(p.Title), Source: "r/" + sub, Score: p.Score})
			kept++
		}
		s.logger.Info("🔎 subreddit scraped", zap.String("subreddit", sub), zap.Int("posts", len(posts)), zap.Int("kept", kept))
	}
	// Highest score first within the Reddit block.
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return out, nil
}

// Key normalises a topic for duplicate detection: case-folded, with all
// whitespace removed.
func Key(topic string) string {
	return strings.ToLower(strings.Join(strings.Fields(topic), ""))
}

// RedditSource reads hot posts through the read-only Reddit API
type RedditSource struct {
	client *reddit.Client
}

// NewRedditSource creates an unauthenticated client
func NewRedditSource(userAgent string) (*RedditSource, error) {
	client, err := reddit.NewReadonlyClient(reddit.WithUserAgent(userAgent))
	if err != nil {
		return nil, fmt.Errorf("reddit client: %w", err)
	}
	return &RedditSource{client: client}, nil
}

// HotPosts implements PostSource
func (r *RedditSource) HotPosts(ctx context.Context, subreddit string, limit int) ([]*reddit.Post, error) {
	posts, _, err := r.client.Subreddit.HotPosts(ctx, subreddit, &reddit.ListOptions{Limit: limit})
	return posts, err
}
