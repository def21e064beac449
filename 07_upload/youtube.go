package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"shorts-pipeline/config"
	"shorts-pipeline/types"
)

const (
	maxTitleRunes       = 100
	maxDescriptionBytes = 5000
)

// Uploader handles YouTube video upload via Data API v3
type Uploader struct {
	cfg    *config.Config
	logger *zap.Logger
	opts   []option.ClientOption
}

// New creates a new Uploader. Extra client options replace the OAuth
// client, which tests use to point at a local server.
func New(cfg *config.Config, logger *zap.Logger, opts ...option.ClientOption) *Uploader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Uploader{cfg: cfg, logger: logger.Named("upload"), opts: opts}
}

// Metadata builds the upload metadata for a topic and its narration
func (u *Uploader) Metadata(topic, script string) *types.VideoMetadata {
	yt := u.cfg.Upload.YouTube
	title := Title(topic)
	if !strings.Contains(strings.ToLower(title), "#shorts") && len([]rune(title))+len(" #shorts") <= maxTitleRunes {
		title += " #shorts"
	}
	desc := strings.TrimSpace(script)
	if len(desc) > maxDescriptionBytes {
		desc = truncateBytes(desc, maxDescriptionBytes)
	}
	return &types.VideoMetadata{
		Title:       title,
		Description: desc,
		Tags:        Tags(yt.Tags, topic),
		CategoryID:  yt.CategoryID,
		Visibility:  yt.Visibility,
	}
}

// Run uploads videoFile and returns the video ID and URL
func (u *Uploader) Run(ctx context.Context, videoFile string, metadata *types.VideoMetadata) (string, string, error) {
	opts := u.opts
	if len(opts) == 0 {
		u.logger.Info("🔐 authenticating with YouTube API")
		client, err := oauthClient(ctx)
		if err != nil {
			return "", "", fmt.Errorf("youtube auth: %w", err)
		}
		opts = []option.ClientOption{option.WithHTTPClient(client)}
	}

	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return "", "", fmt.Errorf("youtube service: %w", err)
	}

	yt := u.cfg.Upload.YouTube
	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:                metadata.Title,
			Description:          metadata.Description,
			Tags:                 metadata.Tags,
			CategoryId:           metadata.CategoryID,
			DefaultLanguage:      yt.DefaultLanguage,
			DefaultAudioLanguage: yt.DefaultLanguage,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus:           metadata.Visibility,
			SelfDeclaredMadeForKids: yt.MadeForKids,
			ForceSendFields:         []string{"SelfDeclaredMadeForKids"},
		},
	}

	f, err := os.Open(videoFile)
	if err != nil {
		return "", "", fmt.Errorf("open video file: %w", err)
	}
	defer f.Close()

	if fi, err := f.Stat(); err == nil {
		u.logger.Info("⬆️ uploading", zap.String("title", metadata.Title), zap.Float64("mb", float64(fi.Size())/1024/1024))
	}

	uploaded, err := svc.Videos.Insert([]string{"snippet", "status"}, video).Media(f).Context(ctx).Do()
	if err != nil {
		return "", "", fmt.Errorf("youtube upload: %w", err)
	}

	videoURL := fmt.Sprintf("https://www.youtube.com/shorts/%s", uploaded.Id)
	u.logger.Info("✅ uploaded", zap.String("video_id", uploaded.Id), zap.String("url", videoURL))
	return uploaded.Id, videoURL, nil
}

// oauthClient creates an OAuth2 HTTP client from env credentials
func oauthClient(ctx context.Context) (*http.Client, error) {
	clientID := os.Getenv("YOUTUBE_CLIENT_ID")
	clientSecret := os.Getenv("YOUTUBE_CLIENT_SECRET")
	refreshToken := os.Getenv("YOUTUBE_REFRESH_TOKEN")
	if clientID == "" || clientSecret == "" || refreshToken == "" {
		return nil, fmt.Errorf("YOUTUBE_CLIENT_ID, YOUTUBE_CLIENT_SECRET, or YOUTUBE_REFRESH_TOKEN not set")
	}

	conf := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{youtube.YoutubeUploadScope},
	}
	token := &oauth2.Token{
		RefreshToken: refreshToken,
		Expiry:       time.Now().Add(-time.Hour), // force refresh
	}
	return oauth2.NewClient(ctx, conf.TokenSource(ctx, token)), nil
}

// WriteUploadLog saves the upload result as JSON under dir
func WriteUploadLog(dir, videoID, videoURL, videoFile string, metadata *types.VideoMetadata, now time.Time) (string, error) {
	entry := map[string]any{
		"video_id":    videoID,
		"video_url":   videoURL,
		"title":       metadata.Title,
		"visibility":  metadata.Visibility,
		"uploaded_at": now.UTC().Format(time.RFC3339),
		"video_file":  videoFile,
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("upload_%s.json", now.Format("20060102_150405")))
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return "", err
	}
	return path, os.WriteFile(path, data, 0644)
}
