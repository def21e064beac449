package script

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"shorts-pipeline/config"
)

const groqEndpoint = "https://api.groq.com/openai/v1/chat/completions"

const systemPrompt = `You write narration for vertical short videos (under 60 seconds).

Rules:
- Short, spoken sentences. Each sentence ends with 。 ！ or ？ (or . ! ? for English topics).
- Open with a hook, close with a question to the viewer.
- No stage directions, no emojis, no hashtags.

You MUST respond with ONLY valid JSON, no markdown, no explanation:
{"title": "...", "narration": "..."}`

// ErrNoScript is returned when no source produced any narration text
var ErrNoScript = errors.New("no script available")

// Writer resolves the narration script for a topic
type Writer struct {
	cfg        *config.Config
	logger     *zap.Logger
	httpClient *http.Client
	endpoint   string
}

// New creates a new script Writer
func New(cfg *config.Config, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{
		cfg:        cfg,
		logger:     logger.Named("script"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		endpoint:   groqEndpoint,
	}
}

type groqRequest struct {
	Model       string        `json:"model"`
	Messages    []groqMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type groqMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type groqResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type scriptJSON struct {
	Title     string `json:"title"`
	Narration string `json:"narration"`
}

// Run returns the narration for topic. Sources in order: explicit file,
// <paths.scripts>/<topic>.txt, Groq.
func (w *Writer) Run(ctx context.Context, topic, explicitPath string) (string, error) {
	if explicitPath != "" {
		text, err := readScript(explicitPath)
		if err != nil {
			return "", fmt.Errorf("read script %s: %w", explicitPath, err)
		}
		w.logger.Info("📄 using script file", zap.String("path", explicitPath))
		return text, nil
	}

	if w.cfg.Paths.Scripts != "" {
		path := filepath.Join(w.cfg.Paths.Scripts, ScriptFileName(topic))
		text, err := readScript(path)
		switch {
		case err == nil:
			w.logger.Info("📄 using stored script", zap.String("path", path))
			return text, nil
		case !errors.Is(err, os.ErrNotExist):
			w.logger.Warn("stored script unreadable, trying Groq", zap.String("path", path), zap.Error(err))
		}
	}

	text, err := w.generate(ctx, topic)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNoScript, err)
	}
	return text, nil
}

func (w *Writer) generate(ctx context.Context, topic string) (string, error) {
	apiKey := os.Getenv("GROQ_API_KEY")
	if apiKey == "" {
		return "", fmt.Errorf("GROQ_API_KEY not set")
	}
	w.logger.Info("✍️ generating script via Groq", zap.String("model", w.cfg.Script.GroqModel))

	reqBody := groqRequest{
		Model: w.cfg.Script.GroqModel,
		Messages: []groqMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildUserPrompt(topic, w.cfg.Script.TargetChars)},
		},
		Temperature: w.cfg.Script.Temperature,
		MaxTokens:   1024,
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("groq request: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var groqResp groqResponse
	if err := json.Unmarshal(respBytes, &groqResp); err != nil {
		return "", fmt.Errorf("parse groq response (HTTP %d): %w", resp.StatusCode, err)
	}
	if groqResp.Error != nil {
		return "", fmt.Errorf("groq error: %s", groqResp.Error.Message)
	}
	if len(groqResp.Choices) == 0 {
		return "", fmt.Errorf("groq returned no choices")
	}

	content := cleanJSON(groqResp.Choices[0].Message.Content)
	var raw scriptJSON
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		// Some models ignore the JSON instruction; plain prose is still usable.
		raw.Narration = content
	}
	text := strings.TrimSpace(raw.Narration)
	if text == "" {
		return "", fmt.Errorf("groq returned empty narration")
	}

	w.logger.Info("✅ script ready", zap.Int("chars", len([]rune(text))), zap.String("title", raw.Title))
	return text, nil
}

func buildUserPrompt(topic string, targetChars int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Write narration for a YouTube Short about: %s\n\n", topic)
	if targetChars > 0 {
		fmt.Fprintf(&sb, "Target length: about %d characters.\n", targetChars)
	}
	sb.WriteString("Write in the language of the topic.\n")
	sb.WriteString("Respond ONLY with valid JSON. No markdown. No explanation.")
	return sb.String()
}

// ScriptFileName maps a topic to its stored script file name
func ScriptFileName(topic string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		if r < 0x20 {
			return -1
		}
		return r
	}, strings.TrimSpace(topic))
	return name + ".txt"
}

func readScript(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("script file is empty")
	}
	return text, nil
}

// cleanJSON strips markdown fences if Groq wraps the response in ```json ... ```
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
