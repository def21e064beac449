package visuals

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/image/font/gofont/goregular"

	"shorts-pipeline/config"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestManualImages(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.JPG", "a.png", "notes.txt", "c.webp", "placeholder.png"} {
		touch(t, filepath.Join(dir, name))
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.png"), 0755); err != nil {
		t.Fatal(err)
	}

	got, err := ManualImages(dir, filepath.Join(dir, "placeholder.png"))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"a.png", "b.JPG", "c.webp"}
	if len(got) != len(want) {
		t.Fatalf("ManualImages() = %v, want %v", got, want)
	}
	for i := range want {
		if filepath.Base(got[i]) != want[i] {
			t.Errorf("image %d = %s, want %s", i, got[i], want[i])
		}
	}
}

type fakeFetcher struct {
	fail    map[int]bool
	prompts []string
}

func (f *fakeFetcher) Fetch(_ context.Context, prompt string, seed int, outFile string) error {
	f.prompts = append(f.prompts, prompt)
	if f.fail[len(f.prompts)-1] {
		return errors.New("timeout")
	}
	return os.WriteFile(outFile, []byte("img"), 0644)
}

func TestRunTopsUpWithGeneratedImages(t *testing.T) {
	manual := t.TempDir()
	touch(t, filepath.Join(manual, "01.png"))

	cfg := config.Default()
	cfg.Images.Count = 4
	cfg.Images.Placeholder = "/assets/placeholder.png"
	fetcher := &fakeFetcher{fail: map[int]bool{1: true}}
	core, logs := observer.New(zapcore.WarnLevel)
	c := New(cfg, zap.New(core), fetcher)

	slides, err := c.Run(context.Background(), Request{
		Topic:     "猫",
		Style:     "watercolor",
		Sentences: []string{"一。", "二。"},
		ManualDir: manual,
		OutputDir: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(slides) != 4 {
		t.Fatalf("len(slides) = %d, want 4", len(slides))
	}
	if filepath.Base(slides[0].Path) != "01.png" {
		t.Errorf("slide 0 = %s, want manual image first", slides[0].Path)
	}
	if slides[2].Path != cfg.Images.Placeholder {
		t.Errorf("slide 2 = %s, want placeholder after failed generation", slides[2].Path)
	}
	for i, s := range slides {
		if s.Ordinal != i {
			t.Errorf("slide %d ordinal = %d", i, s.Ordinal)
		}
	}
	if !strings.Contains(fetcher.prompts[1], "二。") || !strings.Contains(fetcher.prompts[0], "watercolor") {
		t.Errorf("prompts = %q", fetcher.prompts)
	}
	if logs.FilterMessage("image generation failed, using placeholder").Len() != 1 {
		t.Errorf("warnings = %v", logs.All())
	}
}

func TestRunWithoutGeneration(t *testing.T) {
	cfg := config.Default()
	cfg.Images.Generate = false
	c := New(cfg, nil, &fakeFetcher{})
	slides, err := c.Run(context.Background(), Request{Topic: "x", ManualDir: filepath.Join(t.TempDir(), "missing")})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(slides) != 0 {
		t.Errorf("slides = %v, want none", slides)
	}
}

func TestPollinationsFetch(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		gotPath, gotQuery = r.URL.Path, r.URL.RawQuery
		rw.Header().Set("Content-Type", "image/jpeg")
		rw.Write(make([]byte, 512))
	}))
	defer srv.Close()

	p := NewPollinationsFetcher(1080, 1920, "flux", nil)
	p.baseURL = srv.URL + "/prompt/"
	out := filepath.Join(t.TempDir(), "a.jpg")
	if err := p.Fetch(context.Background(), "cat, night", 7, out); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if gotPath != "/prompt/cat, night" {
		t.Errorf("path = %q", gotPath)
	}
	if gotQuery != "width=1080&height=1920&nologo=true&model=flux&seed=7" {
		t.Errorf("query = %q", gotQuery)
	}
	if fi, err := os.Stat(out); err != nil || fi.Size() != 512 {
		t.Errorf("output = %v, %v", fi, err)
	}
}

func TestPollinationsRejectsTinyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.Write([]byte("error"))
	}))
	defer srv.Close()

	p := NewPollinationsFetcher(8, 8, "", nil)
	p.baseURL = srv.URL + "/"
	p.backoff = 0
	out := filepath.Join(t.TempDir(), "a.jpg")
	if err := p.Fetch(context.Background(), "x", 1, out); err == nil {
		t.Fatal("Fetch() = nil error for tiny response")
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("output written for failed fetch: %v", err)
	}
}

func TestSelectBGM(t *testing.T) {
	dir := t.TempDir()
	explicit := filepath.Join(dir, "mine.mp3")
	second := filepath.Join(dir, "default.mp3")
	touch(t, explicit)
	touch(t, second)
	missing := filepath.Join(dir, "missing.mp3")

	tests := []struct {
		name       string
		explicit   string
		candidates []string
		want       string
	}{
		{"explicit", explicit, []string{second}, explicit},
		{"missing explicit falls back", missing, []string{missing, second}, second},
		{"nothing", "", []string{missing}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SelectBGM(tt.explicit, tt.candidates, nil); got != tt.want {
				t.Errorf("SelectBGM() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveFont(t *testing.T) {
	dir := t.TempDir()
	ttf := filepath.Join(dir, "go.ttf")
	if err := os.WriteFile(ttf, goregular.TTF, 0644); err != nil {
		t.Fatal(err)
	}
	broken := filepath.Join(dir, "Broken Sans.ttf")
	touch(t, broken)

	tests := []struct {
		font string
		want Font
	}{
		{ttf, Font{Path: ttf, Family: "Go"}},
		{broken, Font{Path: broken, Family: "Broken Sans"}},
		{filepath.Join(dir, "missing.ttf"), Font{Family: "Arial"}},
		{"", Font{Family: "Arial"}},
	}
	for _, tt := range tests {
		cfg := config.Default().Subtitles
		cfg.Font = tt.font
		if got := ResolveFont(cfg, nil); got != tt.want {
			t.Errorf("ResolveFont(%q) = %+v, want %+v", tt.font, got, tt.want)
		}
	}
}
