package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	compose "shorts-pipeline/05_compose"
	history "shorts-pipeline/08_history"
	"shorts-pipeline/config"
)

func TestThumbnailSource(t *testing.T) {
	frames := []compose.Frame{
		{Source: "a.png", Substituted: true},
		{Source: "b.png"},
	}
	if got := thumbnailSource(frames, "ph.png"); got != "b.png" {
		t.Errorf("thumbnailSource() = %q, want b.png", got)
	}
	if got := thumbnailSource(frames[:1], "ph.png"); got != "ph.png" {
		t.Errorf("thumbnailSource() = %q, want placeholder", got)
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.Paths = config.PathsConfig{
		Videos:     filepath.Join(root, "videos"),
		Subtitles:  filepath.Join(root, "subtitles"),
		Thumbnails: filepath.Join(root, "thumbs"),
		Scripts:    filepath.Join(root, "scripts"),
		Work:       filepath.Join(root, "work"),
		Logs:       filepath.Join(root, "logs"),
		HistoryDB:  filepath.Join(root, "logs", "history.db"),
		CSVLog:     filepath.Join(root, "logs", "log.csv"),
	}
	return cfg
}

func TestRunDryRunStopsAfterScript(t *testing.T) {
	cfg := testConfig(t)
	scriptPath := filepath.Join(t.TempDir(), "s.txt")
	if err := os.WriteFile(scriptPath, []byte("一文目。二文目。"), 0644); err != nil {
		t.Fatal(err)
	}

	f := flags{topic: "猫", script: scriptPath, dryRun: true}
	if err := run(context.Background(), cfg, f, zap.NewNop()); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	entries, err := os.ReadDir(cfg.Paths.Videos)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("dry run wrote %d videos", len(entries))
	}
	if _, err := os.Stat(cfg.Paths.CSVLog); !os.IsNotExist(err) {
		t.Errorf("dry run touched the csv log: %v", err)
	}
}

func TestRunRecordsFailedTopic(t *testing.T) {
	cfg := testConfig(t)
	t.Setenv("GROQ_API_KEY", "")

	err := run(context.Background(), cfg, flags{topic: "no script anywhere"}, zap.NewNop())
	if err == nil {
		t.Fatal("run() = nil error when no video was produced")
	}

	ledger, err := history.Open(cfg.Paths.HistoryDB, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer ledger.Close()
	runs, err := ledger.Recent(context.Background(), 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].Status != history.StatusFailed || runs[0].Topic != "no script anywhere" {
		t.Errorf("runs = %+v", runs)
	}
	logs, _ := filepath.Glob(filepath.Join(cfg.Paths.Logs, "run_*.json"))
	if len(logs) != 1 {
		t.Errorf("run logs = %v, want 1", logs)
	}
}
