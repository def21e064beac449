package history

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"shorts-pipeline/types"
)

var csvHeader = []string{"video", "topic", "images", "style", "bgm", "timestamp"}

// AppendCSV adds one row for rec to the post log at path, writing the
// header first when the file is new.
func AppendCSV(path string, rec *types.RunRecord, now time.Time) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	fi, statErr := os.Stat(path)
	isNew := os.IsNotExist(statErr) || (statErr == nil && fi.Size() == 0)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open csv log: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if isNew {
		if err := w.Write(csvHeader); err != nil {
			return err
		}
	}
	row := []string{
		filepath.Base(rec.VideoFile),
		rec.Topic,
		strings.Join(rec.Images, ";"),
		rec.Style,
		rec.BGMPath,
		now.Format(time.DateTime),
	}
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}
