package visuals

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/image/font/sfnt"

	"shorts-pipeline/config"
)

// SelectBGM picks the background track: the explicit path when it exists,
// else the first existing default candidate, else "" (no BGM).
func SelectBGM(explicit string, candidates []string, logger *zap.Logger) string {
	if logger == nil {
		logger = zap.NewNop()
	}
	if explicit != "" {
		if fileExists(explicit) {
			return explicit
		}
		logger.Warn("BGM file not found, trying defaults", zap.String("path", explicit))
	}
	for _, c := range candidates {
		if fileExists(c) {
			logger.Info("🎵 using default BGM", zap.String("path", c))
			return c
		}
	}
	logger.Warn("no BGM found, continuing without BGM")
	return ""
}

// Font is the resolved subtitle font. Path is empty when the renderer
// should look the family up among system fonts.
type Font struct {
	Path   string
	Family string
}

// ResolveFont uses subtitles.font when the file exists, reading its family
// name from the name table; otherwise it falls back to the configured
// family name.
func ResolveFont(cfg config.SubtitlesConfig, logger *zap.Logger) Font {
	if logger == nil {
		logger = zap.NewNop()
	}
	fallback := Font{Family: cfg.FallbackFont}
	if cfg.Font == "" {
		return fallback
	}
	data, err := os.ReadFile(cfg.Font)
	if err != nil {
		logger.Warn("subtitle font not found, using fallback font",
			zap.String("font", cfg.Font), zap.String("fallback", cfg.FallbackFont), zap.Error(err))
		return fallback
	}
	family, err := FamilyName(data)
	if err != nil {
		// The file still goes to fontsdir; libass matches on the stem as a last resort.
		family = strings.TrimSuffix(filepath.Base(cfg.Font), filepath.Ext(cfg.Font))
		logger.Warn("could not read font family name", zap.String("font", cfg.Font), zap.Error(err))
	}
	return Font{Path: cfg.Font, Family: family}
}

// FamilyName reads the family name of a TrueType/OpenType font
func FamilyName(data []byte) (string, error) {
	f, err := sfnt.Parse(data)
	if err != nil {
		return "", err
	}
	return f.Name(nil, sfnt.NameIDFamily)
}

func fileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}
