package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// SanitizeName keeps letters, digits and a small set of punctuation, drops
// control characters and replaces everything else with an underscore.
func SanitizeName(s string, maxLen int) string {
	cleaned := strings.TrimSpace(strings.Map(func(r rune) rune {
		switch {
		case unicode.IsControl(r):
			return -1
		case unicode.IsLetter(r), unicode.IsDigit(r), strings.ContainsRune(" -_.,()", r):
			return r
		default:
			return '_'
		}
	}, s))

	if runes := []rune(cleaned); maxLen > 0 && len(runes) > maxLen {
		cleaned = string(runes[:maxLen])
	}
	return cleaned
}

func ValidateOutputDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return fmt.Errorf("output dir is required")
	}
	for _, part := range strings.Split(filepath.ToSlash(dir), "/") {
		if part == ".." {
			return fmt.Errorf("output dir cannot contain path traversal")
		}
	}
	if filepath.Clean(dir) != dir {
		return fmt.Errorf("output dir must be a clean path")
	}

	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return fmt.Errorf("output dir does not exist")
	}
	if err != nil {
		return fmt.Errorf("invalid output dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("output dir is not a directory")
	}
	return nil
}

// WriteEDL writes the clips to <dir>/<name>.edl.
func WriteEDL(dir, name string, clips []ResolvedClip, frameRate float64) (*Result, error) {
	if err := ValidateOutputDir(dir); err != nil {
		return nil, err
	}
	if len(clips) == 0 {
		return nil, fmt.Errorf("nothing to export")
	}

	name = SanitizeName(name, maxNameLen)
	if name == "" {
		name = DefaultName
	}
	if frameRate <= 0 {
		frameRate = DefaultFrameRate
	}

	path := filepath.Join(dir, name+".edl")
	if err := os.WriteFile(path, []byte(GenerateEDL(clips, name, frameRate)), 0o644); err != nil {
		return nil, fmt.Errorf("write edl: %w", err)
	}

	total := 0
	for _, c := range clips {
		total += c.DurationMs()
	}
	return &Result{
		Status:     "ok",
		Format:     FormatEDL,
		OutputPath: path,
		ClipCount:  len(clips),
		DurationMs: total,
	}, nil
}
