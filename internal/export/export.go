package export

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	ErrNothingToExport  = errors.New("timeline has no segments")
	ErrInvalidOutputDir = errors.New("invalid output dir")
)

// Export writes the visible segments of src as an EDL. Empty request
// fields fall back to the source's media, its file name and defaultDir.
func Export(src Source, req Request, defaultDir string) (*Result, error) {
	mediaPath := req.MediaPath
	if mediaPath == "" {
		mediaPath = src.VideoURL
	}
	if mediaPath == "" {
		mediaPath = src.FileName
	}

	name := req.Name
	if name == "" {
		name = strings.TrimSuffix(src.FileName, filepath.Ext(src.FileName))
	}

	clips := ClipsFromSegments(src.Segments, mediaPath, SanitizeName(name, maxNameLen))
	if len(clips) == 0 {
		return nil, ErrNothingToExport
	}

	dir := req.OutputDir
	if dir == "" {
		dir = defaultDir
	}
	if err := ValidateOutputDir(dir); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOutputDir, err)
	}

	return WriteEDL(dir, name, clips, req.FrameRate)
}
