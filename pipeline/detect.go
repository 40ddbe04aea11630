package pipeline

import (
	"path/filepath"
	"strings"
)

// DetectFormat classifies a path by its extension, case-insensitively.
func DetectFormat(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".fit":
		return FormatFIT, nil
	case ".tcx":
		return FormatTCX, nil
	case ".csv":
		return FormatCSV, nil
	default:
		return "", &UnsupportedFormatError{Ext: filepath.Ext(path)}
	}
}
