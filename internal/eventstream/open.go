package eventstream

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Format names a capture file encoding.
type Format string

// Capture formats.
const (
	FormatAuto   Format = ""
	FormatJSONL  Format = "jsonl"
	FormatBinary Format = "binary"
)

// DetectFormat guesses the format of a capture from its file name.
// Unknown extensions are read as JSON Lines.
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".bin", ".raw", ".pscap":
		return FormatBinary
	default:
		return FormatJSONL
	}
}

// OpenFile opens a capture file as a Source. The file's modification time
// becomes the source Origin, since exports carry no absolute time.
func OpenFile(path string, format Format) (Source, error) {
	if format == FormatAuto {
		format = DetectFormat(path)
	}

	f, err := os.Open(path) //nolint:gosec // Reading user-supplied capture files is the purpose
	if err != nil {
		return nil, fmt.Errorf("opening capture: %w", err)
	}

	var origin time.Time
	if info, err := f.Stat(); err == nil {
		origin = info.ModTime()
	}

	switch format {
	case FormatBinary:
		src := NewBinarySource(f)
		src.origin = origin
		return src, nil
	case FormatJSONL:
		src := NewJSONLSource(f)
		src.origin = origin
		return src, nil
	default:
		_ = f.Close() //nolint:errcheck // Best-effort cleanup in error path
		return nil, fmt.Errorf("unknown capture format %q", format)
	}
}
