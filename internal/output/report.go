package output

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/mrzor/pollscope/internal/analysis"
	"github.com/mrzor/pollscope/internal/config"
)

// WriteReport serializes rep to w in the given format. FormatText uses
// TextRenderer.
func WriteReport(w io.Writer, rep *analysis.Report, format string, verbose bool) error {
	switch format {
	case config.FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rep); err != nil {
			return fmt.Errorf("failed to encode YAML report: %w", err)
		}
		return enc.Close()
	case config.FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			return fmt.Errorf("failed to encode JSON report: %w", err)
		}
		return nil
	case config.FormatText, "":
		NewTextRenderer(w, verbose).Render(rep)
		return nil
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}
