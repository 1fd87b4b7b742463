package output

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/mrzor/pollscope/internal/config"
)

func TestWriteReport_YAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, sampleReport(), config.FormatYAML, false))

	var decoded struct {
		Capture   string `yaml:"capture"`
		Interrupt int    `yaml:"interrupt_transfers"`
		Reports   []struct {
			Reason string `yaml:"reason"`
			Stats  struct {
				PollRateHz float64 `yaml:"poll_rate_hz"`
				Histogram  []struct {
					Label   string `yaml:"label"`
					Outlier bool   `yaml:"outlier"`
				} `yaml:"histogram"`
			} `yaml:"stats"`
		} `yaml:"reports"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "trace.jsonl", decoded.Capture)
	assert.Equal(t, 12345, decoded.Interrupt)
	require.Len(t, decoded.Reports, 1)
	assert.Equal(t, "only device", decoded.Reports[0].Reason)
	assert.Equal(t, 1000.0, decoded.Reports[0].Stats.PollRateHz)
	require.Len(t, decoded.Reports[0].Stats.Histogram, 3)
	assert.True(t, decoded.Reports[0].Stats.Histogram[0].Outlier)
	assert.Contains(t, buf.String(), "\n  - device:")
}

func TestWriteReport_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, sampleReport(), config.FormatJSON, true))

	var decoded struct {
		Capture string `json:"capture"`
		Reports []struct {
			Device struct {
				Identity string `json:"identity"`
			} `json:"device"`
			Stats struct {
				PollRateHz float64 `json:"poll_rate_hz"`
				Gaps       struct {
					Over5ms int `json:"over_5ms"`
				} `json:"gaps"`
			} `json:"stats"`
			Diagnostics struct {
				ControlCount int `json:"control_count"`
			} `json:"diagnostics"`
		} `json:"reports"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "trace.jsonl", decoded.Capture)
	require.Len(t, decoded.Reports, 1)
	assert.Equal(t, "046D:C08B", decoded.Reports[0].Device.Identity)
	assert.Equal(t, 1000.0, decoded.Reports[0].Stats.PollRateHz)
	assert.Equal(t, 1, decoded.Reports[0].Stats.Gaps.Over5ms)
	assert.Equal(t, 2, decoded.Reports[0].Diagnostics.ControlCount)
}

func TestWriteReport_Text(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, sampleReport(), config.FormatText, false))
	assert.Contains(t, buf.String(), "Poll Rate:  1000 Hz")
}

func TestWriteReport_UnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	err := WriteReport(&buf, sampleReport(), "xml", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xml")
}
