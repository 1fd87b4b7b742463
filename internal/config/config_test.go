package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTraceID = "a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4"

func TestParseArgs_BasicCapture(t *testing.T) {
	cfg, err := ParseArgs([]string{"pollscope", "mouse.jsonl"}, nil)

	require.NoError(t, err)
	assert.Equal(t, "mouse.jsonl", cfg.Capture)
	assert.Equal(t, FormatText, cfg.Format)
	assert.False(t, cfg.Verbose)
	assert.Empty(t, cfg.Device)
	assert.Zero(t, cfg.Select)
	assert.Empty(t, cfg.CustomAttributes)
}

func TestParseArgs_AllOptions(t *testing.T) {
	args := []string{
		"pollscope",
		"-v",
		"-d", "046d:c08b",
		"-f", "vendor == 0x046D",
		"--format", "YAML",
		"-o", "report.yaml",
		"--max-open-age", "250",
		"--input-format", "binary",
		"capture.bin",
	}

	cfg, err := ParseArgs(args, nil)
	require.NoError(t, err)
	assert.True(t, cfg.Verbose)
	assert.Equal(t, "046D:C08B", cfg.Device)
	assert.Equal(t, "vendor == 0x046D", cfg.Filter)
	assert.Equal(t, FormatYAML, cfg.Format)
	assert.Equal(t, "report.yaml", cfg.Output)
	assert.Equal(t, 250.0, cfg.MaxOpenAge)
	assert.Equal(t, "binary", cfg.InputFormat)
	assert.Equal(t, "capture.bin", cfg.Capture)
}

func TestParseArgs_LongFlagEquals(t *testing.T) {
	cfg, err := ParseArgs([]string{"pollscope", "--format=json", "--select=2", "x.jsonl"}, nil)
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, cfg.Format)
	assert.Equal(t, 2, cfg.Select)
}

func TestParseArgs_Ringbuf(t *testing.T) {
	cfg, err := ParseArgs([]string{"pollscope", "--ringbuf", "/sys/fs/bpf/usb_events", "--duration", "1.5"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "/sys/fs/bpf/usb_events", cfg.Ringbuf)
	assert.Equal(t, 1500*time.Millisecond, cfg.Duration)
	assert.Empty(t, cfg.Capture)
}

func TestParseArgs_DoubleDash(t *testing.T) {
	cfg, err := ParseArgs([]string{"pollscope", "--", "-weird-name.jsonl"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "-weird-name.jsonl", cfg.Capture)
}

func TestParseArgs_Help(t *testing.T) {
	_, err := ParseArgs([]string{"pollscope", "x.jsonl", "--help"}, nil)
	assert.ErrorIs(t, err, ErrHelp)
}

func TestParseArgs_OTel(t *testing.T) {
	args := []string{
		"pollscope", "--otel",
		"-t", testTraceID,
		"-p", `env["PARENT_SPAN_ID"]`,
		"-a", "usb.slow=duration_us > 1000",
		"-a", "check=vendor==0x046D",
		"x.jsonl",
	}

	cfg, err := ParseArgs(args, nil)
	require.NoError(t, err)
	assert.True(t, cfg.OTel)
	assert.Equal(t, testTraceID, cfg.TraceID)
	assert.Equal(t, `env["PARENT_SPAN_ID"]`, cfg.ParentID)
	require.Len(t, cfg.CustomAttributes, 2)
	assert.Equal(t, "usb.slow", cfg.CustomAttributes[0].Name)
	assert.Equal(t, "duration_us > 1000", cfg.CustomAttributes[0].Expression)
	assert.Equal(t, "check", cfg.CustomAttributes[1].Name)
	assert.Equal(t, "vendor==0x046D", cfg.CustomAttributes[1].Expression)
}

func TestParseArgs_Errors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr []string
	}{
		{
			name:    "no capture",
			args:    []string{"pollscope"},
			wantErr: []string{"no capture specified"},
		},
		{
			name:    "capture and ringbuf",
			args:    []string{"pollscope", "--ringbuf", "/p", "x.jsonl"},
			wantErr: []string{"mutually exclusive"},
		},
		{
			name:    "two captures",
			args:    []string{"pollscope", "a.jsonl", "b.jsonl"},
			wantErr: []string{"expected one capture file, got 2"},
		},
		{
			name:    "missing value",
			args:    []string{"pollscope", "x.jsonl", "-d"},
			wantErr: []string{"-d requires a value"},
		},
		{
			name:    "bad select",
			args:    []string{"pollscope", "-s", "0", "x.jsonl"},
			wantErr: []string{"-s must be a positive integer"},
		},
		{
			name:    "device and select",
			args:    []string{"pollscope", "-d", "1:2", "-s", "1", "x.jsonl"},
			wantErr: []string{"mutually exclusive"},
		},
		{
			name:    "unknown format",
			args:    []string{"pollscope", "--format", "xml", "x.jsonl"},
			wantErr: []string{`unknown report format "xml"`},
		},
		{
			name:    "duration without ringbuf",
			args:    []string{"pollscope", "--duration", "5", "x.jsonl"},
			wantErr: []string{"--duration only applies to --ringbuf"},
		},
		{
			name:    "otel options without otel",
			args:    []string{"pollscope", "-t", testTraceID, "x.jsonl"},
			wantErr: []string{"require --otel"},
		},
		{
			name:    "unknown option",
			args:    []string{"pollscope", "--bogus", "x.jsonl"},
			wantErr: []string{"unknown option --bogus"},
		},
		{
			name:    "attribute without equals",
			args:    []string{"pollscope", "--otel", "-a", "invalid_no_equals", "x.jsonl"},
			wantErr: []string{"invalid attribute format", "NAME=EXPR"},
		},
		{
			name:    "attribute empty name",
			args:    []string{"pollscope", "--otel", "-a", "=value", "x.jsonl"},
			wantErr: []string{"name cannot be empty"},
		},
		{
			name:    "attribute empty expression",
			args:    []string{"pollscope", "--otel", "-a", "name=", "x.jsonl"},
			wantErr: []string{"expression cannot be empty"},
		},
		{
			name:    "several problems reported together",
			args:    []string{"pollscope", "--format", "xml", "--max-open-age", "-1", "x.jsonl"},
			wantErr: []string{"unknown report format", "--max-open-age"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseArgs(tt.args, nil)
			require.Error(t, err)
			for _, want := range tt.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestParseArgs_EnvDefaults(t *testing.T) {
	env := &EnvConfig{Device: "46d:c08b", Format: "JSON"}

	cfg, err := ParseArgs([]string{"pollscope", "x.jsonl"}, env)
	require.NoError(t, err)
	assert.Equal(t, "046D:C08B", cfg.Device)
	assert.Equal(t, FormatJSON, cfg.Format)

	// Explicit selection wins over the environment device.
	cfg, err = ParseArgs([]string{"pollscope", "-s", "2", "--format", "text", "x.jsonl"}, env)
	require.NoError(t, err)
	assert.Empty(t, cfg.Device)
	assert.Equal(t, 2, cfg.Select)
	assert.Equal(t, FormatText, cfg.Format)
}

func TestParseArgs_MQTT(t *testing.T) {
	cfg, err := ParseArgs([]string{"pollscope", "--mqtt-broker", "tcp://bench:1883", "x.jsonl"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "tcp://bench:1883", cfg.MQTTBroker)
	assert.Equal(t, DefaultMQTTTopic, cfg.MQTTTopic)
	assert.Equal(t, byte(1), cfg.MQTTQoS)

	cfg, err = ParseArgs([]string{"pollscope", "--mqtt-topic=lab/mice", "--mqtt-qos", "2", "x.jsonl"},
		&EnvConfig{MQTTBroker: "ssl://broker:8883"})
	require.NoError(t, err)
	assert.Equal(t, "ssl://broker:8883", cfg.MQTTBroker)
	assert.Equal(t, "lab/mice", cfg.MQTTTopic)
	assert.Equal(t, byte(2), cfg.MQTTQoS)

	_, err = ParseArgs([]string{"pollscope", "--mqtt-topic", "t", "x.jsonl"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--mqtt-topic requires --mqtt-broker")

	_, err = ParseArgs([]string{"pollscope", "--mqtt-broker", "tcp://b:1883", "--mqtt-qos", "3", "x.jsonl"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--mqtt-qos must be 0, 1 or 2")
}

func TestEnvConfig_MQTTTLS(t *testing.T) {
	assert.False(t, (&EnvConfig{}).MQTTTLS())
	assert.True(t, (&EnvConfig{MQTTCAFile: "ca.pem"}).MQTTTLS())
}

func TestParseArgs_DeviceFilter(t *testing.T) {
	tests := []struct {
		name        string
		device      string
		want        string
		wantWarning bool
	}{
		{"vid pid", "46d:c08b", "046D:C08B", false},
		{"unknown identity", "unknown", "Unknown", false},
		{"unparsable falls back", "mouse", "mouse", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseArgs([]string{"pollscope", "-d", tt.device, "x.jsonl"}, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Device)
			if tt.wantWarning {
				require.Len(t, cfg.Warnings, 1)
				assert.Contains(t, cfg.Warnings[0], "most samples")
			} else {
				assert.Empty(t, cfg.Warnings)
			}
		})
	}

	// The environment device goes through the same rules.
	cfg, err := ParseArgs([]string{"pollscope", "x.jsonl"}, &EnvConfig{Device: "UNKNOWN"})
	require.NoError(t, err)
	assert.Equal(t, "Unknown", cfg.Device)
}

func TestNormalizeDevice(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"046d:c08b", "046D:C08B", false},
		{"046D:C08B", "046D:C08B", false},
		{"0x46d:0xC08B", "046D:C08B", false},
		{" 1:2 ", "0001:0002", false},
		{"046dc08b", "", true},
		{"12345:1", "", true},
		{"zz:01", "", true},
		{":01", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeDevice(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseEnv(t *testing.T) {
	t.Setenv("POLLSCOPE_LOG_LEVEL", "debug")
	t.Setenv("POLLSCOPE_DEVICE", "046D:C08B")
	t.Setenv("POLLSCOPE_FORMAT", "yaml")

	cfg, err := ParseEnv()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "046D:C08B", cfg.Device)
	assert.Equal(t, "yaml", cfg.Format)
}

func TestParseEnv_Defaults(t *testing.T) {
	unsetenv(t, "POLLSCOPE_LOG_LEVEL")
	unsetenv(t, "POLLSCOPE_DEVICE")

	cfg, err := ParseEnv()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Empty(t, cfg.Device)
}

func TestOTELConfig_GetEndpoint(t *testing.T) {
	cfg := &OTELConfig{}
	assert.Equal(t, "localhost:4318", cfg.GetEndpoint())

	cfg.ExporterEndpoint = "collector:4318"
	assert.Equal(t, "collector:4318", cfg.GetEndpoint())

	cfg.TracesEndpoint = "traces:4318"
	assert.Equal(t, "traces:4318", cfg.GetEndpoint())
}

func TestOTELConfig_ParseResourceAttributes(t *testing.T) {
	cfg := &OTELConfig{ResourceAttributes: "host.name=bench, rig = a=b ,=skipped,novalue"}
	attrs := cfg.ParseResourceAttributes()

	require.Len(t, attrs, 2)
	assert.Equal(t, "host.name", string(attrs[0].Key))
	assert.Equal(t, "bench", attrs[0].Value.AsString())
	assert.Equal(t, "rig", string(attrs[1].Key))
	assert.Equal(t, "a=b", attrs[1].Value.AsString())
}

func TestOTELConfig_ParseHeaders(t *testing.T) {
	assert.Nil(t, (&OTELConfig{}).ParseHeaders())

	cfg := &OTELConfig{
		Headers:       "Authorization=Bearer%20abc,x-team=usb",
		TracesHeaders: "x-team=input",
	}
	assert.Equal(t, map[string]string{
		"Authorization": "Bearer abc",
		"x-team":        "input",
	}, cfg.ParseHeaders())
}

func TestParseOTELConfig(t *testing.T) {
	unsetenv(t, "OTEL_SERVICE_NAME")
	cfg, err := ParseOTELConfig()
	require.NoError(t, err)
	assert.Equal(t, "pollscope", cfg.ServiceName)
}

// unsetenv removes key for the duration of the test.
func unsetenv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}
