package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/mrzor/pollscope/internal/grouping"
)

// Report formats.
const (
	FormatText = "text"
	FormatYAML = "yaml"
	FormatJSON = "json"
)

// ErrHelp is returned when -h or --help is given.
var ErrHelp = errors.New("help requested")

// CustomAttribute represents a custom span attribute defined by an expression
type CustomAttribute struct {
	Name       string
	Expression string
}

// Config holds the parsed command-line configuration
type Config struct {
	// Capture is the trace file to analyze. Empty when Ringbuf is set.
	Capture string
	// InputFormat forces the capture encoding ("jsonl" or "binary").
	InputFormat string
	// Ringbuf is the path of a pinned eBPF ring buffer for live capture.
	Ringbuf string
	// Duration bounds a live capture. Zero runs until interrupted.
	Duration time.Duration

	Verbose bool
	// Device is a normalized "VVVV:PPPP" filter, "Unknown", or empty. A
	// value that is neither is kept as given and matches no device.
	Device string
	// Select is the 1-based device list index chosen up front, or 0.
	Select int
	// All reports every device instead of a single selection.
	All bool
	// Filter is an event filter expression.
	Filter string
	// MaxOpenAge evicts dispatches open longer than this many ms. Zero disables.
	MaxOpenAge float64

	// Format is one of FormatText, FormatYAML, FormatJSON.
	Format string
	// Output is the report path. Empty or "-" means stdout.
	Output string

	// OTel enables span export.
	OTel bool
	// TraceID is the OpenTelemetry trace ID or an expression producing one
	TraceID string
	// ParentID is the parent span ID or an expression producing one
	ParentID string
	// CustomAttributes are expressions evaluated per exported transfer
	CustomAttributes []CustomAttribute

	// MQTTBroker receives the JSON report when set, e.g. tcp://host:1883.
	MQTTBroker string
	MQTTTopic  string
	MQTTQoS    byte

	// Warnings are non-fatal problems found by Validate.
	Warnings []string
}

// DefaultMQTTTopic is used when --mqtt-broker is given without a topic.
const DefaultMQTTTopic = "pollscope/reports"

// Usage returns the command-line help text.
func Usage(programName string) string {
	return fmt.Sprintf(`Usage: %[1]s [options] <capture>
       %[1]s [options] --ringbuf <pinned-map> [--duration <seconds>]

Analyze USB polling behaviour from a kernel trace.

Options:
  -v, --verbose              Show diagnostics (gap chart, durations, largest gaps, control interference)
  -d, --device VID:PID       Analyze the device with this identity
  -s, --select N             Analyze the N-th device of the list
      --all                  Report every device
  -f, --filter EXPR          Only correlate events matching EXPR
      --input-format FMT     Capture encoding: jsonl or binary (default: by extension)
      --format FMT           Report format: text, yaml or json (default: text)
  -o, --output PATH          Write the report to PATH
      --ringbuf PATH         Read live events from a pinned eBPF ring buffer
      --duration SECONDS     Stop a live capture after SECONDS
      --max-open-age MS      Drop dispatches still open after MS milliseconds
      --otel                 Export transfers as OpenTelemetry spans
  -t, --trace-id ID|EXPR     Trace ID for exported spans
  -p, --parent-id ID|EXPR    Parent span ID for exported spans
  -a, --attribute NAME=EXPR  Custom attribute on each exported transfer span
      --mqtt-broker URL      Publish the JSON report to this MQTT broker
      --mqtt-topic TOPIC     Topic for the published report (default: %[2]s)
      --mqtt-qos N           Publish QoS: 0, 1 or 2 (default: 1)
  -h, --help                 Show this help

Example: %[1]s -v -d 046D:C08B mouse.jsonl
`, programName, DefaultMQTTTopic)
}

// ParseArgs parses command-line arguments and returns a Config.
// Values from env, if non-nil, fill in options not given on the command
// line. All problems found are reported together.
func ParseArgs(args []string, env *EnvConfig) (*Config, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("no arguments provided")
	}

	cfg := &Config{MQTTQoS: 1}
	var merr *multierror.Error
	var positional []string

	value := func(i *int) (string, bool) {
		flag := args[*i]
		if *i+1 >= len(args) {
			merr = multierror.Append(merr, fmt.Errorf("%s requires a value", flag))
			return "", false
		}
		*i++
		return args[*i], true
	}

	args = splitLongFlags(args)
	for i := 1; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-h", "--help":
			return nil, ErrHelp
		case "-v", "--verbose":
			cfg.Verbose = true
		case "--all":
			cfg.All = true
		case "--otel":
			cfg.OTel = true
		case "-d", "--device":
			if v, ok := value(&i); ok {
				cfg.Device = v
			}
		case "-s", "--select":
			if v, ok := value(&i); ok {
				n, err := strconv.Atoi(v)
				if err != nil || n < 1 {
					merr = multierror.Append(merr, fmt.Errorf("%s must be a positive integer, got %q", arg, v))
				} else {
					cfg.Select = n
				}
			}
		case "-f", "--filter":
			if v, ok := value(&i); ok {
				cfg.Filter = v
			}
		case "--input-format":
			if v, ok := value(&i); ok {
				cfg.InputFormat = strings.ToLower(v)
			}
		case "--format":
			if v, ok := value(&i); ok {
				cfg.Format = strings.ToLower(v)
			}
		case "-o", "--output":
			if v, ok := value(&i); ok {
				cfg.Output = v
			}
		case "--ringbuf":
			if v, ok := value(&i); ok {
				cfg.Ringbuf = v
			}
		case "--duration":
			if v, ok := value(&i); ok {
				secs, err := strconv.ParseFloat(v, 64)
				if err != nil || secs <= 0 {
					merr = multierror.Append(merr, fmt.Errorf("--duration must be a positive number of seconds, got %q", v))
				} else {
					cfg.Duration = time.Duration(secs * float64(time.Second))
				}
			}
		case "--max-open-age":
			if v, ok := value(&i); ok {
				ms, err := strconv.ParseFloat(v, 64)
				if err != nil || ms < 0 {
					merr = multierror.Append(merr, fmt.Errorf("--max-open-age must be a non-negative number of milliseconds, got %q", v))
				} else {
					cfg.MaxOpenAge = ms
				}
			}
		case "-t", "--trace-id":
			if v, ok := value(&i); ok {
				cfg.TraceID = v
			}
		case "-p", "--parent-id":
			if v, ok := value(&i); ok {
				cfg.ParentID = v
			}
		case "-a", "--attribute":
			if v, ok := value(&i); ok {
				attr, err := parseCustomAttribute(v)
				if err != nil {
					merr = multierror.Append(merr, err)
				} else {
					cfg.CustomAttributes = append(cfg.CustomAttributes, attr)
				}
			}
		case "--mqtt-broker":
			if v, ok := value(&i); ok {
				cfg.MQTTBroker = v
			}
		case "--mqtt-topic":
			if v, ok := value(&i); ok {
				cfg.MQTTTopic = v
			}
		case "--mqtt-qos":
			if v, ok := value(&i); ok {
				qos, err := strconv.ParseUint(v, 10, 8)
				if err != nil || qos > 2 {
					merr = multierror.Append(merr, fmt.Errorf("--mqtt-qos must be 0, 1 or 2, got %q", v))
				} else {
					cfg.MQTTQoS = byte(qos)
				}
			}
		case "--":
			positional = append(positional, args[i+1:]...)
			i = len(args)
		default:
			if strings.HasPrefix(arg, "-") && arg != "-" {
				merr = multierror.Append(merr, fmt.Errorf("unknown option %s", arg))
				continue
			}
			positional = append(positional, arg)
		}
	}

	switch {
	case len(positional) > 1:
		merr = multierror.Append(merr, fmt.Errorf("expected one capture file, got %d", len(positional)))
	case len(positional) == 1:
		cfg.Capture = positional[0]
	}

	if env != nil {
		if cfg.Device == "" && cfg.Select == 0 && !cfg.All {
			cfg.Device = env.Device
		}
		if cfg.Format == "" {
			cfg.Format = strings.ToLower(env.Format)
		}
		if cfg.MQTTBroker == "" {
			cfg.MQTTBroker = env.MQTTBroker
		}
	}

	if err := cfg.Validate(); err != nil {
		merr = multierror.Append(merr, err)
	}

	if err := merr.ErrorOrNil(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// splitLongFlags rewrites "--name=value" into "--name", "value" up to a
// "--" terminator.
func splitLongFlags(args []string) []string {
	out := make([]string, 0, len(args))
	for i, arg := range args {
		if arg == "--" {
			return append(out, args[i:]...)
		}
		if i > 0 && strings.HasPrefix(arg, "--") {
			if name, val, ok := strings.Cut(arg, "="); ok {
				out = append(out, name, val)
				continue
			}
		}
		out = append(out, arg)
	}
	return out
}

// Validate checks option combinations and normalizes the device filter.
func (c *Config) Validate() error {
	var merr *multierror.Error

	switch {
	case c.Capture == "" && c.Ringbuf == "":
		merr = multierror.Append(merr, fmt.Errorf("no capture specified: give a capture file or --ringbuf"))
	case c.Capture != "" && c.Ringbuf != "":
		merr = multierror.Append(merr, fmt.Errorf("a capture file and --ringbuf are mutually exclusive"))
	}

	if c.Duration > 0 && c.Ringbuf == "" {
		merr = multierror.Append(merr, fmt.Errorf("--duration only applies to --ringbuf"))
	}

	if c.Format == "" {
		c.Format = FormatText
	}
	switch c.Format {
	case FormatText, FormatYAML, FormatJSON:
	default:
		merr = multierror.Append(merr, fmt.Errorf("unknown report format %q (want text, yaml or json)", c.Format))
	}

	switch c.InputFormat {
	case "", "jsonl", "binary":
	default:
		merr = multierror.Append(merr, fmt.Errorf("unknown input format %q (want jsonl or binary)", c.InputFormat))
	}

	if c.Device != "" {
		normalized, err := NormalizeDevice(c.Device)
		switch {
		case strings.EqualFold(strings.TrimSpace(c.Device), grouping.UnknownIdentity):
			c.Device = grouping.UnknownIdentity
		case err != nil:
			c.Warnings = append(c.Warnings,
				fmt.Sprintf("device filter matches no identity (%v); the device with the most samples is used", err))
		default:
			c.Device = normalized
		}
	}

	selectors := 0
	for _, set := range []bool{c.Device != "", c.Select > 0, c.All} {
		if set {
			selectors++
		}
	}
	if selectors > 1 {
		merr = multierror.Append(merr, fmt.Errorf("--device, --select and --all are mutually exclusive"))
	}

	if (c.TraceID != "" || c.ParentID != "" || len(c.CustomAttributes) > 0) && !c.OTel {
		merr = multierror.Append(merr, fmt.Errorf("--trace-id, --parent-id and --attribute require --otel"))
	}

	switch {
	case c.MQTTBroker != "" && c.MQTTTopic == "":
		c.MQTTTopic = DefaultMQTTTopic
	case c.MQTTBroker == "" && c.MQTTTopic != "":
		merr = multierror.Append(merr, fmt.Errorf("--mqtt-topic requires --mqtt-broker"))
	}

	return merr.ErrorOrNil()
}

// NormalizeDevice parses "VID:PID" (hex, optional 0x prefixes) and returns
// it as upper-case "VVVV:PPPP".
func NormalizeDevice(s string) (string, error) {
	vid, pid, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return "", fmt.Errorf("invalid device %q: want VID:PID", s)
	}

	v, err := parseHex16(vid)
	if err != nil {
		return "", fmt.Errorf("invalid vendor id in %q: %w", s, err)
	}
	p, err := parseHex16(pid)
	if err != nil {
		return "", fmt.Errorf("invalid product id in %q: %w", s, err)
	}
	return fmt.Sprintf("%04X:%04X", v, p), nil
}

func parseHex16(s string) (uint16, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" || len(s) > 4 {
		return 0, fmt.Errorf("want 1 to 4 hex digits, got %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("not hexadecimal: %q", s)
	}
	return uint16(v), nil
}

// parseCustomAttribute splits NAME=EXPR at the first '='.
func parseCustomAttribute(s string) (CustomAttribute, error) {
	name, expression, ok := strings.Cut(s, "=")
	if !ok {
		return CustomAttribute{}, fmt.Errorf("invalid attribute format %q: expected NAME=EXPR", s)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return CustomAttribute{}, fmt.Errorf("invalid attribute %q: name cannot be empty", s)
	}
	if strings.TrimSpace(expression) == "" {
		return CustomAttribute{}, fmt.Errorf("invalid attribute %q: expression cannot be empty", s)
	}
	return CustomAttribute{Name: name, Expression: expression}, nil
}
