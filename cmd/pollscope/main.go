// pollscope measures USB polling rates from kernel trace captures.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mrzor/pollscope/internal/analysis"
	"github.com/mrzor/pollscope/internal/attributes"
	"github.com/mrzor/pollscope/internal/config"
	"github.com/mrzor/pollscope/internal/eventstream"
	"github.com/mrzor/pollscope/internal/filter"
	"github.com/mrzor/pollscope/internal/grouping"
	"github.com/mrzor/pollscope/internal/logging"
	"github.com/mrzor/pollscope/internal/otel"
	"github.com/mrzor/pollscope/internal/output"
	"github.com/mrzor/pollscope/internal/timesync"
)

// Version information injected by GoReleaser at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

var log = logging.Logger("pollscope")

func main() {
	err := run()
	logging.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// openSource opens the live ring buffer or the capture file and returns
// the name used in reports.
func openSource(cfg *config.Config) (eventstream.Source, string, error) {
	if cfg.Ringbuf != "" {
		src, err := eventstream.NewRingbufSource(cfg.Ringbuf, cfg.Duration)
		if err != nil {
			return nil, "", err
		}
		return src, cfg.Ringbuf, nil
	}

	src, err := eventstream.OpenFile(cfg.Capture, eventstream.Format(cfg.InputFormat))
	if err != nil {
		return nil, "", err
	}
	return src, cfg.Capture, nil
}

// captureOrigin anchors capture time 0 on the wall clock.
func captureOrigin(src eventstream.Source) time.Time {
	if anchored, ok := src.(eventstream.Anchored); ok {
		if origin := anchored.Origin(); !origin.IsZero() {
			return origin
		}
	}
	log.Warnw("capture has no time origin, spans are anchored at the current time")
	return time.Now()
}

// remoteParent builds the parent span context for the analysis span. A
// parent span ID is only usable together with a trace ID.
func remoteParent(traceID trace.TraceID, spanID trace.SpanID) trace.SpanContext {
	if !spanID.IsValid() {
		return trace.SpanContext{}
	}
	if !traceID.IsValid() {
		log.Warnw("ignoring parent span ID without a trace ID", "parent_id", spanID.String())
		return trace.SpanContext{}
	}
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
}

// setupOTEL initializes the provider and the span exporter. The returned
// cleanup flushes pending spans.
func setupOTEL(ctx context.Context, cfg *config.Config, name, runID string, origin time.Time) (*output.OTelExporter, func() error, error) {
	otelCfg, err := config.ParseOTELConfig()
	if err != nil {
		return nil, nil, err
	}
	otelCfg.ServiceVersion = fmt.Sprintf("%s (%s)", version, commit)

	traceEval, err := attributes.NewTraceIDEvaluator(cfg.TraceID)
	if err != nil {
		return nil, nil, err
	}
	parentEval, err := attributes.NewParentIDEvaluator(cfg.ParentID)
	if err != nil {
		return nil, nil, err
	}
	evaluator, err := attributes.NewEvaluator(cfg.CustomAttributes)
	if err != nil {
		return nil, nil, err
	}

	runCtx := attributes.CurrentRun(name)
	traceID, traceWarnings, err := traceEval.EvaluateAndValidate(runCtx)
	if err != nil {
		return nil, nil, err
	}
	spanID, parentWarnings, err := parentEval.EvaluateAndValidate(runCtx)
	if err != nil {
		return nil, nil, err
	}

	tp, err := otel.InitProvider(ctx, otelCfg, traceID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize OTEL provider: %w", err)
	}

	warnings := make([]attribute.KeyValue, 0, len(traceWarnings)+len(parentWarnings))
	warnings = append(warnings, traceWarnings...)
	warnings = append(warnings, parentWarnings...)

	exporter := output.NewOTelExporter(tp.Tracer("pollscope"), timesync.NewCaptureClock(origin), output.OTelOptions{
		Capture:   name,
		RunID:     runID,
		Parent:    remoteParent(traceID, spanID),
		Warnings:  warnings,
		Evaluator: evaluator,
	})

	cleanup := func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return otel.ShutdownProvider(shutdownCtx, tp)
	}
	return exporter, cleanup, nil
}

// interactive reports whether stdin is a terminal a user can answer on.
func interactive() bool {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// promptSelection lists the devices and reads a 1-based choice.
func promptSelection(w io.Writer, in io.Reader, capture *analysis.Capture) (grouping.Selection, error) {
	output.NewTextRenderer(w, false).RenderDevices(capture.Devices())
	fmt.Fprint(w, "  Select: ")

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return grouping.Selection{}, fmt.Errorf("reading device selection: %w", err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil || n < 1 {
		return grouping.Selection{}, fmt.Errorf("%w: %q", grouping.ErrInvalidSelection, strings.TrimSpace(line))
	}
	return capture.Select("", n)
}

// buildReport applies the device selection options.
func buildReport(ctx context.Context, cfg *config.Config, capture *analysis.Capture) (*analysis.Report, error) {
	if cfg.All {
		return capture.ReportAll(ctx, cfg.Verbose)
	}

	sel, err := capture.Select(cfg.Device, cfg.Select)
	if errors.Is(err, grouping.ErrSelectionRequired) {
		if !interactive() {
			return nil, fmt.Errorf("%d devices found: pick one with --device or --select, or use --all", len(capture.Groups))
		}
		// Keep machine-readable stdout clean.
		var w io.Writer = os.Stdout
		if cfg.Format != config.FormatText {
			w = os.Stderr
		}
		sel, err = promptSelection(w, os.Stdin, capture)
	}
	if errors.Is(err, grouping.ErrNoDevices) {
		return nil, fmt.Errorf("no interrupt transfers found in %s", capture.Name)
	}
	if err != nil {
		return nil, err
	}

	return capture.Report(sel, cfg.Verbose)
}

func writeReport(cfg *config.Config, rep *analysis.Report) (err error) {
	if cfg.Output == "" || cfg.Output == "-" {
		return output.WriteReport(os.Stdout, rep, cfg.Format, cfg.Verbose)
	}

	f, err := os.Create(cfg.Output)
	if err != nil {
		return fmt.Errorf("creating report file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing report file: %w", closeErr)
		}
	}()
	return output.WriteReport(f, rep, cfg.Format, cfg.Verbose)
}

func publishReport(cfg *config.Config, envCfg *config.EnvConfig, runID string, rep *analysis.Report) error {
	opts := output.MQTTOptions{
		Broker:   cfg.MQTTBroker,
		Topic:    cfg.MQTTTopic,
		ClientID: "pollscope-" + runID[:8],
		QoS:      cfg.MQTTQoS,
	}
	if envCfg.MQTTTLS() {
		tlsConfig, err := output.NewTLSConfig(envCfg.MQTTCAFile, envCfg.MQTTCertFile, envCfg.MQTTKeyFile)
		if err != nil {
			return err
		}
		opts.TLS = tlsConfig
	}

	publisher, err := output.NewMQTTPublisher(opts)
	if err != nil {
		return err
	}
	defer publisher.Close()
	return publisher.Publish(rep)
}

func run() (err error) {
	envCfg, err := config.ParseEnv()
	if err != nil {
		return err
	}

	cfg, err := config.ParseArgs(os.Args, envCfg)
	if errors.Is(err, config.ErrHelp) {
		fmt.Print(config.Usage(filepath.Base(os.Args[0])))
		return nil
	}
	if err != nil {
		return err
	}

	if err := logging.SetLevel(envCfg.LogLevel); err != nil {
		return err
	}
	for _, w := range cfg.Warnings {
		log.Warn(w)
	}
	runID := uuid.NewString()
	log.Infow("starting pollscope", "version", version, "commit", commit, "built", date, "run_id", runID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, name, err := openSource(cfg)
	if err != nil {
		return err
	}
	var cleanup *multierror.Error
	defer func() {
		if closeErr := src.Close(); closeErr != nil {
			cleanup = multierror.Append(cleanup, fmt.Errorf("closing source: %w", closeErr))
		}
		if cleanupErr := cleanup.ErrorOrNil(); cleanupErr != nil {
			if err == nil {
				err = cleanupErr
			} else {
				log.Errorw("cleanup failed", "error", cleanupErr)
			}
		}
	}()

	predicate, err := filter.Compile(cfg.Filter)
	if err != nil {
		return err
	}

	opts := analysis.Options{MaxOpenAge: cfg.MaxOpenAge}
	if predicate != nil {
		opts.Filter = predicate
	}

	var exporter *output.OTelExporter
	if cfg.OTel {
		var shutdown func() error
		exporter, shutdown, err = setupOTEL(ctx, cfg, name, runID, captureOrigin(src))
		if err != nil {
			return err
		}
		opts.Handler = exporter
		defer func() {
			if shutdownErr := shutdown(); shutdownErr != nil {
				cleanup = multierror.Append(cleanup, shutdownErr)
			}
		}()
	}

	if cfg.Ringbuf != "" {
		fmt.Fprintf(os.Stderr, "Capturing from %s, press Ctrl-C to stop...\n", cfg.Ringbuf)
	}

	capture, runErr := analysis.Run(ctx, src, name, opts)
	var rep *analysis.Report
	if runErr == nil {
		// A signal ends a live capture; the report is still built.
		rep, runErr = buildReport(context.WithoutCancel(ctx), cfg, capture)
	}
	if exporter != nil {
		exporter.Finish(rep, runErr)
		log.Infow("exported transfer spans", "count", exporter.Exported())
	}
	if runErr != nil {
		return runErr
	}

	if err := writeReport(cfg, rep); err != nil {
		return err
	}

	if cfg.MQTTBroker != "" {
		if err := publishReport(cfg, envCfg, runID, rep); err != nil {
			return err
		}
	}
	return nil
}
