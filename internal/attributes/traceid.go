package attributes

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RunContext is what trace and parent ID expressions are evaluated against.
type RunContext struct {
	Environ map[string]string
	Capture string
}

// CurrentRun captures the process environment for capture.
func CurrentRun(capture string) RunContext {
	environ := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			environ[k] = v
		}
	}
	return RunContext{Environ: environ, Capture: capture}
}

func (r RunContext) env() map[string]interface{} {
	environ := r.Environ
	if environ == nil {
		environ = map[string]string{}
	}
	return map[string]interface{}{
		"env":     environ,
		"capture": r.Capture,
	}
}

var runTypeEnv = map[string]interface{}{
	"env":     map[string]string{},
	"capture": "",
}

// idProgram is either a literal ID or a compiled expression.
type idProgram struct {
	literal string
	program *vm.Program
}

func compileID(exprStr string, hexLen int, what string) (*idProgram, error) {
	if exprStr == "" {
		return &idProgram{}, nil
	}
	if isHex(exprStr, hexLen) {
		return &idProgram{literal: strings.ToLower(exprStr)}, nil
	}

	program, err := expr.Compile(exprStr, expr.Env(runTypeEnv))
	if err != nil {
		return nil, fmt.Errorf("failed to compile %s expression: %w", what, err)
	}
	return &idProgram{program: program}, nil
}

// eval returns the textual result, or "" when nothing is configured.
func (p *idProgram) eval(run RunContext, what string) (string, error) {
	if p.literal != "" {
		return p.literal, nil
	}
	if p.program == nil {
		return "", nil
	}
	output, err := expr.Run(p.program, run.env())
	if err != nil {
		return "", fmt.Errorf("failed to evaluate %s expression: %w", what, err)
	}
	return fmt.Sprint(output), nil
}

func isHex(s string, n int) bool {
	if len(s) != n {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// TraceIDEvaluator handles evaluation and validation of trace ID expressions.
type TraceIDEvaluator struct {
	id *idProgram
}

// NewTraceIDEvaluator creates a new trace ID evaluator.
// If exprStr is empty, the evaluator yields a zero trace ID and the SDK
// generates one.
func NewTraceIDEvaluator(exprStr string) (*TraceIDEvaluator, error) {
	id, err := compileID(exprStr, 32, "trace-id")
	if err != nil {
		return nil, err
	}
	return &TraceIDEvaluator{id: id}, nil
}

// EvaluateAndValidate evaluates the trace-id expression and validates the result.
// Returns the trace ID, any warnings to attach to the span, and an error.
func (e *TraceIDEvaluator) EvaluateAndValidate(run RunContext) (trace.TraceID, []attribute.KeyValue, error) {
	resultStr, err := e.id.eval(run, "trace-id")
	if err != nil || resultStr == "" {
		return trace.TraceID{}, nil, err
	}

	if len(resultStr) == 32 {
		if traceID, err := trace.TraceIDFromHex(resultStr); err == nil {
			return traceID, nil, nil
		}
	}

	// Not a usable ID: hash it and keep the first 16 bytes.
	hash := sha256.Sum256([]byte(resultStr))
	var traceID trace.TraceID
	copy(traceID[:], hash[:16])

	warnings := []attribute.KeyValue{
		attribute.String("_trace_id_expr_result", resultStr),
		attribute.String("_trace_id_invalid_warning", fmt.Sprintf("Expression result %q is not a valid 32-char hex trace ID, used SHA-256 hash instead", resultStr)),
	}
	return traceID, warnings, nil
}

// ParentIDEvaluator handles evaluation and validation of parent span ID expressions.
type ParentIDEvaluator struct {
	id *idProgram
}

// NewParentIDEvaluator creates a new parent ID evaluator.
// If exprStr is empty, the evaluator returns no parent ID (zero span ID).
func NewParentIDEvaluator(exprStr string) (*ParentIDEvaluator, error) {
	id, err := compileID(exprStr, 16, "parent-id")
	if err != nil {
		return nil, err
	}
	return &ParentIDEvaluator{id: id}, nil
}

// EvaluateAndValidate evaluates the parent-id expression and validates the result.
// Invalid results yield a zero span ID and warnings.
func (e *ParentIDEvaluator) EvaluateAndValidate(run RunContext) (trace.SpanID, []attribute.KeyValue, error) {
	resultStr, err := e.id.eval(run, "parent-id")
	if err != nil || resultStr == "" {
		return trace.SpanID{}, nil, err
	}

	if len(resultStr) == 16 {
		if spanID, err := trace.SpanIDFromHex(resultStr); err == nil {
			return spanID, nil, nil
		}
	}

	warnings := []attribute.KeyValue{
		attribute.String("_parent_id_expr_result", resultStr),
		attribute.String("_parent_id_invalid_warning", fmt.Sprintf("Expression result %q is not a valid 16-char hex span ID, using null parent ID instead", resultStr)),
	}
	return trace.SpanID{}, warnings, nil
}
