// Package attributes evaluates user expressions that decorate exported
// spans: custom transfer attributes, the trace ID and the parent span ID.
//
// Custom attribute expressions see one completed transfer:
//
//	key, device, pipe     uint64 handles
//	vendor, product       int
//	status                int
//	start, end            float, ms since capture start
//	duration_us           float
//	transfer, identity    string
//
// Trace and parent ID expressions see the run: `env` (process environment)
// and `capture` (input path or pinned map). A literal hex ID of the right
// length is used as is.
//
// Three evaluators:
//   - Evaluator: Evaluates custom attribute expressions
//   - TraceIDEvaluator: Evaluates and validates trace ID expressions (32 hex chars)
//   - ParentIDEvaluator: Evaluates and validates parent span ID expressions (16 hex chars)
//
// Invalid trace IDs are hashed with SHA-256 to produce valid IDs.
// Invalid parent IDs result in a null parent (zero span ID).
package attributes
