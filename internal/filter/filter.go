// Package filter compiles user expressions that select which trace events
// reach the correlator.
//
// Expressions use the expr language and see one event at a time:
//
//	key, device, pipe      uint64 handles
//	vendor, product        int (0 when absent)
//	status                 int
//	ts                     float, milliseconds since capture start
//	kind, provider         string
//	dispatch, completion   bool
//	interrupt, control     bool
//
// Example: `vendor == 0x046D && interrupt`.
package filter

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/mrzor/pollscope/internal/usbtrace"
)

// Predicate is a compiled event filter.
type Predicate struct {
	program *vm.Program
	rawExpr string
}

// typeEnv declares the variables an expression may reference.
var typeEnv = map[string]interface{}{
	"key":        uint64(0),
	"device":     uint64(0),
	"pipe":       uint64(0),
	"vendor":     0,
	"product":    0,
	"status":     0,
	"ts":         0.0,
	"kind":       "",
	"provider":   "",
	"dispatch":   false,
	"completion": false,
	"interrupt":  false,
	"control":    false,
}

// Compile builds a Predicate. An empty expression yields nil, which
// callers treat as "accept everything".
func Compile(exprStr string) (*Predicate, error) {
	if exprStr == "" {
		return nil, nil
	}

	program, err := expr.Compile(exprStr, expr.Env(typeEnv), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("failed to compile filter expression: %w", err)
	}

	return &Predicate{program: program, rawExpr: exprStr}, nil
}

// String returns the source expression.
func (p *Predicate) String() string {
	return p.rawExpr
}

// Match evaluates the predicate against ev. Evaluation errors reject the
// event.
func (p *Predicate) Match(ev *usbtrace.Event) (bool, error) {
	output, err := expr.Run(p.program, Env(ev))
	if err != nil {
		return false, fmt.Errorf("failed to evaluate filter %q: %w", p.rawExpr, err)
	}
	ok, _ := output.(bool)
	return ok, nil
}

// Env builds the evaluation environment for ev.
func Env(ev *usbtrace.Event) map[string]interface{} {
	transfer := ev.Kind.Transfer()
	return map[string]interface{}{
		"key":        ev.Key,
		"device":     ev.Device,
		"pipe":       ev.Pipe,
		"vendor":     int(ev.VendorID),
		"product":    int(ev.ProductID),
		"status":     int(ev.Status),
		"ts":         ev.Timestamp,
		"kind":       ev.Kind.String(),
		"provider":   ev.Provider,
		"dispatch":   ev.Kind.IsDispatch(),
		"completion": ev.Kind.IsCompletion(),
		"interrupt":  transfer == usbtrace.TransferInterrupt,
		"control":    transfer == usbtrace.TransferControl,
	}
}
