package attributes

import (
	"fmt"
	"reflect"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mrzor/pollscope/internal/config"
	"github.com/mrzor/pollscope/internal/correlate"
	"github.com/mrzor/pollscope/internal/logging"
)

var log = logging.Logger("attributes")

// transferTypeEnv declares the variables of a custom attribute expression.
var transferTypeEnv = map[string]interface{}{
	"key":         uint64(0),
	"device":      uint64(0),
	"pipe":        uint64(0),
	"vendor":      0,
	"product":     0,
	"status":      0,
	"start":       0.0,
	"end":         0.0,
	"duration_us": 0.0,
	"transfer":    "",
	"identity":    "",
}

// Evaluator handles compilation and evaluation of custom attribute expressions.
type Evaluator struct {
	customAttrs   []config.CustomAttribute
	compiledExprs []*vm.Program
}

// NewEvaluator creates a new attribute evaluator.
// It pre-compiles all custom attribute expressions.
func NewEvaluator(customAttrs []config.CustomAttribute) (*Evaluator, error) {
	compiledExprs := make([]*vm.Program, len(customAttrs))
	for i, attr := range customAttrs {
		program, err := expr.Compile(attr.Expression, expr.Env(transferTypeEnv))
		if err != nil {
			return nil, fmt.Errorf("failed to compile expression for attribute %q: %w", attr.Name, err)
		}
		compiledExprs[i] = program
	}

	return &Evaluator{
		customAttrs:   customAttrs,
		compiledExprs: compiledExprs,
	}, nil
}

// TransferEnv builds the evaluation environment for tx.
func TransferEnv(tx *correlate.Transaction) map[string]interface{} {
	return map[string]interface{}{
		"key":         tx.Key,
		"device":      tx.Device,
		"pipe":        tx.Pipe,
		"vendor":      int(tx.VendorID),
		"product":     int(tx.ProductID),
		"status":      int(tx.Status),
		"start":       tx.Start,
		"end":         tx.End,
		"duration_us": tx.DurationMicros(),
		"transfer":    tx.Transfer.String(),
		"identity":    tx.Identity(),
	}
}

// Evaluate runs every custom attribute expression against tx. Expressions
// that fail at run time are logged and skipped. Map results expand into
// one attribute per key.
func (e *Evaluator) Evaluate(tx *correlate.Transaction) []attribute.KeyValue {
	if e == nil || len(e.customAttrs) == 0 {
		return nil
	}

	env := TransferEnv(tx)

	var attrs []attribute.KeyValue
	for i, customAttr := range e.customAttrs {
		output, err := expr.Run(e.compiledExprs[i], env)
		if err != nil {
			log.Debugw("failed to evaluate attribute", "attribute", customAttr.Name, "error", err)
			continue
		}

		outputValue := reflect.ValueOf(output)
		if outputValue.Kind() != reflect.Map {
			attrs = append(attrs, toKeyValue(customAttr.Name, output))
			continue
		}

		for _, key := range outputValue.MapKeys() {
			attrName := customAttr.Name + "." + sanitizeAttributeName(fmt.Sprintf("%v", key.Interface()))
			attrs = append(attrs, toKeyValue(attrName, outputValue.MapIndex(key).Interface()))
		}
	}

	return attrs
}

// toKeyValue keeps scalar result types; everything else is formatted.
func toKeyValue(name string, value interface{}) attribute.KeyValue {
	switch v := value.(type) {
	case bool:
		return attribute.Bool(name, v)
	case int:
		return attribute.Int(name, v)
	case int64:
		return attribute.Int64(name, v)
	case float64:
		return attribute.Float64(name, v)
	case string:
		return attribute.String(name, v)
	default:
		return attribute.String(name, fmt.Sprint(value))
	}
}

// sanitizeAttributeName replaces non-alphanumeric characters with underscores.
func sanitizeAttributeName(name string) string {
	result := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			result[i] = c
		} else {
			result[i] = '_'
		}
	}
	return string(result)
}
