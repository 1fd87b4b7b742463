package attributes

import (
	"testing"

	"go.opentelemetry.io/otel/attribute"

	"github.com/mrzor/pollscope/internal/config"
	"github.com/mrzor/pollscope/internal/correlate"
	"github.com/mrzor/pollscope/internal/usbtrace"
)

func testTransaction() *correlate.Transaction {
	return &correlate.Transaction{
		Key:       0xFFFF0001,
		Device:    0x10,
		Pipe:      3,
		Transfer:  usbtrace.TransferInterrupt,
		Start:     10,
		End:       10.125,
		Status:    0,
		VendorID:  0x046D,
		ProductID: 0xC08B,
	}
}

func findAttr(attrs []attribute.KeyValue, key string) (attribute.KeyValue, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv, true
		}
	}
	return attribute.KeyValue{}, false
}

func TestEvaluator_Simple(t *testing.T) {
	attrs := []config.CustomAttribute{
		{Name: "usb.identity", Expression: `identity`},
		{Name: "usb.slow", Expression: `duration_us > 100`},
		{Name: "usb.vendor", Expression: `vendor`},
	}

	evaluator, err := NewEvaluator(attrs)
	if err != nil {
		t.Fatalf("NewEvaluator() error = %v", err)
	}

	result := evaluator.Evaluate(testTransaction())
	if len(result) != 3 {
		t.Fatalf("Expected 3 attributes, got %d", len(result))
	}

	if result[0].Key != "usb.identity" || result[0].Value.AsString() != "046D:C08B" {
		t.Errorf("result[0] = %v, want usb.identity=046D:C08B", result[0])
	}
	if result[1].Value.Type() != attribute.BOOL || !result[1].Value.AsBool() {
		t.Errorf("result[1] = %v, want usb.slow=true", result[1])
	}
	if result[2].Value.Type() != attribute.INT64 || result[2].Value.AsInt64() != 0x046D {
		t.Errorf("result[2] = %v, want usb.vendor=%d", result[2], 0x046D)
	}
}

func TestEvaluator_MapExpansion(t *testing.T) {
	attrs := []config.CustomAttribute{
		{Name: "usb", Expression: `{"pipe": pipe, "kind-name": transfer}`},
	}

	evaluator, err := NewEvaluator(attrs)
	if err != nil {
		t.Fatalf("NewEvaluator() error = %v", err)
	}

	result := evaluator.Evaluate(testTransaction())
	if len(result) != 2 {
		t.Fatalf("Expected 2 attributes (map expansion), got %d", len(result))
	}

	if kv, ok := findAttr(result, "usb.kind_name"); !ok || kv.Value.AsString() != "Interrupt" {
		t.Errorf("usb.kind_name = %v (found %v), want Interrupt", kv.Value.AsString(), ok)
	}
	if _, ok := findAttr(result, "usb.pipe"); !ok {
		t.Errorf("usb.pipe not found in %v", result)
	}
}

func TestEvaluator_CompileError(t *testing.T) {
	attrs := []config.CustomAttribute{
		{Name: "bad", Expression: `cmdline`},
	}

	if _, err := NewEvaluator(attrs); err == nil {
		t.Error("NewEvaluator() expected error for unknown variable")
	}
}

func TestEvaluator_RuntimeErrorSkipped(t *testing.T) {
	attrs := []config.CustomAttribute{
		{Name: "oob", Expression: `[1, 2][pipe]`},
		{Name: "ok", Expression: `transfer`},
	}

	evaluator, err := NewEvaluator(attrs)
	if err != nil {
		t.Fatalf("NewEvaluator() error = %v", err)
	}

	result := evaluator.Evaluate(testTransaction())
	if _, ok := findAttr(result, "ok"); !ok {
		t.Errorf("expected attribute ok in %v", result)
	}
	if _, ok := findAttr(result, "oob"); ok {
		t.Errorf("attribute oob should have been skipped")
	}
}

func TestEvaluator_NilOrEmpty(t *testing.T) {
	var nilEval *Evaluator
	if got := nilEval.Evaluate(testTransaction()); got != nil {
		t.Errorf("nil evaluator returned %v", got)
	}

	evaluator, err := NewEvaluator(nil)
	if err != nil {
		t.Fatalf("NewEvaluator() error = %v", err)
	}
	if got := evaluator.Evaluate(testTransaction()); got != nil {
		t.Errorf("empty evaluator returned %v", got)
	}
}

func TestSanitizeAttributeName(t *testing.T) {
	tests := map[string]string{
		"simple":    "simple",
		"with-dash": "with_dash",
		"a.b c":     "a_b_c",
		"ÿ":         "__",
	}
	for in, want := range tests {
		if got := sanitizeAttributeName(in); got != want {
			t.Errorf("sanitizeAttributeName(%q) = %q, want %q", in, got, want)
		}
	}
}
