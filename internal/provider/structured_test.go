package provider

import (
	"reflect"
	"testing"
)

func TestNormalize_LegacyFlatShapePassesThrough(t *testing.T) {
	raw := map[string]any{"call_outcome": "scheduled", "notes": "call back friday"}
	got := NormalizeStructuredOutputs(raw)
	if !reflect.DeepEqual(got, raw) {
		t.Fatalf("legacy shape must pass through untouched, got %v", got)
	}
}

func TestNormalize_UnwrapsDoubleNesting(t *testing.T) {
	raw := map[string]any{
		"uuid1": map[string]any{
			"name":   "call_outcome",
			"result": map[string]any{"call_outcome": "scheduled"},
		},
	}
	got := NormalizeStructuredOutputs(raw)
	if got["call_outcome"] != "scheduled" {
		t.Fatalf("expected unwrapped value, got %v", got)
	}
}

func TestNormalize_SpreadsClassificationSchema(t *testing.T) {
	raw := map[string]any{
		"uuid2": map[string]any{
			"name": "follow_up_classification",
			"result": map[string]any{
				"classification":   "urgent",
				"follow_up_reason": "medication question",
			},
		},
	}
	got := NormalizeStructuredOutputs(raw)
	if got["classification"] != "urgent" || got["follow_up_reason"] != "medication question" {
		t.Fatalf("classification fields must be spread to top level, got %v", got)
	}
	if _, nested := got["follow_up_classification"]; nested {
		t.Fatalf("classification must not be nested under its schema name")
	}
}

func TestNormalize_StoresResultUnderName(t *testing.T) {
	raw := map[string]any{
		"uuid3": map[string]any{"name": "sentiment", "result": "positive"},
	}
	got := NormalizeStructuredOutputs(raw)
	if got["sentiment"] != "positive" {
		t.Fatalf("expected result stored under name, got %v", got)
	}
}

func TestNormalize_MalformedEntriesSkipped(t *testing.T) {
	raw := map[string]any{
		"a": "not-an-object",
		"b": map[string]any{"result": "missing name"},
		"c": map[string]any{"name": "ok", "result": 1.0},
	}
	got := NormalizeStructuredOutputs(raw)
	if len(got) != 1 || got["ok"] != 1.0 {
		t.Fatalf("expected only well-formed entry, got %v", got)
	}
}

func TestNormalize_NilAndEmpty(t *testing.T) {
	if got := NormalizeStructuredOutputs(nil); got != nil {
		t.Fatalf("expected nil for nil input, got %v", got)
	}
	if got := NormalizeStructuredOutputs(map[string]any{}); got != nil {
		t.Fatalf("expected nil for empty input, got %v", got)
	}
}

func TestExtractByName_UnwrapsResult(t *testing.T) {
	raw := map[string]any{
		"uuid1": map[string]any{
			"name":   "call_outcome",
			"result": map[string]any{"call_outcome": "scheduled"},
		},
	}
	got := ExtractStructuredOutputByName(raw, "call_outcome")
	want := map[string]any{"call_outcome": "scheduled"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestExtractByName_MatchesByKey(t *testing.T) {
	raw := map[string]any{
		"call_outcome": map[string]any{
			"result": map[string]any{"call_outcome": "no-answer"},
		},
	}
	got := ExtractStructuredOutputByName(raw, "call_outcome")
	if got == nil || got["call_outcome"] != "no-answer" {
		t.Fatalf("expected key match, got %v", got)
	}
}

func TestExtractByName_FieldHintFallback(t *testing.T) {
	// Provider format drift: entry carries known fields without a wrapper.
	raw := map[string]any{
		"some-opaque-id": map[string]any{"classification": "routine"},
	}
	got := ExtractStructuredOutputByName(raw, "follow_up_classification")
	if got == nil || got["classification"] != "routine" {
		t.Fatalf("expected field-hint fallback, got %v", got)
	}
}

func TestExtractByName_FlatLegacyTopLevel(t *testing.T) {
	raw := map[string]any{"call_outcome": "scheduled"}
	got := ExtractStructuredOutputByName(raw, "call_outcome")
	if got == nil || got["call_outcome"] != "scheduled" {
		t.Fatalf("expected top-level legacy match, got %v", got)
	}
}

func TestExtractByName_AbsentSchemaReturnsNil(t *testing.T) {
	raw := map[string]any{
		"uuid1": map[string]any{"name": "sentiment", "result": "positive"},
	}
	if got := ExtractStructuredOutputByName(raw, "call_outcome"); got != nil {
		t.Fatalf("expected nil for absent schema, got %v", got)
	}
	if got := ExtractStructuredOutputByName(nil, "call_outcome"); got != nil {
		t.Fatalf("expected nil for nil payload")
	}
}
