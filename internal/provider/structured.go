package provider

// Structured output normalization.
//
// The provider returns structured extraction results keyed by opaque schema
// identifiers, each value shaped as {"name": <schema>, "result": <value>}.
// Some schemas double-nest the value ({"result": {<schema>: <value>}}), and
// older payloads deliver a flat legacy shape directly.
//
// Everything here is pure and total: malformed entries are skipped and absent
// fields come back as nil, never as an error. The caller is a webhook handler
// that must acknowledge receipt even on partial or odd data.

// legacySentinelField marks the flat legacy shape; its presence at the top
// level means the payload is already normalized.
const legacySentinelField = "call_outcome"

// classificationSchema is spread to the top level instead of nested under
// its own name.
const classificationSchema = "follow_up_classification"

// schemaFieldHints lists known field names per schema, used as a fallback
// when the provider drifts away from the {name, result} wrapper.
var schemaFieldHints = map[string][]string{
	"call_outcome":             {"call_outcome", "outcome_notes"},
	"follow_up_classification": {"classification", "follow_up_reason"},
}

// NormalizeStructuredOutputs flattens the provider's structured payload into
// a named-field record.
func NormalizeStructuredOutputs(raw map[string]any) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	// Already flat: pass through untouched.
	if _, ok := raw[legacySentinelField]; ok {
		return raw
	}

	out := make(map[string]any, len(raw))
	for _, v := range raw {
		entry, ok := v.(map[string]any)
		if !ok {
			continue
		}
		name, _ := entry["name"].(string)
		if name == "" {
			continue
		}
		result := entry["result"]

		// Unwrap double-nesting: {"name": "x", "result": {"x": <value>}}.
		if inner, ok := result.(map[string]any); ok {
			if unwrapped, ok := inner[name]; ok {
				result = unwrapped
			}
		}

		if name == classificationSchema {
			if fields, ok := result.(map[string]any); ok {
				for k, fv := range fields {
					out[k] = fv
				}
				continue
			}
		}
		out[name] = result
	}
	return out
}

// ExtractStructuredOutputByName scans the raw (non-flattened) payload for an
// entry whose key or name matches schema, unwrapping .result when present.
// Returns nil when the schema is absent.
func ExtractStructuredOutputByName(raw map[string]any, schema string) map[string]any {
	if len(raw) == 0 || schema == "" {
		return nil
	}

	for key, v := range raw {
		entry, ok := v.(map[string]any)
		if !ok {
			continue
		}
		name, _ := entry["name"].(string)
		if key != schema && name != schema {
			// Format-drift fallback: the entry may carry the schema's known
			// fields directly without a name wrapper.
			if hasAnyField(entry, schemaFieldHints[schema]) {
				return entry
			}
			continue
		}
		if result, ok := entry["result"].(map[string]any); ok {
			// Unwrap one more level if the schema double-nests.
			if inner, ok := result[schema].(map[string]any); ok {
				return inner
			}
			return result
		}
		if result, ok := entry["result"]; ok && result != nil {
			return map[string]any{schema: result}
		}
		return entry
	}

	// Flat legacy shape: the schema's own fields sit at the top level.
	if hasAnyField(raw, schemaFieldHints[schema]) {
		return raw
	}
	return nil
}

func hasAnyField(m map[string]any, fields []string) bool {
	for _, f := range fields {
		if _, ok := m[f]; ok {
			return true
		}
	}
	return false
}
