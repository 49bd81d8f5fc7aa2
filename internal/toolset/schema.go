package toolset

import "encoding/json"

// normalizeSchema applies the registration-time normalization from spec
// §4.5: inline referenced subschemas, strip title/format, convert
// {type:[...]} to anyOf, normalize integer types. It operates on the raw
// decoded schema tree so it works regardless of which provider eventually
// consumes it (Anthropic/OpenAI/Gemini tool-schema converters all expect a
// plain nested-object-with-no-$ref shape).
func normalizeSchema(raw json.RawMessage) (json.RawMessage, error) {
	var tree any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, err
	}
	defs := extractDefs(tree)
	normalized := normalizeNode(tree, defs, 0)
	return json.Marshal(normalized)
}

// extractDefs pulls out "$defs"/"definitions" from the root so inlineRef can
// resolve "#/$defs/Foo" style local references.
func extractDefs(tree any) map[string]any {
	m, ok := tree.(map[string]any)
	if !ok {
		return nil
	}
	if d, ok := m["$defs"].(map[string]any); ok {
		return d
	}
	if d, ok := m["definitions"].(map[string]any); ok {
		return d
	}
	return nil
}

const maxInlineDepth = 32

func normalizeNode(node any, defs map[string]any, depth int) any {
	if depth > maxInlineDepth {
		return node
	}
	switch v := node.(type) {
	case map[string]any:
		return normalizeObject(v, defs, depth)
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = normalizeNode(e, defs, depth+1)
		}
		return out
	default:
		return node
	}
}

func normalizeObject(m map[string]any, defs map[string]any, depth int) any {
	if ref, ok := m["$ref"].(string); ok {
		if resolved, ok := resolveLocalRef(ref, defs); ok {
			return normalizeNode(resolved, defs, depth+1)
		}
		// Unresolvable ref (external/remote): leave as-is.
		return m
	}

	out := make(map[string]any, len(m))
	for k, v := range m {
		switch k {
		case "title", "format", "$defs", "definitions":
			continue
		case "type":
			if arr, ok := v.([]any); ok {
				out["anyOf"] = typeArrayToAnyOf(arr)
				continue
			}
			out[k] = normalizeIntegerType(v)
		default:
			out[k] = normalizeNode(v, defs, depth+1)
		}
	}
	return out
}

// typeArrayToAnyOf converts {"type":["string","null"]} into
// {"anyOf":[{"type":"string"},{"type":"null"}]}.
func typeArrayToAnyOf(types []any) []any {
	out := make([]any, 0, len(types))
	for _, t := range types {
		out = append(out, map[string]any{"type": normalizeIntegerType(t)})
	}
	return out
}

// normalizeIntegerType collapses non-standard aliases some tool authors use
// ("int", "long") onto the schema keyword "integer".
func normalizeIntegerType(v any) any {
	if s, ok := v.(string); ok && (s == "int" || s == "long") {
		return "integer"
	}
	return v
}

func resolveLocalRef(ref string, defs map[string]any) (any, bool) {
	if defs == nil {
		return nil, false
	}
	// Accept "#/$defs/Name" and "#/definitions/Name".
	for _, p := range []string{"#/$defs/", "#/definitions/"} {
		if len(ref) > len(p) && ref[:len(p)] == p {
			name := ref[len(p):]
			if v, ok := defs[name]; ok {
				return v, true
			}
			return nil, false
		}
	}
	return nil, false
}
