package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// normalize converts an arbitrary Go value into its JSON-native form
// (map[string]any, []any, float64, string, bool, nil).
func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func normalizeDocument(doc Document) (Document, error) {
	v, err := normalize(doc)
	if err != nil {
		return nil, err
	}
	out, ok := v.(map[string]any)
	if !ok {
		return Document{}, nil
	}
	return out, nil
}

func splitPath(path string) ([]string, error) {
	parts := strings.Split(path, ".")
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("invalid field path %q", path)
		}
	}
	return parts, nil
}

// setPath writes value at the dotted path, creating intermediate objects and
// replacing any non-object found on the way.
func setPath(doc Document, path string, value any) error {
	parts, err := splitPath(path)
	if err != nil {
		return err
	}
	cur := doc
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[p] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = value
	return nil
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

func cloneDocument(doc Document) Document {
	return cloneValue(doc).(map[string]any)
}

// flatten turns a normalized value into leaf fields keyed by dotted path with
// JSON-encoded values. Empty objects are kept as a single "{}" leaf.
func flatten(prefix string, value any, out map[string]string) error {
	if m, ok := value.(map[string]any); ok && len(m) > 0 {
		for k, v := range m {
			if k == "" || strings.Contains(k, ".") {
				return fmt.Errorf("invalid key %q under %q", k, prefix)
			}
			if err := flatten(prefix+"."+k, v, out); err != nil {
				return err
			}
		}
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	out[prefix] = string(data)
	return nil
}

// unflatten rebuilds a document from leaf fields produced by flatten. Paths are
// applied in sorted order so a parent leaf always precedes its children.
func unflatten(fields map[string]string) (Document, error) {
	paths := make([]string, 0, len(fields))
	for p := range fields {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	doc := Document{}
	for _, p := range paths {
		var v any
		if err := json.Unmarshal([]byte(fields[p]), &v); err != nil {
			return nil, fmt.Errorf("decode field %q: %w", p, err)
		}
		if err := setPath(doc, p, v); err != nil {
			return nil, err
		}
	}
	return doc, nil
}
