package session

import "strings"

// DeepMerge merges src into dst and returns a new tree; neither input is
// mutated. Keys present in both sides as objects merge recursively; every
// other value (scalars, arrays) is overwritten by src wholesale. This is
// the single conflict-resolution primitive used throughout reconciliation.
func DeepMerge(dst, src map[string]any) map[string]any {
	out := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		srcMap, srcOK := v.(map[string]any)
		dstMap, dstOK := out[k].(map[string]any)
		if srcOK && dstOK {
			out[k] = DeepMerge(dstMap, srcMap)
			continue
		}
		out[k] = v
	}
	return out
}

// PatchAt nests changes under a dot-separated path. An empty path returns
// the changes themselves; "a.b" yields {a:{b:changes}}.
func PatchAt(path string, changes map[string]any) map[string]any {
	if path == "" {
		return changes
	}
	parts := strings.Split(path, ".")
	patch := changes
	for i := len(parts) - 1; i >= 0; i-- {
		patch = map[string]any{parts[i]: patch}
	}
	return patch
}

// DeleteAt removes the property at a dot-separated path and returns a new
// tree. Missing intermediate objects make the deletion a no-op.
func DeleteAt(state map[string]any, path string) map[string]any {
	if path == "" {
		return state
	}
	parts := strings.Split(path, ".")
	return deleteParts(state, parts)
}

func deleteParts(state map[string]any, parts []string) map[string]any {
	out := make(map[string]any, len(state))
	for k, v := range state {
		out[k] = v
	}
	key := parts[0]
	if len(parts) == 1 {
		delete(out, key)
		return out
	}
	nested, ok := out[key].(map[string]any)
	if !ok {
		return out
	}
	out[key] = deleteParts(nested, parts[1:])
	return out
}
