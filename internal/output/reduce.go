package output

var (
	compactStatusFields = []string{"phase", "replicas", "readyReplicas", "availableReplicas"}
	compactSpecFields   = []string{"replicas", "selector"}
)

// Reduce returns a projection of resource for mode. Lists (objects with an items
// array) are reduced item by item and their own fields are copied unchanged.
// Absent or oddly-typed fields are omitted or copied, never an error.
func Reduce(resource map[string]any, mode Mode) map[string]any {
	if resource == nil {
		return nil
	}
	mode = ModeOrDefault(string(mode))

	if items, ok := listItems(resource); ok {
		out := copyExcept(resource, "items")
		reduced := make([]any, len(items))
		for i, item := range items {
			if obj, ok := item.(map[string]any); ok {
				reduced[i] = reduceObject(obj, mode)
			} else {
				reduced[i] = copyValue(item)
			}
		}
		out["items"] = reduced
		return out
	}
	return reduceObject(resource, mode)
}

func reduceObject(obj map[string]any, mode Mode) map[string]any {
	out := make(map[string]any, len(obj))
	for key, value := range obj {
		switch key {
		case "metadata":
			if md, ok := value.(map[string]any); ok {
				out[key] = copyExcept(md, strippedMetadata[mode]...)
				continue
			}
		case "status":
			if st, ok := value.(map[string]any); ok && mode == ModeCompact {
				out[key] = compactStatus(st)
				continue
			}
		case "spec":
			if sp, ok := value.(map[string]any); ok && mode == ModeCompact {
				out[key] = compactSpec(sp)
				continue
			}
		}
		out[key] = copyValue(value)
	}
	return out
}

func compactStatus(status map[string]any) map[string]any {
	out := pick(status, compactStatusFields...)
	if conditions, ok := status["conditions"].([]any); ok {
		if n := len(conditions); n > 0 {
			out["conditions"] = []any{copyValue(conditions[n-1])}
		} else {
			out["conditions"] = []any{}
		}
	}
	return out
}

func compactSpec(spec map[string]any) map[string]any {
	out := pick(spec, compactSpecFields...)

	// A pod template's containers replace any direct list and stay at the
	// template path, so every compact field also exists in normal output.
	if containers, ok := nested(spec, "template", "spec", "containers").([]any); ok {
		out["template"] = map[string]any{
			"spec": map[string]any{"containers": nameImagePairs(containers)},
		}
		return out
	}
	if containers, ok := spec["containers"].([]any); ok {
		out["containers"] = nameImagePairs(containers)
	}
	return out
}

func nameImagePairs(containers []any) []any {
	out := make([]any, 0, len(containers))
	for _, c := range containers {
		if m, ok := c.(map[string]any); ok {
			out = append(out, pick(m, "name", "image"))
		}
	}
	return out
}

// listItems reports whether obj is a list wrapper and returns its items.
func listItems(obj map[string]any) ([]any, bool) {
	items, ok := obj["items"].([]any)
	return items, ok
}

// pick copies the listed keys that are present in m.
func pick(m map[string]any, keys ...string) map[string]any {
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		if v, ok := m[k]; ok {
			out[k] = copyValue(v)
		}
	}
	return out
}

// copyExcept copies every key of m not listed in drop.
func copyExcept(m map[string]any, drop ...string) map[string]any {
	skip := make(map[string]struct{}, len(drop))
	for _, k := range drop {
		skip[k] = struct{}{}
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if _, ok := skip[k]; ok {
			continue
		}
		out[k] = copyValue(v)
	}
	return out
}

// copyValue deep-copies JSON containers so projections never alias their input.
// Scalars, including types runtime.DeepCopyJSONValue rejects, are returned as-is.
func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = copyValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = copyValue(val)
		}
		return out
	default:
		return v
	}
}
