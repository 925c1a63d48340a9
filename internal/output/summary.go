package output

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

const nodeRolePrefix = "node-role.kubernetes.io/"

// Summarize returns the smallest useful view of resource, chosen by its kind.
// A list yields {kind, count, items} with every item summarized on its own.
func Summarize(resource map[string]any) map[string]any {
	if resource == nil {
		return nil
	}
	if items, ok := listItems(resource); ok {
		summaries := make([]any, 0, len(items))
		for _, item := range items {
			obj, _ := item.(map[string]any)
			summaries = append(summaries, summarizeObject(obj))
		}
		out := map[string]any{
			"count": len(items),
			"items": summaries,
		}
		if kind, ok := resource["kind"]; ok {
			out["kind"] = copyValue(kind)
		}
		return out
	}
	return summarizeObject(resource)
}

func summarizeObject(obj map[string]any) map[string]any {
	out := make(map[string]any)
	if obj == nil {
		return out
	}
	setString(out, "name", obj, "metadata", "name")
	setString(out, "namespace", obj, "metadata", "namespace")

	kind, _ := obj["kind"].(string)
	switch strings.ToLower(kind) {
	case "pod":
		setString(out, "status", obj, "status", "phase")
		containers, _ := nested(obj, "spec", "containers").([]any)
		out["containers"] = len(containers)
		var restarts int64
		statuses, _ := nested(obj, "status", "containerStatuses").([]any)
		for _, s := range statuses {
			if m, ok := s.(map[string]any); ok {
				n, _ := toInt64(m["restartCount"])
				restarts += n
			}
		}
		out["restarts"] = restarts

	case "deployment":
		ready, _ := toInt64(nested(obj, "status", "readyReplicas"))
		desired, _ := toInt64(nested(obj, "spec", "replicas"))
		available, _ := toInt64(nested(obj, "status", "availableReplicas"))
		out["replicas"] = fmt.Sprintf("%d/%d", ready, desired)
		out["available"] = available

	case "service":
		setString(out, "type", obj, "spec", "type")
		setString(out, "clusterIP", obj, "spec", "clusterIP")
		ports, _ := nested(obj, "spec", "ports").([]any)
		rendered := make([]string, 0, len(ports))
		for _, p := range ports {
			m, ok := p.(map[string]any)
			if !ok || m["port"] == nil {
				continue
			}
			protocol, _ := m["protocol"].(string)
			if protocol == "" {
				protocol = "TCP"
			}
			rendered = append(rendered, fmt.Sprintf("%v/%s", m["port"], protocol))
		}
		out["ports"] = rendered

	case "node":
		out["status"] = nodeReadyStatus(obj)
		labels, _, _ := unstructured.NestedStringMap(obj, "metadata", "labels")
		roles := make([]string, 0)
		for key := range labels {
			if strings.HasPrefix(key, nodeRolePrefix) {
				roles = append(roles, strings.TrimPrefix(key, nodeRolePrefix))
			}
		}
		sort.Strings(roles)
		out["roles"] = roles

	case "configmap", "secret":
		data, _ := obj["data"].(map[string]any)
		keys := make([]string, 0, len(data))
		for k := range data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out["dataKeys"] = keys

	default:
		setString(out, "phase", obj, "status", "phase")
		if v := nested(obj, "spec", "replicas"); v != nil {
			out["replicas"] = copyValue(v)
		}
	}
	return out
}

func nodeReadyStatus(obj map[string]any) string {
	conditions, _ := nested(obj, "status", "conditions").([]any)
	for _, c := range conditions {
		m, ok := c.(map[string]any)
		if !ok || m["type"] != "Ready" {
			continue
		}
		if s, ok := m["status"].(string); ok {
			return s
		}
	}
	return "Unknown"
}

func nested(obj map[string]any, fields ...string) any {
	v, found, err := unstructured.NestedFieldNoCopy(obj, fields...)
	if !found || err != nil {
		return nil
	}
	return v
}

func setString(out map[string]any, key string, obj map[string]any, fields ...string) {
	if s, ok := nested(obj, fields...).(string); ok {
		out[key] = s
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}
