package taskgraph

import "strings"

// Attribute names shared across stages.
const (
	AttrAddonType     = "addon-type"
	AttrXPIs          = "xpis"
	AttrRunOnTasksFor = "run_on_tasks_for"
	AttrShippingPhase = "shipping-phase"
	AttrKind          = "kind"
	AttrSigned        = "signed"
)

// Task is one node of the upstream task set. Grouping only reads tasks and
// works on copies.
type Task struct {
	Kind         string            `json:"kind"`
	Label        string            `json:"label"`
	Attributes   map[string]any    `json:"attributes"`
	Task         map[string]any    `json:"task,omitempty"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// Clone returns a deep copy of t.
func (t Task) Clone() Task {
	out := Task{
		Kind:       t.Kind,
		Label:      t.Label,
		Attributes: copyMap(t.Attributes),
		Task:       copyMap(t.Task),
	}
	if t.Dependencies != nil {
		out.Dependencies = make(map[string]string, len(t.Dependencies))
		for k, v := range t.Dependencies {
			out.Dependencies[k] = v
		}
	}
	return out
}

// StringAttr returns a string attribute, or "" when absent or not a string.
func (t Task) StringAttr(name string) string {
	s, _ := t.Attributes[name].(string)
	return s
}

// Name is the label without its "<kind>-" prefix.
func (t Task) Name() string {
	return strings.TrimPrefix(t.Label, t.Kind+"-")
}

// XPIName returns task.extra.xpi-name.
func (t Task) XPIName() string {
	extra, _ := t.Task["extra"].(map[string]any)
	name, _ := extra["xpi-name"].(string)
	return name
}

// Env returns task.worker.env.
func (t Task) Env() map[string]any {
	worker, _ := t.Task["worker"].(map[string]any)
	env, _ := worker["env"].(map[string]any)
	return env
}

// XPIArtifacts returns the attribute mapping of source artifact to
// published artifact name.
func (t Task) XPIArtifacts() map[string]string {
	out := make(map[string]string)
	switch xpis := t.Attributes[AttrXPIs].(type) {
	case map[string]string:
		for k, v := range xpis {
			out[k] = v
		}
	case map[string]any:
		for k, v := range xpis {
			if s, ok := v.(string); ok {
				out[k] = s
			}
		}
	}
	return out
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return copyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	case map[string]string:
		out := make(map[string]string, len(val))
		for k, s := range val {
			out[k] = s
		}
		return out
	default:
		return v
	}
}

// shallowMerge overlays maps left to right; later keys win.
func shallowMerge(maps ...map[string]any) map[string]any {
	out := make(map[string]any)
	for _, m := range maps {
		for k, v := range m {
			out[k] = copyValue(v)
		}
	}
	return out
}
