package taskgraph

// GroupedTask is the descriptor emitted for one dependency group.
type GroupedTask struct {
	// Fields holds the template keys other than attributes and
	// run-on-tasks-for.
	Fields map[string]any
	// Attributes is the primary's attributes overlaid by the template's
	// attributes and finally the stage kind.
	Attributes map[string]any
	// Dependencies maps a disambiguated key to the label of every group
	// member, the primary included.
	Dependencies map[string]string
	// RunOnTasksFor comes from the template, or the primary's
	// run_on_tasks_for attribute when the template leaves it unset.
	RunOnTasksFor any
	Primary       Task
	// Key is the group key the loader partitioned on, when known.
	Key string
}

// Merge builds the grouped descriptor for stageKind. None of the inputs are
// mutated.
func Merge(primary Task, group []Task, template map[string]any, stageKind string) GroupedTask {
	deps := make(map[string]string, len(group))
	for _, k := range Disambiguate(group) {
		deps[k.Key] = k.Task.Label
	}

	fields := make(map[string]any, len(template))
	var templateAttrs map[string]any
	runOn, hasRunOn := template["run-on-tasks-for"]
	for k, v := range template {
		switch k {
		case "attributes":
			templateAttrs, _ = v.(map[string]any)
		case "run-on-tasks-for":
		default:
			fields[k] = copyValue(v)
		}
	}

	attrs := shallowMerge(primary.Attributes, templateAttrs, map[string]any{AttrKind: stageKind})
	if !hasRunOn {
		runOn = primary.Attributes[AttrRunOnTasksFor]
	}

	return GroupedTask{
		Fields:        fields,
		Attributes:    attrs,
		Dependencies:  deps,
		RunOnTasksFor: copyValue(runOn),
		Primary:       primary.Clone(),
	}
}

// Map renders the descriptor as the job mapping handed to later transforms.
func (g GroupedTask) Map() map[string]any {
	out := copyMap(g.Fields)
	if out == nil {
		out = make(map[string]any)
	}
	out["attributes"] = copyMap(g.Attributes)
	deps := make(map[string]any, len(g.Dependencies))
	for k, v := range g.Dependencies {
		deps[k] = v
	}
	out["dependencies"] = deps
	if g.RunOnTasksFor != nil {
		out["run-on-tasks-for"] = copyValue(g.RunOnTasksFor)
	}
	return out
}

// Task converts the descriptor into a task of stageKind so later kinds can
// depend on it.
func (g GroupedTask) Task(stageKind string) Task {
	payload := copyMap(g.Fields)
	if payload == nil {
		payload = make(map[string]any)
	}
	if g.RunOnTasksFor != nil {
		payload["run-on-tasks-for"] = copyValue(g.RunOnTasksFor)
	}
	deps := make(map[string]string, len(g.Dependencies))
	for k, v := range g.Dependencies {
		deps[k] = v
	}
	return Task{
		Kind:         stageKind,
		Label:        stageKind + "-" + g.groupName(),
		Attributes:   copyMap(g.Attributes),
		Task:         payload,
		Dependencies: deps,
	}
}

func (g GroupedTask) groupName() string {
	if g.Key != "" {
		return g.Key
	}
	return g.Primary.Name()
}
