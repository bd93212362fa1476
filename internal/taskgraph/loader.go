package taskgraph

// LoadMultiDep groups the upstream tasks of a multi-dep kind, selects a
// primary per group and merges each group with the job template.
func LoadMultiDep(stageKind string, cfg KindConfig, tasks []Task) ([]GroupedTask, error) {
	key, err := GroupByFunc(cfg.GroupBy)
	if err != nil {
		return nil, err
	}
	groups := Group(tasks, key, cfg.Filter())
	out := make([]GroupedTask, 0, len(groups))
	for _, group := range groups {
		primary, err := SelectPrimary(group, cfg.PrimaryDependency)
		if err != nil {
			return nil, err
		}
		g := Merge(primary, group, cfg.JobTemplate, stageKind)
		g.Key = key(primary)
		out = append(out, g)
	}
	return out, nil
}

// SingleDepJob is one job of a single-dep kind: one upstream task and a
// private copy of the task template.
type SingleDepJob struct {
	Primary  Task
	Template map[string]any
}

// LoadSingleDep yields one job per upstream task of the configured kinds.
func LoadSingleDep(cfg KindConfig, tasks []Task) []SingleDepJob {
	filter := cfg.Filter()
	var jobs []SingleDepJob
	for _, t := range tasks {
		if !filter.Match(t) {
			continue
		}
		jobs = append(jobs, SingleDepJob{
			Primary:  t.Clone(),
			Template: copyMap(cfg.TaskTemplate),
		})
	}
	return jobs
}

// DependentTask turns a single-dep job into a plain task of stageKind that
// depends on its primary.
func DependentTask(stageKind string, job SingleDepJob) Task {
	dep := job.Primary
	payload := copyMap(job.Template)
	if payload == nil {
		payload = make(map[string]any)
	}
	templateAttrs, _ := payload["attributes"].(map[string]any)
	delete(payload, "attributes")
	attrs := shallowMerge(dep.Attributes, templateAttrs, map[string]any{AttrKind: stageKind})
	if runOn, ok := attrs[AttrRunOnTasksFor]; ok {
		if _, set := payload["run-on-tasks-for"]; !set {
			payload["run-on-tasks-for"] = copyValue(runOn)
		}
	}
	if name := dep.XPIName(); name != "" {
		extra := ensureMap(payload, "extra")
		extra["xpi-name"] = name
	}
	return Task{
		Kind:         stageKind,
		Label:        stageKind + "-" + dep.Name(),
		Attributes:   attrs,
		Task:         payload,
		Dependencies: map[string]string{dep.Kind: dep.Label},
	}
}

func ensureMap(m map[string]any, key string) map[string]any {
	if v, ok := m[key].(map[string]any); ok {
		return v
	}
	v := make(map[string]any)
	m[key] = v
	return v
}
