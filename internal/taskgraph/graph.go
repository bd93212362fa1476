package taskgraph

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/mozilla-extensions/xpi-manifest/internal/catalog"
	berrors "github.com/mozilla-extensions/xpi-manifest/internal/errors"
)

// Observer is told about every dependency group a multi-dep kind emits.
type Observer interface {
	TaskGroup(kind string)
}

// Generator evaluates kinds against a catalog.
type Generator struct {
	catalog  *catalog.Catalog
	params   Parameters
	observer Observer
	logger   zerolog.Logger
}

// NewGenerator creates a Generator. observer may be nil.
func NewGenerator(cat *catalog.Catalog, params Parameters, observer Observer, logger zerolog.Logger) *Generator {
	return &Generator{
		catalog:  cat,
		params:   params,
		observer: observer,
		logger:   logger.With().Str("component", "taskgraph").Logger(),
	}
}

// Generate loads every kind in dependency order and returns all tasks.
func (g *Generator) Generate(kinds []Kind) ([]Task, error) {
	ordered, err := SortKinds(kinds)
	if err != nil {
		return nil, err
	}
	var all []Task
	for _, k := range ordered {
		tasks, err := g.load(k, all)
		if err != nil {
			return nil, err
		}
		g.logger.Info().Str("kind", k.Name).Int("tasks", len(tasks)).Msg("kind loaded")
		all = append(all, tasks...)
	}
	return all, nil
}

func (g *Generator) load(k Kind, loaded []Task) ([]Task, error) {
	switch k.Config.Loader {
	case LoaderBuild:
		return BuildTasks(k.Name, k.Config.JobTemplate, g.catalog, g.params), nil

	case LoaderMultiDep:
		groups, err := LoadMultiDep(k.Name, k.Config, loaded)
		if err != nil {
			return nil, err
		}
		tasks := make([]Task, 0, len(groups))
		for _, grp := range groups {
			if g.observer != nil {
				g.observer.TaskGroup(k.Name)
			}
			g.logger.Debug().
				Str("kind", k.Name).
				Str("primary", grp.Primary.Label).
				Int("dependencies", len(grp.Dependencies)).
				Msg("group merged")
			tasks = append(tasks, grp.Task(k.Name))
		}
		return tasks, nil

	case LoaderSingleDep:
		jobs := LoadSingleDep(k.Config, loaded)
		tasks := make([]Task, 0, len(jobs))
		for _, job := range jobs {
			t, ok, err := g.stage(k, job)
			if err != nil {
				return nil, err
			}
			if !ok {
				g.logger.Debug().
					Str("kind", k.Name).
					Str("transform", k.Config.StageTransform()).
					Str("upstream", job.Primary.Label).
					Msg("task pruned")
				continue
			}
			tasks = append(tasks, t)
		}
		return tasks, nil
	}
	return nil, berrors.New(berrors.ErrConfig, "kind %s: unknown loader %q", k.Name, k.Config.Loader)
}

func (g *Generator) stage(k Kind, job SingleDepJob) (Task, bool, error) {
	switch k.Config.StageTransform() {
	case TransformSigning:
		return SigningTask(k.Name, job, g.params)
	case TransformTest:
		return TestTask(k.Name, job, g.catalog, g.params)
	case TransformBeetmover:
		return BeetmoverTask(k.Name, job, g.catalog, g.params)
	case TransformGitHubRelease:
		return GitHubReleaseTask(k.Name, job, g.params)
	case TransformMarkAsShipped:
		return MarkAsShippedTask(k.Name, job, g.params)
	case TransformNotify:
		return NotificationTask(k.Name, job, g.catalog, g.params)
	}
	return DependentTask(k.Name, job), true, nil
}

// SortKinds orders kinds so that every kind follows its kind-dependencies.
// Ties are broken by name.
func SortKinds(kinds []Kind) ([]Kind, error) {
	byName := make(map[string]Kind, len(kinds))
	for _, k := range kinds {
		if _, dup := byName[k.Name]; dup {
			return nil, berrors.New(berrors.ErrConfig, "duplicate kind %s", k.Name)
		}
		byName[k.Name] = k
	}
	indegree := make(map[string]int, len(kinds))
	for _, k := range kinds {
		indegree[k.Name] = 0
	}
	dependents := make(map[string][]string)
	for _, k := range kinds {
		for _, dep := range k.Config.KindDependencies {
			if _, ok := byName[dep]; !ok {
				return nil, berrors.New(berrors.ErrConfig, "kind %s depends on unknown kind %s", k.Name, dep)
			}
			indegree[k.Name]++
			dependents[dep] = append(dependents[dep], k.Name)
		}
	}

	var ready []string
	for name, n := range indegree {
		if n == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	out := make([]Kind, 0, len(kinds))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		out = append(out, byName[name])
		var next []string
		for _, d := range dependents[name] {
			indegree[d]--
			if indegree[d] == 0 {
				next = append(next, d)
			}
		}
		ready = append(ready, next...)
		sort.Strings(ready)
	}
	if len(out) != len(kinds) {
		var stuck []string
		for name, n := range indegree {
			if n > 0 {
				stuck = append(stuck, name)
			}
		}
		sort.Strings(stuck)
		return nil, berrors.New(berrors.ErrConfig, "kind dependency cycle among %v", stuck)
	}
	return out, nil
}
