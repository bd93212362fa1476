package taskgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerge_AttributePrecedence(t *testing.T) {
	primary := task("build", "build-a", map[string]any{"a": 1, "b": 2})
	template := map[string]any{"attributes": map[string]any{"b": 3, "c": 4}}

	g := Merge(primary, []Task{primary}, template, "sign")
	assert.Equal(t, map[string]any{"a": 1, "b": 3, "c": 4, "kind": "sign"}, g.Attributes)
	assert.Equal(t, map[string]string{"build": "build-a"}, g.Dependencies)
}

func TestMerge_KindAlwaysWins(t *testing.T) {
	primary := task("build", "build-a", map[string]any{"kind": "build"})
	template := map[string]any{"attributes": map[string]any{"kind": "other"}}
	g := Merge(primary, []Task{primary}, template, "upload")
	assert.Equal(t, "upload", g.Attributes["kind"])
}

func TestMerge_Dependencies(t *testing.T) {
	b1 := task("build", "build-a", nil)
	b2 := task("build", "build-b", nil)
	s := task("sign", "sign-a", nil)

	g := Merge(s, []Task{b1, b2, s}, nil, "upload")
	assert.Equal(t, map[string]string{
		"build-a": "build-a",
		"build-b": "build-b",
		"sign":    "sign-a",
	}, g.Dependencies)
}

func TestMerge_RunOnTasksFor(t *testing.T) {
	primary := task("build", "build-a", map[string]any{"run_on_tasks_for": []any{"github-push"}})

	g := Merge(primary, []Task{primary}, map[string]any{}, "sign")
	assert.Equal(t, []any{"github-push"}, g.RunOnTasksFor)

	g = Merge(primary, []Task{primary}, map[string]any{"run-on-tasks-for": []any{"action"}}, "sign")
	assert.Equal(t, []any{"action"}, g.RunOnTasksFor)

	bare := task("build", "build-b", nil)
	g = Merge(bare, []Task{bare}, nil, "sign")
	assert.Nil(t, g.RunOnTasksFor)
	assert.NotContains(t, g.Map(), "run-on-tasks-for")
}

func TestMerge_DoesNotMutateInputs(t *testing.T) {
	primary := task("build", "build-a", map[string]any{"a": 1})
	template := map[string]any{
		"attributes":  map[string]any{"b": 2},
		"description": "sign it",
		"worker":      map[string]any{"env": map[string]any{"X": "1"}},
	}

	g := Merge(primary, []Task{primary}, template, "sign")
	g.Attributes["a"] = 99
	g.Fields["worker"].(map[string]any)["env"].(map[string]any)["X"] = "2"

	assert.Equal(t, map[string]any{"a": 1}, primary.Attributes)
	assert.Equal(t, "1", template["worker"].(map[string]any)["env"].(map[string]any)["X"])
	assert.Equal(t, map[string]any{"b": 2}, template["attributes"])
	assert.Equal(t, "sign it", g.Fields["description"])
	assert.NotContains(t, g.Fields, "attributes")
}

func TestGroupedTask_Map(t *testing.T) {
	primary := task("build", "build-a", map[string]any{"run_on_tasks_for": "github-push"})
	g := Merge(primary, []Task{primary}, map[string]any{"description": "d"}, "sign")
	m := g.Map()
	assert.Equal(t, "d", m["description"])
	assert.Equal(t, map[string]any{"build": "build-a"}, m["dependencies"])
	assert.Equal(t, "github-push", m["run-on-tasks-for"])
	require.IsType(t, map[string]any{}, m["attributes"])
	assert.Equal(t, "sign", m["attributes"].(map[string]any)["kind"])
}

func TestGroupedTask_Task(t *testing.T) {
	primary := task("build", "build-a", nil)
	g := Merge(primary, []Task{primary}, nil, "sign")
	assert.Equal(t, "sign-a", g.Task("sign").Label)

	g.Key = "system"
	tk := g.Task("sign")
	assert.Equal(t, "sign-system", tk.Label)
	assert.Equal(t, "sign", tk.Kind)
	assert.Equal(t, map[string]string{"build": "build-a"}, tk.Dependencies)
}
