package taskgraph

import (
	"sort"

	"github.com/mozilla-extensions/xpi-manifest/internal/catalog"
	berrors "github.com/mozilla-extensions/xpi-manifest/internal/errors"
)

// Signing formats.
const (
	FormatSystemAddon   = "system_addon"
	FormatPrivilegedExt = "privileged_webextension"
)

// ReleaseSigningKind only yields tasks when the release parameters are set.
const ReleaseSigningKind = "release-signing"

// SigningFormat is the signing format for an add-on type.
func SigningFormat(addonType string) string {
	if addonType == catalog.AddonTypeSystem {
		return FormatSystemAddon
	}
	return FormatPrivilegedExt
}

// SigningTask turns a single-dep job into a signing task. ok is false when
// the task is pruned.
func SigningTask(stageKind string, job SingleDepJob, params Parameters) (task Task, ok bool, err error) {
	if stageKind == ReleaseSigningKind && !params.ReleaseReady() {
		return Task{}, false, nil
	}
	dep := job.Primary
	t := DependentTask(stageKind, job)
	t.Attributes[AttrSigned] = true
	t.Dependencies = map[string]string{"build": dep.Label}

	prefix, _ := dep.Env()["ARTIFACT_PREFIX"].(string)
	if prefix == "" {
		return Task{}, false, berrors.New(berrors.ErrConfig, "%s: upstream %s has no ARTIFACT_PREFIX", t.Label, dep.Label)
	}
	addArtifactScope(t, prefix)

	paths := toAny(sortedValues(dep.XPIArtifacts()))
	addonType, _ := t.Attributes[AttrAddonType].(string)
	worker := ensureMap(t.Task, "worker")
	worker["upstream-artifacts"] = []any{map[string]any{
		"taskId":   map[string]any{"task-reference": "<build>"},
		"taskType": "build",
		"paths":    paths,
		"formats":  []any{SigningFormat(addonType)},
	}}

	extra := ensureMap(t.Task, "extra")
	extra["artifact_prefix"] = prefix
	if name, _ := extra["xpi-name"].(string); name != "" {
		if routes := SigningRoutes(params, stageKind, name); len(routes) > 0 {
			existing, _ := t.Task["routes"].([]any)
			for _, r := range routes {
				existing = append(existing, r)
			}
			t.Task["routes"] = existing
		}
	}
	return t, true, nil
}

func sortedValues(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
