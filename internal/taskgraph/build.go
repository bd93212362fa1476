package taskgraph

import (
	"path"
	"strings"

	"github.com/mozilla-extensions/xpi-manifest/internal/catalog"
)

// CheckoutPath is where build workers check out the add-on repository.
const CheckoutPath = "/builds/worker/checkouts/src"

// ArtifactPath is where build workers leave their artifacts.
const ArtifactPath = "/builds/worker/artifacts"

// BuildTasks expands template into one build task per active catalog
// entry, or only the entry named by params.XPIName when set.
func BuildTasks(kind string, template map[string]any, cat *catalog.Catalog, params Parameters) []Task {
	var tasks []Task
	for _, x := range cat.Active() {
		if params.XPIName != "" && x.Name != params.XPIName {
			continue
		}
		tasks = append(tasks, buildTask(kind, template, x, params))
	}
	return tasks
}

func buildTask(kind string, template map[string]any, x catalog.XPI, params Parameters) Task {
	payload := copyMap(template)
	if payload == nil {
		payload = make(map[string]any)
	}
	templateAttrs, _ := payload["attributes"].(map[string]any)
	delete(payload, "attributes")

	prefix := x.ArtifactPrefix()
	worker := ensureMap(payload, "worker")
	env := ensureMap(worker, "env")
	env["REPO_PREFIX"] = x.RepoPrefix
	env["XPI_NAME"] = x.Name
	env["XPI_TYPE"] = x.AddonType
	env["ARTIFACT_PREFIX"] = prefix
	if x.InstallType != "" {
		env["XPI_INSTALL_TYPE"] = x.InstallType
	}
	env["XPI_ARTIFACTS"] = strings.Join(x.Artifacts, ";")
	worker["artifacts"] = []any{map[string]any{
		"type": "directory",
		"name": prefix,
		"path": ArtifactPath,
	}}

	if x.DockerImage != "" {
		ensureMap(worker, "docker-image")["in-tree"] = x.DockerImage
	}
	if x.PrivateRepo {
		worker["taskcluster-proxy"] = true
	}

	// A revision only pins the checkout when one add-on is being built.
	revision := ""
	if params.XPIName != "" {
		revision = params.XPIRevision
	}
	applyCheckout(payload, x, revision)
	ensureMap(payload, "extra")["xpi-name"] = x.Name

	xpis := make(map[string]any, len(x.Artifacts))
	for _, a := range x.Artifacts {
		xpis[a] = path.Join(prefix, path.Base(a))
	}
	attrs := shallowMerge(templateAttrs, map[string]any{
		AttrAddonType: x.AddonType,
		AttrXPIs:      xpis,
	})
	if runOn, ok := payload["run-on-tasks-for"]; ok {
		attrs[AttrRunOnTasksFor] = copyValue(runOn)
	}

	return Task{
		Kind:       kind,
		Label:      kind + "-" + x.Name,
		Attributes: attrs,
		Task:       payload,
	}
}
