package taskgraph

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/mozilla-extensions/xpi-manifest/internal/catalog"
	berrors "github.com/mozilla-extensions/xpi-manifest/internal/errors"
)

// Stage transforms a single-dep kind may name. A kind applies at most one.
const (
	TransformSigning       = "signing"
	TransformTest          = "test"
	TransformBeetmover     = "beetmover"
	TransformGitHubRelease = "release-github"
	TransformMarkAsShipped = "mark-as-shipped"
	TransformNotify        = "release-notifications"
)

var stageTransforms = []string{
	TransformSigning,
	TransformTest,
	TransformBeetmover,
	TransformGitHubRelease,
	TransformMarkAsShipped,
	TransformNotify,
}

// upstreamArtifact is one entry of XPI_UPSTREAM_URLS.
type upstreamArtifact struct {
	TaskID string   `json:"taskId"`
	Paths  []string `json:"paths"`
}

// TestTask turns a single-dep job on a build task into a test task that
// checks out the same repository and fetches the build's XPIs. Inactive
// add-ons are pruned.
func TestTask(stageKind string, job SingleDepJob, cat *catalog.Catalog, params Parameters) (Task, bool, error) {
	dep := job.Primary
	x, err := cat.Get(dep.XPIName())
	if err != nil {
		return Task{}, false, fmt.Errorf("%s: %w", dep.Label, err)
	}
	if !x.Active {
		return Task{}, false, nil
	}

	t := DependentTask(stageKind, job)
	t.Label = stageKind + "-" + x.Name
	t.Dependencies = map[string]string{"build": dep.Label}

	prefix := x.ArtifactPrefix()
	worker := ensureMap(t.Task, "worker")
	env := ensureMap(worker, "env")
	env["REPO_PREFIX"] = x.RepoPrefix
	env["ARTIFACT_PREFIX"] = prefix
	if x.InstallType != "" {
		env["XPI_INSTALL_TYPE"] = x.InstallType
	}
	paths := make([]string, 0, len(x.Artifacts))
	for _, a := range x.Artifacts {
		paths = append(paths, path.Join(prefix, path.Base(a)))
	}
	urls, err := json.Marshal([]upstreamArtifact{{TaskID: "<build>", Paths: paths}})
	if err != nil {
		return Task{}, false, err
	}
	env["XPI_UPSTREAM_URLS"] = string(urls)

	if x.PrivateRepo {
		worker["taskcluster-proxy"] = true
	}
	if x.DockerImage != "" {
		ensureMap(worker, "docker-image")["in-tree"] = x.DockerImage
	}
	symbol := x.TreeherderSymbol
	if symbol == "" {
		symbol = x.Name
	}
	ensureMap(t.Task, "treeherder")["symbol"] = "T(" + symbol + ")"

	applyCheckout(t.Task, x, params.XPIRevision)
	return t, true, nil
}

// MozBuildDate is BuildDate in the YYYYMMDDhhmmss form release tooling
// uses as a build id.
func (p Parameters) MozBuildDate() string {
	if p.BuildDate == 0 {
		return ""
	}
	return time.Unix(p.BuildDate, 0).UTC().Format("20060102150405")
}

// BeetmoverTask uploads the release-signed XPIs of a system add-on to the
// system-addons bucket. It needs the release parameters and a build date.
func BeetmoverTask(stageKind string, job SingleDepJob, cat *catalog.Catalog, params Parameters) (Task, bool, error) {
	if !params.ReleaseReady() || params.BuildDate == 0 {
		return Task{}, false, nil
	}
	dep := job.Primary
	if dep.XPIName() != params.XPIName {
		return Task{}, false, nil
	}
	x, err := cat.Get(params.XPIName)
	if err != nil {
		return Task{}, false, err
	}
	if x.AddonType != catalog.AddonTypeSystem {
		return Task{}, false, nil
	}

	t := DependentTask(stageKind, job)
	t.Label = stageKind + "-" + x.Name
	if err := resolveTaskKeys(t, params, "worker.bucket-scope"); err != nil {
		return Task{}, false, err
	}

	buildID := params.MozBuildDate()
	destination := fmt.Sprintf("pub/system-addons/%[1]s/%[1]s%%mozilla.org-%[2]s-%[3]s.xpi", x.Name, params.Version, buildID)
	paths := sortedValues(dep.XPIArtifacts())
	ref := taskReference(dep)
	artifactMap := make(map[string]any, len(paths))
	for _, p := range paths {
		artifactMap[p] = map[string]any{"destinations": []any{destination}}
	}

	t.Task["description"] = fmt.Sprintf("Upload the signed %s XPI package to %s", x.Name, destination)
	worker := ensureMap(t.Task, "worker")
	worker["upstream-artifacts"] = []any{map[string]any{
		"taskId":   ref,
		"taskType": "signing",
		"paths":    toAny(paths),
		"locale":   "multi",
	}}
	worker["action-scope"] = "push-to-nightly"
	worker["release-properties"] = map[string]any{
		"app-name":    "xpi",
		"app-version": params.Version,
		"branch":      path.Base(params.HeadRef),
		"build-id":    buildID,
	}
	worker["artifact-map"] = []any{map[string]any{
		"taskId": ref,
		"paths":  artifactMap,
	}}
	return t, true, nil
}

// GitHubReleaseTask publishes the signed XPIs of params.XPIName as a
// GitHub release.
func GitHubReleaseTask(stageKind string, job SingleDepJob, params Parameters) (Task, bool, error) {
	if !params.ReleaseReady() {
		return Task{}, false, nil
	}
	dep := job.Primary
	if dep.XPIName() != params.XPIName {
		return Task{}, false, nil
	}
	t := DependentTask(stageKind, job)
	if err := resolveTaskKeys(t, params, "worker.github-project", "worker.release-name", "scopes"); err != nil {
		return Task{}, false, err
	}

	name := ReleaseName(params.XPIName, params.Version, params.BuildNumber)
	tag := params.HeadTag
	if tag == "" {
		tag = name
	}
	worker := ensureMap(t.Task, "worker")
	worker["release-name"] = name
	worker["git-tag"] = tag
	worker["git-revision"] = params.HeadRev
	if _, set := worker["github-project"]; !set {
		worker["github-project"] = params.Project
	}
	worker["artifact-map"] = []any{map[string]any{
		"taskId": taskReference(dep),
		"paths":  toAny(sortedValues(dep.XPIArtifacts())),
	}}
	if prefix := artifactPrefix(dep); prefix != "" {
		addArtifactScope(t, prefix)
	}
	return t, true, nil
}

// MarkAsShippedTask records the release of params.XPIName as shipped.
func MarkAsShippedTask(stageKind string, job SingleDepJob, params Parameters) (Task, bool, error) {
	if params.Version == "" || params.XPIName == "" || params.BuildNumber == 0 {
		return Task{}, false, nil
	}
	if job.Primary.XPIName() != params.XPIName {
		return Task{}, false, nil
	}
	t := DependentTask(stageKind, job)
	if err := resolveTaskKeys(t, params, "scopes"); err != nil {
		return Task{}, false, err
	}
	ensureMap(t.Task, "worker")["release-name"] = ReleaseName(params.XPIName, params.Version, params.BuildNumber)
	return t, true, nil
}

// NotificationTask emails the add-on's owners when the tasks of the
// current shipping phase complete. The template's "emails" entry may be
// keyed by addon-type and phase; "notifications" carries the subject and
// message and may be keyed by phase.
func NotificationTask(stageKind string, job SingleDepJob, cat *catalog.Catalog, params Parameters) (Task, bool, error) {
	if params.XPIName == "" || params.XPIRevision == "" || params.ShippingPhase == "" {
		return Task{}, false, nil
	}
	dep := job.Primary
	if dep.XPIName() != params.XPIName {
		return Task{}, false, nil
	}
	t := DependentTask(stageKind, job)
	if t.StringAttr(AttrShippingPhase) != params.ShippingPhase {
		return Task{}, false, nil
	}
	x, err := cat.Get(params.XPIName)
	if err != nil {
		return Task{}, false, err
	}
	t.Label = stageKind + "-" + params.ShippingPhase
	t.Dependencies = map[string]string{"signing": dep.Label}

	keys := map[string]string{"addon-type": x.AddonType, "phase": params.ShippingPhase}
	rawEmails, err := ResolveKeyedBy(t.Task["emails"], keys)
	if err != nil {
		return Task{}, false, fmt.Errorf("%s: emails: %w", t.Label, err)
	}
	delete(t.Task, "emails")
	emails := append(stringSlice(rawEmails), x.AdditionalEmails...)
	emails = append(emails, params.AdditionalShipitEmails...)

	rawNotify, err := ResolveKeyedBy(t.Task["notifications"], keys)
	if err != nil {
		return Task{}, false, fmt.Errorf("%s: notifications: %w", t.Label, err)
	}
	delete(t.Task, "notifications")
	notify, _ := rawNotify.(map[string]any)
	subject, _ := notify["subject"].(string)
	message, _ := notify["message"].(string)

	routes, _ := t.Task["routes"].([]any)
	for _, e := range emails {
		routes = append(routes, "notify.email."+e+".on-completed")
	}
	t.Task["routes"] = routes

	email := map[string]any{"subject": subject}
	if message != "" {
		email["content"] = message
	}
	ensureMap(t.Task, "extra")["notify"] = map[string]any{"email": email}
	return t, true, nil
}

// ResolveKeyedBy evaluates a {"by-<field>": {value: ..., "default": ...}}
// node against keys, recursively. Other values are returned unchanged.
func ResolveKeyedBy(v any, keys map[string]string) (any, error) {
	m, ok := v.(map[string]any)
	if !ok || len(m) != 1 {
		return v, nil
	}
	for k, branches := range m {
		field, keyed := strings.CutPrefix(k, "by-")
		if !keyed {
			return v, nil
		}
		options, ok := branches.(map[string]any)
		if !ok {
			return nil, berrors.New(berrors.ErrConfig, "%s: expected a mapping", k)
		}
		value, known := keys[field]
		if !known {
			return nil, berrors.New(berrors.ErrConfig, "no value to key %s by", field)
		}
		next, ok := options[value]
		if !ok {
			if next, ok = options["default"]; !ok {
				return nil, berrors.New(berrors.ErrConfig, "%s: no entry for %q and no default", k, value)
			}
		}
		return ResolveKeyedBy(next, keys)
	}
	return v, nil
}

// resolveTaskKeys resolves the dotted task fields keyed by level.
func resolveTaskKeys(t Task, params Parameters, fields ...string) error {
	keys := map[string]string{"level": params.Level}
	for _, field := range fields {
		parent := t.Task
		parts := strings.Split(field, ".")
		for _, p := range parts[:len(parts)-1] {
			next, ok := parent[p].(map[string]any)
			if !ok {
				parent = nil
				break
			}
			parent = next
		}
		last := parts[len(parts)-1]
		if parent == nil {
			continue
		}
		if _, ok := parent[last]; !ok {
			continue
		}
		v, err := ResolveKeyedBy(parent[last], keys)
		if err != nil {
			return fmt.Errorf("%s: %s: %w", t.Label, field, err)
		}
		parent[last] = v
	}
	return nil
}

// applyCheckout points the run at the add-on's checkout.
func applyCheckout(payload map[string]any, x catalog.XPI, revision string) {
	run := ensureMap(payload, "run")
	checkout := ensureMap(ensureMap(run, "checkout"), x.RepoPrefix)
	checkout["path"] = CheckoutPath
	if x.Branch != "" {
		checkout["head_ref"] = x.Branch
	}
	if revision != "" {
		checkout["head_rev"] = revision
	}
	if x.Directory != "" {
		run["cwd"] = "{checkout}/" + x.Directory
	}
}

// artifactPrefix is the upstream's ARTIFACT_PREFIX, or the prefix a
// signing task carried forward.
func artifactPrefix(t Task) string {
	if prefix, _ := t.Env()["ARTIFACT_PREFIX"].(string); prefix != "" {
		return prefix
	}
	extra, _ := t.Task["extra"].(map[string]any)
	prefix, _ := extra["artifact_prefix"].(string)
	return prefix
}

// addArtifactScope grants access to non-public upstream artifacts.
func addArtifactScope(t Task, prefix string) {
	if strings.HasPrefix(prefix, "public") {
		return
	}
	scopes, _ := t.Task["scopes"].([]any)
	t.Task["scopes"] = append(scopes, "queue:get-artifact:"+strings.TrimRight(prefix, "/")+"/*")
}

func taskReference(dep Task) map[string]any {
	return map[string]any{"task-reference": "<" + dep.Kind + ">"}
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func stringSlice(v any) []string {
	switch val := v.(type) {
	case []string:
		return append([]string(nil), val...)
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{val}
	}
	return nil
}
