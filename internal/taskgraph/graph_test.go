package taskgraph

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mozilla-extensions/xpi-manifest/internal/catalog"
	berrors "github.com/mozilla-extensions/xpi-manifest/internal/errors"
)

const testCatalog = `
xpis:
  - name: sys
    repo-prefix: sys
    active: true
    artifacts: [dist/sys.xpi]
    addon-type: system
    install-type: npm
  - name: priv
    repo-prefix: priv
    active: true
    private-repo: true
    branch: main
    directory: ext
    artifacts: [web-ext-artifacts/priv.xpi, web-ext-artifacts/priv-beta.xpi]
    addon-type: standard
    treeherder-symbol: P
    docker-image: node-18
    additional-emails: [priv-owner@example.com]
  - name: old
    repo-prefix: old
    artifacts: [old.xpi]
    addon-type: standard
`

func loadTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Parse([]byte(testCatalog), nil)
	require.NoError(t, err)
	return c
}

func buildTemplate() map[string]any {
	return map[string]any{
		"description":      "build the xpi",
		"run-on-tasks-for": []any{"github-push"},
		"attributes":       map[string]any{"shipping-phase": "build"},
		"worker":           map[string]any{"env": map[string]any{"NODE_ENV": "production"}},
	}
}

func TestBuildTasks(t *testing.T) {
	tasks := BuildTasks("build", buildTemplate(), loadTestCatalog(t), Parameters{})
	require.Len(t, tasks, 2)

	sys := tasks[0]
	assert.Equal(t, "build-sys", sys.Label)
	assert.Equal(t, "sys", sys.XPIName())
	env := sys.Env()
	assert.Equal(t, "sys", env["REPO_PREFIX"])
	assert.Equal(t, "system", env["XPI_TYPE"])
	assert.Equal(t, "public/build", env["ARTIFACT_PREFIX"])
	assert.Equal(t, "npm", env["XPI_INSTALL_TYPE"])
	assert.Equal(t, "dist/sys.xpi", env["XPI_ARTIFACTS"])
	assert.Equal(t, "production", env["NODE_ENV"])
	assert.Equal(t, "system", sys.StringAttr(AttrAddonType))
	assert.Equal(t, "build", sys.StringAttr(AttrShippingPhase))
	assert.Equal(t, []any{"github-push"}, sys.Attributes[AttrRunOnTasksFor])
	assert.Equal(t, map[string]string{"dist/sys.xpi": "public/build/sys.xpi"}, sys.XPIArtifacts())

	priv := tasks[1]
	env = priv.Env()
	assert.Equal(t, "xpi/build", env["ARTIFACT_PREFIX"])
	assert.Equal(t, "web-ext-artifacts/priv.xpi;web-ext-artifacts/priv-beta.xpi", env["XPI_ARTIFACTS"])
	assert.NotContains(t, env, "XPI_INSTALL_TYPE")
	run := priv.Task["run"].(map[string]any)
	assert.Equal(t, "{checkout}/ext", run["cwd"])
	checkout := run["checkout"].(map[string]any)["priv"].(map[string]any)
	assert.Equal(t, "main", checkout["head_ref"])
	assert.Equal(t, CheckoutPath, checkout["path"])
	assert.NotContains(t, checkout, "head_rev")
	worker := priv.Task["worker"].(map[string]any)
	assert.Equal(t, true, worker["taskcluster-proxy"])
	assert.Equal(t, map[string]any{"in-tree": "node-18"}, worker["docker-image"])
	assert.NotContains(t, sys.Task["worker"], "taskcluster-proxy")
}

func TestBuildTasks_SingleXPI(t *testing.T) {
	tasks := BuildTasks("build", nil, loadTestCatalog(t), Parameters{XPIName: "priv", XPIRevision: "abc123"})
	require.Len(t, tasks, 1)
	checkout := tasks[0].Task["run"].(map[string]any)["checkout"].(map[string]any)["priv"].(map[string]any)
	assert.Equal(t, "abc123", checkout["head_rev"])
}

func TestSigningTask(t *testing.T) {
	builds := BuildTasks("build", buildTemplate(), loadTestCatalog(t), Parameters{})
	params := Parameters{Level: "3", Project: "xpi-manifest", TrustDomain: "xpi", BuildDate: time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC).Unix()}

	sys, ok, err := SigningTask("dep-signing", SingleDepJob{Primary: builds[0]}, params)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "dep-signing-sys", sys.Label)
	assert.Equal(t, true, sys.Attributes[AttrSigned])
	assert.Equal(t, "dep-signing", sys.Attributes[AttrKind])
	assert.Equal(t, map[string]string{"build": "build-sys"}, sys.Dependencies)
	assert.NotContains(t, sys.Task, "scopes")
	ua := sys.Task["worker"].(map[string]any)["upstream-artifacts"].([]any)[0].(map[string]any)
	assert.Equal(t, []any{FormatSystemAddon}, ua["formats"])
	assert.Equal(t, []any{"public/build/sys.xpi"}, ua["paths"])
	assert.Equal(t, []any{
		"index.xpi.v2.xpi-manifest.sys.dep-signing.revision.unknown",
		"index.xpi.v2.xpi-manifest.sys.dep-signing.2024.03.05.latest",
		"index.xpi.v2.xpi-manifest.sys.dep-signing.latest",
	}, sys.Task["routes"])

	priv, ok, err := SigningTask("dep-signing", SingleDepJob{Primary: builds[1]}, Parameters{Level: "1"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []any{"queue:get-artifact:xpi/build/*"}, priv.Task["scopes"])
	ua = priv.Task["worker"].(map[string]any)["upstream-artifacts"].([]any)[0].(map[string]any)
	assert.Equal(t, []any{FormatPrivilegedExt}, ua["formats"])
	assert.Equal(t, []any{"xpi/build/priv-beta.xpi", "xpi/build/priv.xpi"}, ua["paths"])
	assert.NotContains(t, priv.Task, "routes")
	assert.Equal(t, "xpi/build", priv.Task["extra"].(map[string]any)["artifact_prefix"])
}

func TestSigningTask_ReleasePruned(t *testing.T) {
	builds := BuildTasks("build", nil, loadTestCatalog(t), Parameters{})
	_, ok, err := SigningTask(ReleaseSigningKind, SingleDepJob{Primary: builds[0]}, Parameters{Level: "3", Version: "1.0"})
	require.NoError(t, err)
	assert.False(t, ok)

	ready := Parameters{Level: "3", Version: "1.0", XPIName: "sys", HeadRef: "main", BuildNumber: 2}
	_, ok, err = SigningTask(ReleaseSigningKind, SingleDepJob{Primary: builds[0]}, ready)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSigningRoutes(t *testing.T) {
	assert.Nil(t, SigningRoutes(Parameters{Level: "1"}, "dep-signing", "foo"))
	assert.Nil(t, SigningRoutes(Parameters{Level: "3"}, "dep-signing", ""))
	routes := SigningRoutes(Parameters{Level: "3", TrustDomain: "xpi", Project: "p", XPIRevision: "abc"}, "release-signing", "foo")
	assert.Equal(t, "index.xpi.v2.p.foo.release-signing.revision.abc", routes[0])
	assert.Equal(t, "index.xpi.v2.p.foo.release-signing.1970.01.01.latest", routes[1])
}

func TestTargetTasks(t *testing.T) {
	tasks := []Task{
		task("build", "build-a", map[string]any{"shipping-phase": "build"}),
		task("promote", "promote-a", map[string]any{"shipping-phase": "promote"}),
		task("ship", "ship-a", map[string]any{"shipping-phase": "ship"}),
		task("other", "other-a", nil),
	}
	labels, err := TargetTasks(tasks, "build_xpi")
	require.NoError(t, err)
	assert.Equal(t, []string{"build-a"}, labels)

	labels, err = TargetTasks(tasks, "promote_xpi")
	require.NoError(t, err)
	assert.Equal(t, []string{"build-a", "promote-a"}, labels)

	labels, err = TargetTasks(tasks, "ship_xpi")
	require.NoError(t, err)
	assert.Equal(t, []string{"build-a", "promote-a", "ship-a"}, labels)

	_, err = TargetTasks(tasks, "nightly")
	assert.Error(t, err)
}

func TestReleaseName(t *testing.T) {
	assert.Equal(t, "foo-1.2.3-build4", ReleaseName("foo", "1.2.3", 4))
}

func TestParameters_ReleaseReady(t *testing.T) {
	p := Parameters{Version: "1.0", XPIName: "foo", HeadRef: "main", BuildNumber: 1, Level: "3"}
	assert.True(t, p.ReleaseReady())
	p.HeadRef = ""
	assert.False(t, p.ReleaseReady())
	assert.Error(t, Parameters{ShippingPhase: "later"}.Validate())
}

type countingObserver map[string]int

func (c countingObserver) TaskGroup(kind string) { c[kind]++ }

func TestGenerator_Generate(t *testing.T) {
	kinds := []Kind{
		{Name: "upload", Config: KindConfig{
			Loader:            LoaderMultiDep,
			KindDependencies:  []string{"build", "dep-signing"},
			GroupBy:           "xpi-name",
			PrimaryDependency: StringList{"dep-signing", "build"},
			JobTemplate:       map[string]any{"attributes": map[string]any{"shipping-phase": "promote"}},
		}},
		{Name: "dep-signing", Config: KindConfig{
			Loader:           LoaderSingleDep,
			Transforms:       []string{TransformSigning},
			KindDependencies: []string{"build"},
		}},
		{Name: "test", Config: KindConfig{
			Loader:            LoaderSingleDep,
			KindDependencies:  []string{"build"},
			OnlyForAddonTypes: []string{"system"},
		}},
		{Name: "build", Config: KindConfig{Loader: LoaderBuild, JobTemplate: buildTemplate()}},
	}
	obs := countingObserver{}
	g := NewGenerator(loadTestCatalog(t), Parameters{Level: "1"}, obs, zerolog.Nop())

	tasks, err := g.Generate(kinds)
	require.NoError(t, err)

	labels := make([]string, len(tasks))
	byLabel := make(map[string]Task, len(tasks))
	for i, tk := range tasks {
		labels[i] = tk.Label
		byLabel[tk.Label] = tk
	}
	assert.Equal(t, []string{
		"build-sys", "build-priv",
		"dep-signing-sys", "dep-signing-priv",
		"test-sys",
		"upload-sys", "upload-priv",
	}, labels)
	assert.Equal(t, 2, obs["upload"])

	upload := byLabel["upload-priv"]
	assert.Equal(t, map[string]string{"build": "build-priv", "dep-signing": "dep-signing-priv"}, upload.Dependencies)
	assert.Equal(t, true, upload.Attributes[AttrSigned])
	assert.Equal(t, "promote", upload.StringAttr(AttrShippingPhase))
	assert.Equal(t, "upload", upload.StringAttr(AttrKind))
	assert.Equal(t, []any{"github-push"}, upload.Task["run-on-tasks-for"])

	targets, err := TargetTasks(tasks, "promote_xpi")
	require.NoError(t, err)
	assert.Contains(t, targets, "upload-priv")
	assert.Contains(t, targets, "build-priv")
}

func TestGenerator_DuplicatePrimary(t *testing.T) {
	kinds := []Kind{
		{Name: "build", Config: KindConfig{Loader: LoaderBuild}},
		{Name: "bundle", Config: KindConfig{
			Loader:            LoaderMultiDep,
			KindDependencies:  []string{"build"},
			GroupBy:           "addon-type",
			PrimaryDependency: StringList{"build"},
		}},
	}
	cat := loadTestCatalog(t)
	cat.XPIs[2].Active = true
	cat.XPIs[2].AddonType = "standard"

	_, err := NewGenerator(cat, Parameters{}, nil, zerolog.Nop()).Generate(kinds)
	assert.ErrorIs(t, err, berrors.ErrDuplicatePrimary)
}
