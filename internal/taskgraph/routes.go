package taskgraph

import (
	"fmt"
	"strings"
	"time"
)

var signingRouteTemplates = []string{
	"index.{trust-domain}.v2.{project}.{name}.{variant}.revision.{revision}",
	"index.{trust-domain}.v2.{project}.{name}.{variant}.{build_date}.latest",
	"index.{trust-domain}.v2.{project}.{name}.{variant}.latest",
}

// SigningRoutes returns the index routes of a signed add-on. Only level 3
// graphs are indexed.
func SigningRoutes(params Parameters, variant, xpiName string) []string {
	if params.Level != "3" || xpiName == "" {
		return nil
	}
	revision := params.XPIRevision
	if revision == "" {
		revision = "unknown"
	}
	r := strings.NewReplacer(
		"{trust-domain}", params.TrustDomain,
		"{project}", params.Project,
		"{name}", xpiName,
		"{variant}", variant,
		"{revision}", revision,
		"{build_date}", time.Unix(params.BuildDate, 0).UTC().Format("2006.01.02"),
	)
	routes := make([]string, len(signingRouteTemplates))
	for i, tpl := range signingRouteTemplates {
		routes[i] = r.Replace(tpl)
	}
	return routes
}

// ReleaseName is the name of a GitHub release.
func ReleaseName(xpiName, version string, buildNumber int) string {
	return fmt.Sprintf("%s-%s-build%d", xpiName, version, buildNumber)
}
