// Package xpi inspects packaged add-on archives and collects build
// artifacts into the build-manifest record.
package xpi

import "strings"

// DefaultAllowlist is the set of add-on id suffixes accepted for signing.
// Changes need to be synced with addons.mozilla.org.
var DefaultAllowlist = Allowlist{
	"@mozilla.com",
	"@mozilla.org",
	"@pioneer.mozilla.org",
	"@search.mozilla.org",
	"@shield.mozilla.com",
	"@shield.mozilla.org",
	"@mozillaonline.com",
	"@mozillafoundation.org",
	"@rally.mozilla.org",
	// legacy id
	"aboutsync@mhammond.github.com",
	"test@tests.mozilla.org",
}

// Allowlist holds accepted add-on id suffixes.
type Allowlist []string

// Allows reports whether id ends with one of the suffixes.
func (a Allowlist) Allows(id string) bool {
	for _, suffix := range a {
		if suffix != "" && strings.HasSuffix(id, suffix) {
			return true
		}
	}
	return false
}

// String renders the list for error messages.
func (a Allowlist) String() string {
	return strings.Join(a, ", ")
}
