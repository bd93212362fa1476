package taskgraph

import (
	"os"

	"gopkg.in/yaml.v3"

	berrors "github.com/mozilla-extensions/xpi-manifest/internal/errors"
)

// Shipping phases.
const (
	PhaseBuild   = "build"
	PhasePromote = "promote"
	PhaseShip    = "ship"
)

// Parameters are the decision parameters of one graph generation.
type Parameters struct {
	Level                  string   `yaml:"level"`
	Project                string   `yaml:"project"`
	TrustDomain            string   `yaml:"trust_domain"`
	HeadRef                string   `yaml:"head_ref"`
	HeadRev                string   `yaml:"head_rev"`
	HeadTag                string   `yaml:"head_tag"`
	BuildDate              int64    `yaml:"build_date"`
	BuildNumber            int      `yaml:"build_number"`
	Version                string   `yaml:"version"`
	XPIName                string   `yaml:"xpi_name"`
	XPIRevision            string   `yaml:"xpi_revision"`
	ShippingPhase          string   `yaml:"shipping_phase"`
	TargetTasksMethod      string   `yaml:"target_tasks_method"`
	AdditionalShipitEmails []string `yaml:"additional_shipit_emails"`
}

// LoadParameters reads a YAML parameters file.
func LoadParameters(path string) (Parameters, error) {
	var p Parameters
	data, err := os.ReadFile(path)
	if err != nil {
		return p, berrors.New(berrors.ErrConfig, "read parameters: %v", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, berrors.New(berrors.ErrConfig, "decode parameters: %v", err)
	}
	return p, p.Validate()
}

// Validate checks the enumerated parameters.
func (p Parameters) Validate() error {
	switch p.ShippingPhase {
	case "", PhaseBuild, PhasePromote, PhaseShip:
	default:
		return berrors.New(berrors.ErrConfig, "unknown shipping_phase %q", p.ShippingPhase)
	}
	return nil
}

// ReleaseReady reports whether every parameter a release needs is set.
func (p Parameters) ReleaseReady() bool {
	return p.Version != "" && p.XPIName != "" && p.HeadRef != "" && p.BuildNumber > 0 && p.Level != ""
}
