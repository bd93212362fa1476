package taskgraph

import (
	berrors "github.com/mozilla-extensions/xpi-manifest/internal/errors"
)

var targetPhases = map[string][]string{
	"build_xpi":   {PhaseBuild},
	"promote_xpi": {PhaseBuild, PhasePromote},
	"ship_xpi":    {PhaseBuild, PhasePromote, PhaseShip},
}

// TargetTasks returns the labels selected by a target-tasks method, in
// input order.
func TargetTasks(tasks []Task, method string) ([]string, error) {
	phases, ok := targetPhases[method]
	if !ok {
		return nil, berrors.New(berrors.ErrConfig, "unknown target tasks method %q", method)
	}
	var labels []string
	for _, t := range tasks {
		if contains(phases, t.StringAttr(AttrShippingPhase)) {
			labels = append(labels, t.Label)
		}
	}
	return labels, nil
}
