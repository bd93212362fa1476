package taskgraph

import (
	berrors "github.com/mozilla-extensions/xpi-manifest/internal/errors"
)

// Keyed pairs a group member with its dependency key.
type Keyed struct {
	Key  string
	Task Task
}

// Disambiguate keys every task of a group by its kind, or by its label
// when more than one task of the group shares that kind.
func Disambiguate(group []Task) []Keyed {
	counts := make(map[string]int, len(group))
	for _, t := range group {
		counts[t.Kind]++
	}
	out := make([]Keyed, len(group))
	for i, t := range group {
		key := t.Kind
		if counts[t.Kind] > 1 {
			key = t.Label
		}
		out[i] = Keyed{Key: key, Task: t}
	}
	return out
}

// SelectPrimary picks the task whose attributes a merged descriptor
// inherits. With no priority the group must hold exactly one task.
// Otherwise priority kinds are tried in order and the first kind with a
// matching task wins; a kind matching several tasks is an error.
func SelectPrimary(group []Task, priority []string) (Task, error) {
	if len(priority) == 0 {
		if len(group) != 1 {
			return Task{}, berrors.New(berrors.ErrAmbiguousPrimary,
				"no primary-dependency configured and the group has %d tasks: %s", len(group), labels(group))
		}
		return group[0], nil
	}
	for _, kind := range priority {
		var matches []Task
		for _, t := range group {
			if t.Kind == kind {
				matches = append(matches, t)
			}
		}
		switch len(matches) {
		case 0:
			continue
		case 1:
			return matches[0], nil
		default:
			return Task{}, berrors.New(berrors.ErrDuplicatePrimary,
				"%d tasks of kind %s: %s", len(matches), kind, labels(matches))
		}
	}
	return Task{}, berrors.New(berrors.ErrPrimaryNotFound,
		"none of %v in %s", priority, labels(group))
}
