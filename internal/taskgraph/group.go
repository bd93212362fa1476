package taskgraph

import (
	"fmt"
	"sort"

	berrors "github.com/mozilla-extensions/xpi-manifest/internal/errors"
)

// GroupKeyFunc extracts the grouping key of a task.
type GroupKeyFunc func(Task) string

// ByAttribute groups tasks by the string value of an attribute.
func ByAttribute(name string) GroupKeyFunc {
	return func(t Task) string { return t.StringAttr(name) }
}

// ByXPIName groups tasks by the add-on they were built for.
func ByXPIName(t Task) string {
	return t.XPIName()
}

var groupByFuncs = map[string]GroupKeyFunc{
	"addon-type": ByAttribute(AttrAddonType),
	"xpi-name":   ByXPIName,
}

// GroupByFunc returns a registered group-by function.
func GroupByFunc(name string) (GroupKeyFunc, error) {
	fn, ok := groupByFuncs[name]
	if !ok {
		names := make([]string, 0, len(groupByFuncs))
		for n := range groupByFuncs {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, berrors.New(berrors.ErrConfig, "unknown group-by %q (known: %v)", name, names)
	}
	return fn, nil
}

// Filter restricts which upstream tasks take part in grouping.
type Filter struct {
	// Kinds is required: only tasks of these kinds are considered.
	Kinds []string
	// AddonTypes, when set, keeps tasks whose addon-type attribute is listed.
	AddonTypes []string
	// Attributes, when set, keeps tasks carrying at least one of these attributes.
	Attributes []string
}

// Match reports whether t passes the filter.
func (f Filter) Match(t Task) bool {
	if !contains(f.Kinds, t.Kind) {
		return false
	}
	if len(f.AddonTypes) > 0 && !contains(f.AddonTypes, t.StringAttr(AttrAddonType)) {
		return false
	}
	if len(f.Attributes) > 0 {
		for _, a := range f.Attributes {
			if _, ok := t.Attributes[a]; ok {
				return true
			}
		}
		return false
	}
	return true
}

// Group partitions the tasks that pass filter by key. Groups are returned
// in the order their key was first seen, and every task is a deep copy.
func Group(tasks []Task, key GroupKeyFunc, filter Filter) [][]Task {
	index := make(map[string]int)
	var groups [][]Task
	for _, t := range tasks {
		if !filter.Match(t) {
			continue
		}
		k := key(t)
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], t.Clone())
	}
	return groups
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func labels(tasks []Task) string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.Label
	}
	return fmt.Sprint(out)
}
