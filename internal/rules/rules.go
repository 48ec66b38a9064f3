// Package rules keeps a set of selections consistent with the catalog.
//
// Two rules run on every change: the hair filter, which keeps the hairstyle
// in line with the subject's gender, and the safety interlock, which refuses
// full body and low angle framing for a bikini outfit. The rules touch
// disjoint categories, so their order does not matter.
package rules

import (
	"ai-profile-studio/internal/catalog"
	"ai-profile-studio/internal/selection"
)

type EventKind string

const (
	// EventSafetyOverride is raised when the interlock rewrites a selection.
	EventSafetyOverride EventKind = "safety_override"
)

type Event struct {
	Kind     EventKind
	Category string
	From     string
	To       string
}

// Result is the outcome of one normalization pass.
type Result struct {
	Selections selection.Selections
	// Engaged reports whether the safety interlock is holding an override.
	Engaged bool
	Events  []Event
}

// Normalize turns a requested selection set into a consistent one.
//
// prev is the last consistent state, next the requested one and engaged the
// interlock flag carried over from the previous pass. Entries for unknown
// categories are dropped and unknown or missing options fall back to the
// first applicable option; those repairs never raise events.
func Normalize(c *catalog.Catalog, prev, next selection.Selections, engaged bool) Result {
	out := repair(c, next)
	out, _ = NormalizeHair(c, out)

	out, engaged, ev := ApplySafetyInterlock(prev, out, engaged)

	res := Result{Selections: out, Engaged: engaged}
	if ev != nil {
		res.Events = append(res.Events, *ev)
	}
	return res
}

func repair(c *catalog.Catalog, sel selection.Selections) selection.Selections {
	out := make(selection.Selections, c.Len())
	for _, cat := range c.Categories() {
		if _, ok := cat.Option(sel.Get(cat.ID)); ok {
			out[cat.ID] = sel.Get(cat.ID)
			continue
		}
		if cat.ID == catalog.CategoryHair {
			// Resolved against the subject's gender below.
			out[cat.ID] = ""
			continue
		}
		out[cat.ID] = cat.Options[0].ID
	}
	return out
}
