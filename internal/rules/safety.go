package rules

import (
	"ai-profile-studio/internal/catalog"
	"ai-profile-studio/internal/selection"
)

const (
	OutfitBikini       = "bikini"
	CompositionFull    = "fullbody"
	CompositionLow     = "low_angle"
	CompositionDefault = "medium"
)

// IsRisky reports whether the outfit and composition combination is one the
// interlock refuses.
func IsRisky(sel selection.Selections) bool {
	if sel.Get(catalog.CategoryOutfitStyle) != OutfitBikini {
		return false
	}
	switch sel.Get(catalog.CategoryComposition) {
	case CompositionFull, CompositionLow:
		return true
	}
	return false
}

// ApplySafetyInterlock compares the previous and requested selections.
//
// A risky request has its composition rewritten to medium. The override event
// is only returned when the interlock was not already engaged, so repeating
// the same request does not warn twice. A non-risky change to either of the
// two watched categories releases the interlock; a pass that touches neither
// leaves it as it was.
func ApplySafetyInterlock(prev, next selection.Selections, engaged bool) (selection.Selections, bool, *Event) {
	if IsRisky(next) {
		requested := next.Get(catalog.CategoryComposition)
		next = next.Set(catalog.CategoryComposition, CompositionDefault)
		if engaged {
			return next, true, nil
		}
		return next, true, &Event{
			Kind:     EventSafetyOverride,
			Category: catalog.CategoryComposition,
			From:     requested,
			To:       CompositionDefault,
		}
	}

	if watchedChanged(prev, next) {
		return next, false, nil
	}
	return next, engaged, nil
}

func watchedChanged(prev, next selection.Selections) bool {
	return prev.Get(catalog.CategoryOutfitStyle) != next.Get(catalog.CategoryOutfitStyle) ||
		prev.Get(catalog.CategoryComposition) != next.Get(catalog.CategoryComposition)
}
