package rules

import (
	"strings"

	"ai-profile-studio/internal/catalog"
	"ai-profile-studio/internal/selection"
)

// SubjectGender derives the subject's gender from the selected age option.
// Anything that is not a female option counts as male.
func SubjectGender(sel selection.Selections) catalog.Gender {
	if strings.Contains(sel.Get(catalog.CategoryAge), string(catalog.GenderFemale)) {
		return catalog.GenderFemale
	}
	return catalog.GenderMale
}

// Applicable reports whether an option may be offered for the given gender.
func Applicable(o catalog.Option, g catalog.Gender) bool {
	return !o.Gender.Tagged() || o.Gender == g
}

// EffectiveOptions returns the options of a category that apply to the
// current subject. Only the hair category is filtered.
func EffectiveOptions(cat catalog.Category, sel selection.Selections) []catalog.Option {
	if cat.ID != catalog.CategoryHair {
		return cat.Options
	}

	g := SubjectGender(sel)
	out := make([]catalog.Option, 0, len(cat.Options))
	for _, o := range cat.Options {
		if Applicable(o, g) {
			out = append(out, o)
		}
	}
	return out
}

// EffectiveCatalog returns every category with its options filtered for the
// current subject, in catalog order.
func EffectiveCatalog(c *catalog.Catalog, sel selection.Selections) []catalog.Category {
	cats := c.Categories()
	for i, cat := range cats {
		cat.Options = EffectiveOptions(cat, sel)
		cats[i] = cat
	}
	return cats
}

// NormalizeHair reassigns the hair selection to the first applicable option
// when the selected style belongs to the other gender or is unknown. It
// reports whether anything changed.
func NormalizeHair(c *catalog.Catalog, sel selection.Selections) (selection.Selections, bool) {
	hair, ok := c.FindCategory(catalog.CategoryHair)
	if !ok {
		return sel, false
	}

	g := SubjectGender(sel)
	current, ok := hair.Option(sel.Get(catalog.CategoryHair))
	if ok && Applicable(current, g) {
		return sel, false
	}

	effective := EffectiveOptions(hair, sel)
	if len(effective) == 0 {
		return sel, false
	}
	return sel.Set(catalog.CategoryHair, effective[0].ID), true
}
