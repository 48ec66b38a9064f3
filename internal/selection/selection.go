// Package selection models the user's current choice per category.
package selection

import (
	"maps"

	"ai-profile-studio/internal/catalog"
)

// Selections maps a category id to the chosen option id. Values are treated
// as immutable: every operation returns a new map.
type Selections map[string]string

// Defaults selects the first option of every category.
func Defaults(c *catalog.Catalog) Selections {
	cats := c.Categories()
	out := make(Selections, len(cats))
	for _, cat := range cats {
		out[cat.ID] = cat.Options[0].ID
	}
	return out
}

// Set returns a copy with one entry replaced. It does not validate the pair.
func (s Selections) Set(categoryID, optionID string) Selections {
	out := s.Clone()
	out[categoryID] = optionID
	return out
}

func (s Selections) Get(categoryID string) string {
	return s[categoryID]
}

func (s Selections) Clone() Selections {
	out := make(Selections, len(s))
	maps.Copy(out, s)
	return out
}

func (s Selections) Equal(other Selections) bool {
	return maps.Equal(s, other)
}
