package prompt

import (
	"strconv"
	"strings"

	"ai-profile-studio/internal/catalog"
	"ai-profile-studio/internal/selection"
)

const (
	DefaultAspectRatio = "1:1"
	MinImages          = 1
	MaxImages          = 4
)

var aspectRatios = map[string]struct{}{
	"1:1":  {},
	"9:16": {},
	"16:9": {},
	"21:9": {},
}

// Output holds the request parameters derived from the selections.
type Output struct {
	AspectRatio string
	Count       int
}

// ResolveOutput reads the aspect ratio and image count selections. Values
// the provider cannot take fall back to a square single image.
func ResolveOutput(sel selection.Selections, c *catalog.Catalog) Output {
	out := Output{AspectRatio: DefaultAspectRatio, Count: MinImages}

	if o, ok := c.FindOption(catalog.CategoryAspectRatio, sel.Get(catalog.CategoryAspectRatio)); ok {
		if ar := normalizeAspectRatio(o.Fragment); ar != "" {
			out.AspectRatio = ar
		}
	}

	if o, ok := c.FindOption(catalog.CategoryImageCount, sel.Get(catalog.CategoryImageCount)); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(o.Fragment)); err == nil {
			out.Count = ClampCount(n)
		}
	}

	return out
}

// ClampCount keeps an image count inside what one request may ask for.
func ClampCount(n int) int {
	if n < MinImages {
		return MinImages
	}
	if n > MaxImages {
		return MaxImages
	}
	return n
}

func normalizeAspectRatio(value string) string {
	value = strings.ReplaceAll(strings.TrimSpace(value), " ", "")
	if _, ok := aspectRatios[value]; ok {
		return value
	}
	return ""
}
