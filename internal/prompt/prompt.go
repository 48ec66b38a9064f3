// Package prompt turns a set of selections into the text sent to the image
// model.
package prompt

import (
	"strings"

	"ai-profile-studio/internal/catalog"
	"ai-profile-studio/internal/selection"
)

// NegativePrompt lists what every generation should avoid.
const NegativePrompt = "text, watermark, blurry, low quality, jpeg artifacts, signature, ugly, disfigured, deformed, extra limbs, bad anatomy"

const separator = ", "

// order is the fixed sequence of categories that contribute to the prompt.
// Aspect ratio and image count are request parameters, not prompt text.
var order = []string{
	catalog.CategoryAge,
	catalog.CategoryStyle,
	catalog.CategoryQuality,
	catalog.CategoryMode,
	catalog.CategoryComposition,
	catalog.CategoryExpression,
	catalog.CategorySkin,
	catalog.CategoryFaceShape,
	catalog.CategoryEyes,
	catalog.CategoryHair,
	catalog.CategoryBodyType,
	catalog.CategoryOutfitStyle,
	catalog.CategoryOutfitMaterial,
	catalog.CategoryOutfitColor,
	catalog.CategoryLocation,
	catalog.CategoryWeather,
	catalog.CategoryLighting,
	catalog.CategoryAtmosphere,
	catalog.CategoryCameraModel,
	catalog.CategoryCameraLens,
}

// Order returns a copy of the compile order.
func Order() []string {
	return append([]string(nil), order...)
}

// Compile joins the fragments of the selected options in compile order. Categories
// without a selection, unknown options and empty fragments are skipped.
func Compile(sel selection.Selections, c *catalog.Catalog) string {
	var b strings.Builder
	b.Grow(512)

	for _, categoryID := range order {
		o, ok := c.FindOption(categoryID, sel.Get(categoryID))
		if !ok || o.Fragment == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(separator)
		}
		b.WriteString(o.Fragment)
	}

	return b.String()
}
