// Package catalog holds the fixed option taxonomy the prompt is composed from.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultData []byte

// Category ids the rules engine and the request builder refer to directly.
const (
	CategoryAge            = "age"
	CategoryStyle          = "style"
	CategoryQuality        = "quality"
	CategoryMode           = "mode"
	CategoryComposition    = "composition"
	CategoryAspectRatio    = "aspectRatio"
	CategoryExpression     = "expression"
	CategorySkin           = "skin"
	CategoryFaceShape      = "face_shape"
	CategoryEyes           = "eyes"
	CategoryHair           = "hair"
	CategoryBodyType       = "body_type"
	CategoryOutfitStyle    = "outfit_style"
	CategoryOutfitMaterial = "outfit_material"
	CategoryOutfitColor    = "outfit_color"
	CategoryLocation       = "location"
	CategoryWeather        = "weather"
	CategoryLighting       = "lighting"
	CategoryAtmosphere     = "atmosphere"
	CategoryCameraModel    = "camera_model"
	CategoryCameraLens     = "camera_lens"
	CategoryImageCount     = "numberOfImages"
)

type Gender string

const (
	GenderNone   Gender = ""
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderUnisex Gender = "unisex"
)

// Tagged reports whether the option is restricted to one gender.
func (g Gender) Tagged() bool {
	return g == GenderMale || g == GenderFemale
}

type Option struct {
	ID       string `yaml:"id" json:"id"`
	Label    string `yaml:"label" json:"label"`
	Fragment string `yaml:"fragment" json:"fragment"`
	Gender   Gender `yaml:"gender,omitempty" json:"gender,omitempty"`
}

type Category struct {
	ID      string   `yaml:"id" json:"id"`
	Label   string   `yaml:"label" json:"label"`
	Options []Option `yaml:"options" json:"options"`
}

// Option returns the option with the given id.
func (c Category) Option(id string) (Option, bool) {
	for _, o := range c.Options {
		if o.ID == id {
			return o, true
		}
	}
	return Option{}, false
}

// Catalog is an immutable, ordered list of categories.
type Catalog struct {
	categories []Category
	index      map[string]int
}

type document struct {
	Categories []Category `yaml:"categories"`
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
	defaultErr     error
)

// Default returns the built-in catalog. It panics if the embedded dataset is
// broken, which only a bad edit of catalog.yaml can cause.
func Default() *Catalog {
	defaultOnce.Do(func() {
		defaultCatalog, defaultErr = Load(defaultData)
	})
	if defaultErr != nil {
		panic(fmt.Sprintf("catalog: embedded dataset: %v", defaultErr))
	}
	return defaultCatalog
}

// Load parses and validates a YAML catalog document.
func Load(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return New(doc.Categories)
}

// New builds a catalog from categories, copying them.
func New(categories []Category) (*Catalog, error) {
	if len(categories) == 0 {
		return nil, errors.New("catalog has no categories")
	}

	c := &Catalog{
		categories: make([]Category, 0, len(categories)),
		index:      make(map[string]int, len(categories)),
	}

	for _, cat := range categories {
		cat.ID = strings.TrimSpace(cat.ID)
		if cat.ID == "" {
			return nil, errors.New("category with empty id")
		}
		if _, dup := c.index[cat.ID]; dup {
			return nil, fmt.Errorf("duplicate category %q", cat.ID)
		}
		if len(cat.Options) == 0 {
			return nil, fmt.Errorf("category %q has no options", cat.ID)
		}

		seen := make(map[string]struct{}, len(cat.Options))
		opts := make([]Option, 0, len(cat.Options))
		for _, o := range cat.Options {
			if o.ID == "" {
				return nil, fmt.Errorf("category %q: option with empty id", cat.ID)
			}
			if _, dup := seen[o.ID]; dup {
				return nil, fmt.Errorf("category %q: duplicate option %q", cat.ID, o.ID)
			}
			switch o.Gender {
			case GenderNone, GenderMale, GenderFemale, GenderUnisex:
			default:
				return nil, fmt.Errorf("category %q: option %q: unknown gender %q", cat.ID, o.ID, o.Gender)
			}
			seen[o.ID] = struct{}{}
			opts = append(opts, o)
		}
		cat.Options = opts

		c.index[cat.ID] = len(c.categories)
		c.categories = append(c.categories, cat)
	}

	return c, nil
}

// Categories returns the categories in declaration order. The caller may not
// modify the returned options.
func (c *Catalog) Categories() []Category {
	out := make([]Category, len(c.categories))
	copy(out, c.categories)
	return out
}

func (c *Catalog) FindCategory(id string) (Category, bool) {
	i, ok := c.index[id]
	if !ok {
		return Category{}, false
	}
	return c.categories[i], true
}

func (c *Catalog) FindOption(categoryID, optionID string) (Option, bool) {
	cat, ok := c.FindCategory(categoryID)
	if !ok {
		return Option{}, false
	}
	return cat.Option(optionID)
}

// Len returns the number of categories.
func (c *Catalog) Len() int {
	return len(c.categories)
}
