package services

import (
	"fmt"
	"os"
	"strings"

	"helpcy/internal/config"
	contextutils "helpcy/internal/utils"

	"gopkg.in/yaml.v3"
)

// FallbackCategory answers every lookup miss and must exist in every taxonomy
const FallbackCategory = "Other"

// CatalogServiceInterface is the read-only view of the category taxonomy
type CatalogServiceInterface interface {
	AllCategories() []string
	SubcategoriesOf(category string) []string
	IsValidPair(category, subcategory string) bool
	HasCategory(category string) bool
	FallbackCategory() string
	FallbackPair() (string, string)
}

// CatalogEntry is one category and its ordered subcategories
type CatalogEntry struct {
	Name          string   `yaml:"name" json:"name"`
	Subcategories []string `yaml:"subcategories" json:"subcategories"`
}

type catalogFile struct {
	Categories []CatalogEntry `yaml:"categories"`
}

var damageSubcategories = []string{
	"Road",
	"Pavement, footpath",
	"Cycle path",
	"Pedestrian crossing",
	"Traffic sign",
	"Lighting",
	"Sewer, drainage, manhole",
	"Traffic lights",
	"Bridge, tunnel",
	"Bus stop",
	"Road equipment (e.g. poles, bins, benches)",
	"Traffic barrier, safety rail",
	"Exposed wire",
	"Water pipe",
	"Retaining wall",
	"Other",
}

// DefaultCatalogEntries is the built-in taxonomy in display order
func DefaultCatalogEntries() []CatalogEntry {
	return []CatalogEntry{
		{Name: "Damage", Subcategories: damageSubcategories},
		{Name: "Obstacle", Subcategories: []string{"Road", "Pavement", "Cycle path", "Pedestrian crossing", "Traffic sign", "Traffic lights", "Bridge", "Bus stop", "Road equipment", "Other"}},
		{Name: "Vandalism", Subcategories: []string{"Road", "Pavement", "Cycle path", "Traffic sign", "Lighting", "Traffic lights", "Bridge", "Bus stop", "Road equipment", "Traffic barrier", "Water pipe", "Retaining wall", "Other"}},
		{Name: "Vegetation, tree (fall / pruning)", Subcategories: []string{"Road", "Pavement", "Cycle path", "Traffic sign", "Lighting", "Traffic lights", "Bus stop", "Other"}},
		{Name: "Animals", Subcategories: []string{"Road", "Pavement", "Cycle path", "Pedestrian crossing", "Other"}},
		{Name: "Landslide", Subcategories: []string{"Road", "Pavement", "Cycle path", "Pedestrian crossing", "Retaining wall", "Other"}},
		{Name: "Blockage", Subcategories: []string{"Sewer, drainage, manhole", "Water pipe", "Other"}},
		{Name: "Flood", Subcategories: []string{"Road", "Pavement", "Cycle path", "Sewer", "Bridge", "Other"}},
		{Name: FallbackCategory, Subcategories: damageSubcategories},
	}
}

// CatalogService is an immutable category taxonomy
type CatalogService struct {
	categories    []string
	subcategories map[string][]string
}

// NewDefaultCatalog returns the built-in taxonomy
func NewDefaultCatalog() *CatalogService {
	c, err := NewCatalogService(DefaultCatalogEntries())
	if err != nil {
		panic(err)
	}
	return c
}

// NewCatalogService validates entries and builds a catalog from them
func NewCatalogService(entries []CatalogEntry) (*CatalogService, error) {
	if len(entries) == 0 {
		return nil, contextutils.NewAppError(contextutils.ErrorCodeInvalidInput, contextutils.SeverityError, "taxonomy has no categories", "")
	}

	c := &CatalogService{
		categories:    make([]string, 0, len(entries)),
		subcategories: make(map[string][]string, len(entries)),
	}
	for _, e := range entries {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			return nil, contextutils.NewAppError(contextutils.ErrorCodeInvalidInput, contextutils.SeverityError, "taxonomy category has an empty name", "")
		}
		if _, dup := c.subcategories[name]; dup {
			return nil, contextutils.NewAppError(contextutils.ErrorCodeInvalidInput, contextutils.SeverityError, "duplicate taxonomy category", name)
		}
		if len(e.Subcategories) == 0 {
			return nil, contextutils.NewAppError(contextutils.ErrorCodeInvalidInput, contextutils.SeverityError, "taxonomy category has no subcategories", name)
		}
		subs := make([]string, 0, len(e.Subcategories))
		for _, s := range e.Subcategories {
			s = strings.TrimSpace(s)
			if s == "" {
				return nil, contextutils.NewAppError(contextutils.ErrorCodeInvalidInput, contextutils.SeverityError, "taxonomy subcategory has an empty name", name)
			}
			subs = append(subs, s)
		}
		c.categories = append(c.categories, name)
		c.subcategories[name] = subs
	}
	if _, ok := c.subcategories[FallbackCategory]; !ok {
		return nil, contextutils.NewAppError(contextutils.ErrorCodeInvalidInput, contextutils.SeverityError, "taxonomy is missing the fallback category", FallbackCategory)
	}
	return c, nil
}

// LoadCatalogFile reads a YAML taxonomy file
func LoadCatalogFile(path string) (*CatalogService, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, contextutils.WrapErrorf(err, "failed to read catalog file %s", path)
	}
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, contextutils.NewAppErrorWithCause(contextutils.ErrorCodeInvalidFormat, contextutils.SeverityError, "failed to parse catalog file", path, err)
	}
	c, err := NewCatalogService(f.Categories)
	if err != nil {
		return nil, contextutils.WrapErrorf(err, "invalid catalog file %s", path)
	}
	return c, nil
}

// NewCatalogFromConfig returns the file taxonomy when one is configured, else the default
func NewCatalogFromConfig(cfg config.CatalogConfig) (*CatalogService, error) {
	if cfg.File == "" {
		return NewDefaultCatalog(), nil
	}
	return LoadCatalogFile(cfg.File)
}

// AllCategories returns the categories in display order
func (c *CatalogService) AllCategories() []string {
	out := make([]string, len(c.categories))
	copy(out, c.categories)
	return out
}

// SubcategoriesOf returns the subcategories of category, or those of the
// fallback category when it is unknown. It never fails.
func (c *CatalogService) SubcategoriesOf(category string) []string {
	subs, ok := c.subcategories[category]
	if !ok {
		subs = c.subcategories[FallbackCategory]
	}
	out := make([]string, len(subs))
	copy(out, subs)
	return out
}

// IsValidPair reports whether subcategory belongs to category
func (c *CatalogService) IsValidPair(category, subcategory string) bool {
	subs, ok := c.subcategories[category]
	if !ok {
		return false
	}
	for _, s := range subs {
		if s == subcategory {
			return true
		}
	}
	return false
}

// HasCategory reports whether category is part of the taxonomy
func (c *CatalogService) HasCategory(category string) bool {
	_, ok := c.subcategories[category]
	return ok
}

// FallbackCategory returns the category used when nothing else matches
func (c *CatalogService) FallbackCategory() string {
	return FallbackCategory
}

// FallbackPair returns the fallback category and its first subcategory
func (c *CatalogService) FallbackPair() (string, string) {
	return FallbackCategory, c.subcategories[FallbackCategory][0]
}

// Entries returns the taxonomy as ordered entries
func (c *CatalogService) Entries() []CatalogEntry {
	out := make([]CatalogEntry, 0, len(c.categories))
	for _, name := range c.categories {
		out = append(out, CatalogEntry{Name: name, Subcategories: c.SubcategoriesOf(name)})
	}
	return out
}

// String renders the taxonomy as an indented list
func (c *CatalogService) String() string {
	var b strings.Builder
	for i, name := range c.categories {
		fmt.Fprintf(&b, "%d. %s\n", i+1, name)
		for j, sub := range c.subcategories[name] {
			fmt.Fprintf(&b, "   %d.%d %s\n", i+1, j+1, sub)
		}
	}
	return b.String()
}
