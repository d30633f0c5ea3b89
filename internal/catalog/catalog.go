package catalog

import (
	"fmt"
	"sort"
	"strings"

	"github.com/MrSnakeDoc/appendix/internal/arcgis"
	"github.com/MrSnakeDoc/appendix/internal/domain"
)

// Default portal items for the California State Water Board factor maps.
const (
	DefaultLSItem = "26961aabd2854bd7bfbb00328e45a059"
	DefaultKItem  = "4ca926e05dad42b1b6ca006b78584f6a"
)

// Catalog is the resolved set of upstream sources.
type Catalog struct {
	PortalURL           string
	Items               map[domain.FactorKey]string
	Labels              map[domain.FactorKey]string
	BasemapBaseURL      string
	BasemapReferenceURL string
}

// Default returns the built-in catalog.
func Default() Catalog {
	return Catalog{
		PortalURL: arcgis.DefaultPortalURL,
		Items: map[domain.FactorKey]string{
			domain.FactorLS: DefaultLSItem,
			domain.FactorK:  DefaultKItem,
		},
		Labels: map[domain.FactorKey]string{
			domain.FactorLS: "Length-Slope",
			domain.FactorK:  "Soil Erodibility",
		},
		BasemapBaseURL:      arcgis.DefaultBasemapBaseURL,
		BasemapReferenceURL: arcgis.DefaultBasemapReferenceURL,
	}
}

// Merge overlays the non-empty values of f onto c.
func (c Catalog) Merge(f File) (Catalog, error) {
	out := Catalog{
		PortalURL:           firstNonEmpty(f.Portal, c.PortalURL),
		Items:               make(map[domain.FactorKey]string, len(c.Items)),
		Labels:              make(map[domain.FactorKey]string, len(c.Labels)),
		BasemapBaseURL:      firstNonEmpty(f.Basemap.Base, c.BasemapBaseURL),
		BasemapReferenceURL: firstNonEmpty(f.Basemap.Reference, c.BasemapReferenceURL),
	}
	for k, v := range c.Items {
		out.Items[k] = v
	}
	for k, v := range c.Labels {
		out.Labels[k] = v
	}

	names := make([]string, 0, len(f.Factors))
	for name := range f.Factors {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		key, err := domain.ParseFactorKey(name)
		if err != nil {
			return Catalog{}, fmt.Errorf("catalog: %w", err)
		}
		entry := f.Factors[name]
		if item := strings.TrimSpace(entry.Item); item != "" {
			out.Items[key] = item
		}
		if entry.Label != "" {
			out.Labels[key] = entry.Label
		}
	}

	return out, out.Validate()
}

// Validate checks that every factor has an item and every URL is set.
func (c Catalog) Validate() error {
	for _, key := range domain.Factors {
		if c.Items[key] == "" {
			return fmt.Errorf("catalog: no portal item for factor %s", key)
		}
	}
	if c.PortalURL == "" {
		return fmt.Errorf("catalog: portal url is empty")
	}
	if c.BasemapBaseURL == "" || c.BasemapReferenceURL == "" {
		return fmt.Errorf("catalog: basemap export urls are required")
	}
	return nil
}

// LoadFile returns Default merged with the yaml at path. An empty path
// yields Default.
func LoadFile(path string) (Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := NewLoader(path).Load()
	if err != nil {
		return Catalog{}, err
	}
	return Default().Merge(f)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
