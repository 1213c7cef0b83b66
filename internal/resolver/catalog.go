package resolver

import (
	_ "embed"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed requirements.yaml
var defaultCatalogYAML []byte

// Catalog is the ordered list of fields the onboarding flow can request.
// Order matters: the deterministic fallback walks it front to back.
type Catalog struct {
	Fields []CatalogField `yaml:"fields"`
}

// CatalogField describes one requestable field.
type CatalogField struct {
	Name      string `yaml:"name"`
	Label     string `yaml:"label"`
	Mandatory bool   `yaml:"mandatory"`
	// Categories restricts the field to business types containing one of
	// these tokens. Empty means the field applies to every business.
	Categories []string `yaml:"categories"`
}

// AppliesTo reports whether the field is required for the given business
// type. Matching is a case-insensitive substring check so "Food Processing"
// picks up the "food" category.
func (f CatalogField) AppliesTo(businessType string) bool {
	if len(f.Categories) == 0 {
		return true
	}
	bt := strings.ToLower(businessType)
	for _, c := range f.Categories {
		if strings.Contains(bt, strings.ToLower(c)) {
			return true
		}
	}
	return false
}

// LoadCatalog reads a requirements catalog from a YAML file. An empty path
// loads the embedded default.
func LoadCatalog(path string) (*Catalog, error) {
	data := defaultCatalogYAML
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "resolver: read catalog %s", path)
		}
	}

	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, eris.Wrap(err, "resolver: parse catalog")
	}
	if len(catalog.Fields) == 0 {
		return nil, eris.New("resolver: catalog has no fields")
	}

	for i := range catalog.Fields {
		catalog.Fields[i].Name = strings.ToLower(strings.TrimSpace(catalog.Fields[i].Name))
		if catalog.Fields[i].Label == "" {
			catalog.Fields[i].Label = strings.ReplaceAll(catalog.Fields[i].Name, "_", " ")
		}
	}
	return &catalog, nil
}

// Label returns the human prompt label for a field name. Unknown fields get
// their underscores replaced so they still read naturally in a sentence.
func (c *Catalog) Label(field string) string {
	for _, f := range c.Fields {
		if f.Name == field {
			return f.Label
		}
	}
	return strings.ReplaceAll(field, "_", " ")
}
