package embassy

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/haithamq/visaflow/internal/core/domain"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type catalogRequirement struct {
	ID                   string         `yaml:"id"`
	DescriptionPrimary   string         `yaml:"description_primary"`
	DescriptionSecondary string         `yaml:"description_secondary"`
	Category             string         `yaml:"category"`
	Mandatory            bool           `yaml:"mandatory"`
	DocumentType         string         `yaml:"document_type"`
	Specifications       map[string]any `yaml:"specifications"`
}

// loadCatalog parses the embedded fallback requirement sets, keyed by visa
// type. Requirement ids in the catalog are suffixes; the fetcher prefixes
// them with the country id.
func loadCatalog() (map[string][]catalogRequirement, error) {
	catalog := make(map[string][]catalogRequirement)
	if err := yaml.Unmarshal(defaultsYAML, &catalog); err != nil {
		return nil, fmt.Errorf("parse requirement catalog: %w", err)
	}
	if len(catalog) == 0 {
		return nil, fmt.Errorf("requirement catalog is empty")
	}
	return catalog, nil
}

func (c catalogRequirement) toDomain(countryID string) domain.Requirement {
	return domain.Requirement{
		ID:                   fmt.Sprintf("req-%s-%s", countryID, c.ID),
		DescriptionPrimary:   c.DescriptionPrimary,
		DescriptionSecondary: c.DescriptionSecondary,
		Category:             c.Category,
		IsMandatory:          c.Mandatory,
		DocumentType:         c.DocumentType,
		Specifications:       c.Specifications,
	}
}
