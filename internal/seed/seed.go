// Package seed holds the embedded award catalogue.
package seed

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/jmehdipour/staffing-awards/internal/model"
	"gopkg.in/yaml.v3"
)

//go:embed subcategories.yaml
var subcategoriesYAML []byte

type catalogue struct {
	Subcategories []model.Subcategory `yaml:"subcategories"`
}

// Subcategories parses the embedded catalogue.
func Subcategories() ([]model.Subcategory, error) {
	return ParseSubcategories(subcategoriesYAML)
}

// ParseSubcategories decodes a catalogue and rejects blank or repeated ids.
func ParseSubcategories(b []byte) ([]model.Subcategory, error) {
	var c catalogue
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse subcategories: %w", err)
	}

	seen := make(map[string]bool, len(c.Subcategories))
	for i, s := range c.Subcategories {
		id := strings.TrimSpace(s.ID)
		if id == "" || strings.TrimSpace(s.Name) == "" {
			return nil, fmt.Errorf("subcategory #%d: id and name are required", i+1)
		}
		if seen[id] {
			return nil, fmt.Errorf("subcategory %q listed twice", id)
		}
		seen[id] = true
		c.Subcategories[i].ID = id
	}
	return c.Subcategories, nil
}
