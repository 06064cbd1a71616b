package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// ReviewerTemplate is a predefined reviewer persona: identity, role text,
// model choice and a custom system prompt.
type ReviewerTemplate struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Role         string `json:"role"`
	Model        string `json:"model"`
	SystemPrompt string `json:"system_prompt"`
}

// TemplateCategory groups templates for presentation.
type TemplateCategory struct {
	Name      string             `json:"name"`
	Templates []ReviewerTemplate `json:"templates"`
}

// TemplateCatalog is the full set of reviewer templates.
type TemplateCatalog struct {
	Categories map[string]TemplateCategory `json:"categories"`
}

// LoadTemplates reads a template catalog from a JSON file.
func LoadTemplates(path string) (TemplateCatalog, error) {
	var catalog TemplateCatalog

	raw, err := os.ReadFile(path)
	if err != nil {
		return catalog, fmt.Errorf("load templates: %w", err)
	}
	if err := json.Unmarshal(raw, &catalog); err != nil {
		return catalog, fmt.Errorf("parse templates: %w", err)
	}
	return catalog, nil
}

// Lookup finds a template by id across all categories.
func (c TemplateCatalog) Lookup(id string) (ReviewerTemplate, bool) {
	for _, category := range c.Categories {
		for _, tpl := range category.Templates {
			if tpl.ID == id {
				return tpl, true
			}
		}
	}
	return ReviewerTemplate{}, false
}

// Count returns the number of templates in the catalog.
func (c TemplateCatalog) Count() int {
	n := 0
	for _, category := range c.Categories {
		n += len(category.Templates)
	}
	return n
}
