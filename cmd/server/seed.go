package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/talentforge/assessor/internal/domain"
	"github.com/talentforge/assessor/internal/usecase"
)

type dictYAML struct {
	Name         string `yaml:"name"`
	Competencies []struct {
		Name   string `yaml:"name"`
		Levels []struct {
			Level        int      `yaml:"level"`
			Definition   string   `yaml:"definition"`
			KeyBehaviors []string `yaml:"key_behaviors"`
		} `yaml:"levels"`
	} `yaml:"competencies"`
}

// seedDictionaryFromYAML creates a competency dictionary from a YAML file at
// server startup. Validation runs through the same usecase as the API, so a
// malformed seed file fails loudly instead of producing a half-usable
// dictionary.
func seedDictionaryFromYAML(ctx domain.Context, svc usecase.DictionaryService, path string) (string, error) {
	b, err := os.ReadFile(path) //nolint:gosec // Path comes from deployment config.
	if err != nil {
		return "", fmt.Errorf("seed file: %w", err)
	}
	var doc dictYAML
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return "", fmt.Errorf("seed yaml parse: %w", err)
	}

	d := domain.Dictionary{Name: doc.Name}
	for _, c := range doc.Competencies {
		comp := domain.Competency{Name: c.Name}
		for _, l := range c.Levels {
			comp.Levels = append(comp.Levels, domain.CompetencyLevel{
				Level:        l.Level,
				Definition:   l.Definition,
				KeyBehaviors: l.KeyBehaviors,
			})
		}
		d.Competencies = append(d.Competencies, comp)
	}
	return svc.Create(ctx, d)
}
