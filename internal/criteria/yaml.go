package criteria

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/annual-report-eval/internal/model"
)

// seedFile is the layout of a YAML criteria seed file.
type seedFile struct {
	Criteria []seedCriterion `yaml:"criteria"`
}

type seedCriterion struct {
	ID           string   `yaml:"id"`
	Question     string   `yaml:"question"`
	Cluster      []string `yaml:"cluster"`
	Role         string   `yaml:"role"`
	Instructions string   `yaml:"instructions"`
	Output       string   `yaml:"output"`
	Prompt       string   `yaml:"prompt"`
	Weight       *float64 `yaml:"weight"`
	Version      string   `yaml:"version"`
	Active       *bool    `yaml:"active"`
}

// LoadYAML reads a criteria seed file. Missing weight, version and active
// fields take the import defaults and missing prompts are derived.
func LoadYAML(path string) ([]model.Criterion, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "criteria: read %s", path)
	}
	return ParseYAML(data)
}

// ParseYAML parses seed file content.
func ParseYAML(data []byte) ([]model.Criterion, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "criteria: parse yaml")
	}

	out := make([]model.Criterion, 0, len(f.Criteria))
	for _, s := range f.Criteria {
		c := model.Criterion{
			ID:           s.ID,
			Question:     s.Question,
			Cluster:      cleanList(s.Cluster),
			Role:         s.Role,
			Instructions: s.Instructions,
			OutputSpec:   s.Output,
			Prompt:       s.Prompt,
			Version:      s.Version,
			Weight:       model.DefaultCriterionWeight,
			Active:       true,
		}
		if s.Weight != nil {
			c.Weight = *s.Weight
		}
		if s.Active != nil {
			c.Active = *s.Active
		}
		if c.Version == "" {
			c.Version = model.DefaultCriterionVersion
		}
		if err := Validate(c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}

	FillPrompts(out)
	return out, nil
}
