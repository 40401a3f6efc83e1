package model

import (
	"strings"
	"time"
)

const (
	// DefaultCriterionVersion is applied when an import row omits VERSION.
	DefaultCriterionVersion = "1.0"
	// DefaultCriterionWeight is applied when an import row omits WEIGHT.
	DefaultCriterionWeight = 1.0
)

// Criterion is a versioned evaluation question plus the prompt used to ask
// a model to answer it.
type Criterion struct {
	ID           string    `json:"id" yaml:"id"`
	Question     string    `json:"question" yaml:"question"`
	Cluster      []string  `json:"cluster" yaml:"cluster"`
	Role         string    `json:"role" yaml:"role"`
	Instructions string    `json:"instructions" yaml:"instructions"`
	OutputSpec   string    `json:"output_spec" yaml:"output_spec"`
	Prompt       string    `json:"prompt" yaml:"prompt"`
	Weight       float64   `json:"weight" yaml:"weight"`
	Version      string    `json:"version" yaml:"version"`
	Active       bool      `json:"active" yaml:"active"`
	CreatedAt    time.Time `json:"created_at" yaml:"-"`
	UpdatedAt    time.Time `json:"updated_at" yaml:"-"`
}

// CriterionKey identifies one version of a criterion.
type CriterionKey struct {
	ID      string `json:"id"`
	Version string `json:"version"`
}

func (k CriterionKey) String() string {
	return k.ID + "@" + k.Version
}

// Key returns the (id, version) pair that identifies c.
func (c Criterion) Key() CriterionKey {
	return CriterionKey{ID: c.ID, Version: c.Version}
}

// SearchText returns the text used to query the document index for c.
func (c Criterion) SearchText() string {
	if q := strings.TrimSpace(c.Question); q != "" {
		return q
	}
	return strings.TrimSpace(c.Prompt)
}
