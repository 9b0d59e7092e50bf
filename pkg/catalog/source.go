package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// InMemSource serves a fixed plan list. Useful for tests and for services
// that compile their plan tiers into the binary.
type InMemSource struct {
	plans []Plan
}

// NewInMemSource creates a source from the given plans.
func NewInMemSource(plans ...Plan) *InMemSource {
	return &InMemSource{plans: plans}
}

func (s *InMemSource) Load(_ context.Context) (map[string]Plan, error) {
	out := make(map[string]Plan, len(s.plans))
	for _, p := range s.plans {
		if _, exists := out[p.ID]; exists {
			return nil, errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("duplicate plan ID %s", p.ID))
		}
		out[p.ID] = p
	}
	return out, nil
}

// YAMLSource loads plans from a YAML file so pricing revisions ship as
// config changes rather than code changes.
type YAMLSource struct {
	path string
}

// NewYAMLSource creates a source reading the given file on Load.
func NewYAMLSource(path string) *YAMLSource {
	return &YAMLSource{path: path}
}

func (s *YAMLSource) Load(_ context.Context) (map[string]Plan, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}

	var doc struct {
		Plans []Plan `yaml:"plans"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}

	out := make(map[string]Plan, len(doc.Plans))
	for _, p := range doc.Plans {
		if p.ID == "" {
			return nil, errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan %q has no ID", p.Name))
		}
		if _, exists := out[p.ID]; exists {
			return nil, errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("duplicate plan ID %s", p.ID))
		}
		out[p.ID] = p
	}
	return out, nil
}
