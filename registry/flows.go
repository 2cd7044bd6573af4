package registry

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/flowcheck/flowcheck/coverage"
)

// flowsDoc is the YAML shape of a flow definitions file, as produced by the
// flow-compilation subsystem: per flow, the declared steps with their source
// line ranges.
type flowsDoc struct {
	Flows map[string]flowDoc `yaml:"flows"`
}

type flowDoc struct {
	Description string        `yaml:"description"`
	Steps       []flowStepDoc `yaml:"steps"`
}

type flowStepDoc struct {
	ID    string `yaml:"id"`
	Lines string `yaml:"lines"`
}

// LoadFlows parses flow definitions for coverage accounting, ordered by
// flow id.
func LoadFlows(path string) ([]coverage.Flow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading flows file: %w", err)
	}

	var doc flowsDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing flows file: %w", err)
	}

	flows := make([]coverage.Flow, 0, len(doc.Flows))
	for id, fd := range doc.Flows {
		flow := coverage.Flow{ID: id}
		for i, step := range fd.Steps {
			lr, err := coverage.ParseLineRange(step.Lines)
			if err != nil {
				return nil, fmt.Errorf("flow %q step %d: %w", id, i, err)
			}
			flow.Steps = append(flow.Steps, lr)
		}
		flows = append(flows, flow)
	}
	sort.Slice(flows, func(i, j int) bool { return flows[i].ID < flows[j].ID })
	return flows, nil
}
