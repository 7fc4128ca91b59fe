package analysis

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/teleop-linksim/internal/config"
)

const (
	defaultProbes   = 100
	defaultInterval = 5 * time.Millisecond
	defaultSettle   = 50 * time.Millisecond
)

// ErrEmptyPlan is returned for a plan without cases.
var ErrEmptyPlan = errors.New("analysis: plan has no cases")

// Plan is a list of link conditions to probe.
type Plan struct {
	// Probes is the number of probe commands sent per case.
	Probes int `json:"probes" yaml:"probes"`
	// Interval separates consecutive probes.
	Interval time.Duration `json:"interval" yaml:"interval"`
	// Settle is waited beyond the worst-case delivery horizon before draining.
	Settle time.Duration `json:"settle" yaml:"settle"`
	Cases  []Case        `json:"cases" yaml:"cases"`
}

// Case is one named condition set.
type Case struct {
	Name              string `json:"name" yaml:"name"`
	config.LinkConfig `yaml:",inline"`
}

// ApplyDefaults fills zero values and names unnamed cases.
func (p *Plan) ApplyDefaults() {
	if p.Probes <= 0 {
		p.Probes = defaultProbes
	}
	if p.Interval <= 0 {
		p.Interval = defaultInterval
	}
	if p.Settle <= 0 {
		p.Settle = defaultSettle
	}
	for i := range p.Cases {
		if p.Cases[i].Name == "" {
			p.Cases[i].Name = fmt.Sprintf("case-%d", i+1)
		}
		if p.Cases[i].Bandwidth == 0 {
			p.Cases[i].Bandwidth = config.Default().Link.Bandwidth
		}
	}
}

// ParsePlan decodes a YAML plan.
func ParsePlan(data []byte) (Plan, error) {
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Plan{}, fmt.Errorf("parsing sweep plan: %w", err)
	}
	if len(p.Cases) == 0 {
		return Plan{}, ErrEmptyPlan
	}
	p.ApplyDefaults()
	return p, nil
}

// LoadPlan reads a YAML plan from path.
func LoadPlan(path string) (Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Plan{}, fmt.Errorf("reading sweep plan: %w", err)
	}
	return ParsePlan(data)
}
