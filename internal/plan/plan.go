// Package plan reads deployment plans: ordered lists of contracts and
// libraries to deploy, with references between them.
package plan

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/epord/Plasma-Cash-RootChain/internal/sequencer"
)

// ErrInvalidPlan is returned when a plan document is malformed.
var ErrInvalidPlan = errors.New("invalid plan")

//go:embed default.yaml
var defaultPlan []byte

var validate = validator.New()

// Plan is a named, ordered deployment.
type Plan struct {
	Name        string `yaml:"name" validate:"required"`
	Description string `yaml:"description,omitempty"`
	Steps       []Step `yaml:"steps" validate:"dive"`
}

// Step is one entry of a plan document.
type Step struct {
	Name      string   `yaml:"name" validate:"required"`
	Kind      string   `yaml:"kind,omitempty" validate:"omitempty,oneof=contract library"`
	Args      []Arg    `yaml:"args,omitempty"`
	Libraries []string `yaml:"libraries,omitempty" validate:"dive,required"`
}

// Arg is a constructor argument. In YAML it is written as {ref: Name},
// {value: ...}, or a bare scalar where "@Name" is a reference.
type Arg struct {
	Ref   string `yaml:"ref,omitempty"`
	Value any    `yaml:"value,omitempty"`
}

// UnmarshalYAML accepts the mapping and scalar forms.
func (a *Arg) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if strings.HasPrefix(node.Value, "@") && node.ShortTag() == "!!str" {
			a.Ref = strings.TrimPrefix(node.Value, "@")
			if a.Ref == "" {
				return fmt.Errorf("line %d: empty reference", node.Line)
			}
			return nil
		}
		return node.Decode(&a.Value)
	case yaml.MappingNode:
		var raw struct {
			Ref   string `yaml:"ref"`
			Value any    `yaml:"value"`
		}
		if err := node.Decode(&raw); err != nil {
			return err
		}
		if (raw.Ref == "") == (raw.Value == nil) {
			return fmt.Errorf("line %d: argument needs exactly one of ref or value", node.Line)
		}
		a.Ref, a.Value = raw.Ref, raw.Value
		return nil
	default:
		return node.Decode(&a.Value)
	}
}

// Parse decodes and validates a plan document.
func Parse(data []byte) (*Plan, error) {
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPlan, err)
	}
	if err := validate.Struct(&p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPlan, err)
	}
	if err := sequencer.Validate(p.Sequence()); err != nil {
		return nil, err
	}
	return &p, nil
}

// Load reads a plan from path.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return p, nil
}

// Default returns the built-in Plasma Cash plan:
// ValidatorManagerContract, then RootChain, then CryptoMons.
func Default() *Plan {
	p, err := Parse(defaultPlan)
	if err != nil {
		panic(fmt.Sprintf("embedded default plan: %v", err))
	}
	return p
}

// Sequence converts the plan into sequencer steps, preserving order.
func (p *Plan) Sequence() []sequencer.Step {
	steps := make([]sequencer.Step, len(p.Steps))
	for i, s := range p.Steps {
		args := make([]sequencer.Arg, len(s.Args))
		for j, a := range s.Args {
			if a.Ref != "" {
				args[j] = sequencer.Ref(a.Ref)
			} else {
				args[j] = sequencer.Literal(a.Value)
			}
		}
		steps[i] = sequencer.Step{
			Name:      s.Name,
			Kind:      sequencer.Kind(s.Kind),
			Args:      args,
			Libraries: s.Libraries,
		}
	}
	return steps
}
