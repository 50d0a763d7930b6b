package topology

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Load decodes a service_template document (spec.md §6, "spec.service_
// template") into a Topology. It is intentionally a thin, schema-light
// decode: the TOSCA-style type system, capability-type compatibility
// checking, and requirement auto-binding are the (out-of-scope) parser/
// validator's job; Load only trusts that node_templates are already
// expressed in this engine's flattened shape (type, properties,
// attributes, requirements, capabilities, interfaces).
//
// Grounded on the teacher's internal/config.LoadConfig: round-trip a
// generic map through gopkg.in/yaml.v3 into a tagged struct rather than
// hand-walking map[string]any.
func Load(serviceTemplate map[string]any, inputs map[string]any) (*Topology, error) {
	data, err := yaml.Marshal(serviceTemplate)
	if err != nil {
		return nil, fmt.Errorf("topology: marshaling service_template: %w", err)
	}

	var doc serviceTemplateDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("topology: decoding service_template: %w", err)
	}

	templates := make(map[string]*Template, len(doc.NodeTemplates))
	for name, nt := range doc.NodeTemplates {
		tmpl, err := nt.toTemplate(name)
		if err != nil {
			return nil, fmt.Errorf("topology: node template %q: %w", name, err)
		}
		templates[name] = tmpl
	}

	return &Topology{
		Templates:      templates,
		Inputs:         inputs,
		RequiredInputs: doc.RequiredInputs,
	}, nil
}

type serviceTemplateDoc struct {
	RequiredInputs []string                    `yaml:"required_inputs,omitempty"`
	NodeTemplates  map[string]nodeTemplateYAML `yaml:"node_templates"`
}

type nodeTemplateYAML struct {
	Type         string                              `yaml:"type"`
	TypeChain    []string                             `yaml:"type_chain,omitempty"`
	Properties   map[string]any                       `yaml:"properties,omitempty"`
	Attributes   map[string]any                       `yaml:"attributes,omitempty"`
	Directives   []string                             `yaml:"directives,omitempty"`
	Requirements []requirementYAML                    `yaml:"requirements,omitempty"`
	Capabilities []capabilityYAML                     `yaml:"capabilities,omitempty"`
	Interfaces   map[string]map[string]operationYAML  `yaml:"interfaces,omitempty"`
}

type requirementYAML struct {
	Name         string `yaml:"name"`
	Target       string `yaml:"target,omitempty"`
	TargetType   string `yaml:"targetType,omitempty"`
	Relationship string `yaml:"relationship,omitempty"`
	Priority     string `yaml:"priority,omitempty"`
}

type capabilityYAML struct {
	Name string `yaml:"name"`
	Type string `yaml:"type,omitempty"`
}

type operationYAML struct {
	Implementation   string          `yaml:"implementation"`
	Inputs           map[string]any  `yaml:"inputs,omitempty"`
	TimeoutSeconds   int             `yaml:"timeoutSeconds,omitempty"`
	Version          string          `yaml:"version,omitempty"`
	ExcludeFromInput []string        `yaml:"excludeFromInput,omitempty"`
	PreConditions    []conditionYAML `yaml:"preConditions,omitempty"`
	PostConditions   []conditionYAML `yaml:"postConditions,omitempty"`
}

type conditionYAML struct {
	Ref      string `yaml:"ref"`
	Expected any    `yaml:"expected"`
}

func (nt nodeTemplateYAML) toTemplate(name string) (*Template, error) {
	if nt.Type == "" {
		return nil, fmt.Errorf("missing 'type'")
	}

	tmpl := &Template{
		Name:       name,
		Type:       nt.Type,
		TypeChain:  nt.TypeChain,
		Properties: nt.Properties,
		Attributes: nt.Attributes,
		Operations: map[string]OperationSpec{},
	}

	for _, d := range nt.Directives {
		tmpl.Directives = append(tmpl.Directives, Directive(d))
	}
	for _, r := range nt.Requirements {
		tmpl.Requirements = append(tmpl.Requirements, Requirement{
			Name:             r.Name,
			TargetNodeName:   r.Target,
			TargetType:       r.TargetType,
			RelationshipType: r.Relationship,
			Priority:         r.Priority,
		})
	}
	for _, c := range nt.Capabilities {
		tmpl.Capabilities = append(tmpl.Capabilities, Capability{Name: c.Name, Type: c.Type})
	}

	for iface, ops := range nt.Interfaces {
		for opName, opSpec := range ops {
			tmpl.Operations[iface+"."+opName] = OperationSpec{
				Interface:        iface,
				Operation:        opName,
				Implementation:   opSpec.Implementation,
				Inputs:           opSpec.Inputs,
				Timeout:          time.Duration(opSpec.TimeoutSeconds) * time.Second,
				PreConditions:    toConditions(opSpec.PreConditions),
				PostConditions:   toConditions(opSpec.PostConditions),
				Version:          opSpec.Version,
				ExcludeFromInput: opSpec.ExcludeFromInput,
			}
		}
	}

	return tmpl, nil
}

func toConditions(in []conditionYAML) []Condition {
	if len(in) == 0 {
		return nil
	}
	out := make([]Condition, len(in))
	for i, c := range in {
		out[i] = Condition{Ref: c.Ref, Expected: c.Expected}
	}
	return out
}
