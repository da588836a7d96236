package plan

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// PluginFactory constructs the PluginHandle for one stage. The returned
// value must satisfy whatever plugin.* interface dispatch.Dispatch expects
// for kind (plugin.Source, plugin.Transform, plugin.BatchJoiner, ...) —
// Load itself never inspects it. Compiling config into a validated plugin
// instance (schema inference, expression compilation) is deliberately the
// factory's problem, not this package's (spec.md §1).
type PluginFactory func(kind Kind, pluginName string, config map[string]any) (any, error)

// Document is the on-disk YAML shape of a pipeline plan: a stage graph plus
// plugin bindings. Load is a document reader, not a compiler — it assumes
// the document already describes a valid DAG and performs no schema
// inference of its own.
type Document struct {
	Stages []StageDocument `yaml:"stages"`
}

// StageDocument is one stage entry in a plan document.
type StageDocument struct {
	Name           string            `yaml:"name"`
	Type           Kind              `yaml:"type"`
	ConnectorRole  ConnectorRole     `yaml:"connector_role,omitempty"`
	Plugin         string            `yaml:"plugin"`
	Config         map[string]any    `yaml:"config,omitempty"`
	Inputs         []string          `yaml:"inputs,omitempty"`
	OutputPorts    map[string]string `yaml:"output_ports,omitempty"` // downstream stage name -> port name
	Partitions     *int              `yaml:"partitions,omitempty"`
	RequiredInputs []string          `yaml:"required_inputs,omitempty"`
}

// Load parses a YAML plan document, resolves each stage's plugin binding
// through factory, and builds the frozen PipelinePlan via Build.
func Load(data []byte, factory PluginFactory) (*PipelinePlan, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing plan document: %w", err)
	}
	if len(doc.Stages) == 0 {
		return nil, &MalformedPipelineError{Reason: "plan document has no stages"}
	}

	stages := make(map[string]*StageSpec, len(doc.Stages))
	for _, sd := range doc.Stages {
		if sd.Name == "" {
			return nil, &MalformedPipelineError{Reason: "stage with empty name"}
		}
		if _, dup := stages[sd.Name]; dup {
			return nil, &MalformedPipelineError{Reason: fmt.Sprintf("duplicate stage name %q", sd.Name)}
		}

		handle, err := factory(sd.Type, sd.Plugin, sd.Config)
		if err != nil {
			return nil, fmt.Errorf("stage %q: resolving plugin %q: %w", sd.Name, sd.Plugin, err)
		}

		inputSchemas := make(map[string]Schema, len(sd.Inputs))
		for _, in := range sd.Inputs {
			inputSchemas[in] = Schema{}
		}

		var outputPorts map[string]Port
		if len(sd.OutputPorts) > 0 {
			outputPorts = make(map[string]Port, len(sd.OutputPorts))
			for downstream, port := range sd.OutputPorts {
				outputPorts[downstream] = Port{Name: port}
			}
		}

		stages[sd.Name] = &StageSpec{
			Name:           sd.Name,
			PluginType:     sd.Type,
			ConnectorRole:  sd.ConnectorRole,
			PluginName:     sd.Plugin,
			InputSchemas:   inputSchemas,
			OutputPorts:    outputPorts,
			PluginHandle:   handle,
			Partitions:     sd.Partitions,
			RequiredInputs: sd.RequiredInputs,
		}
	}

	return Build(stages)
}
