// Package config loads the file-backed agent registry and chain
// specifications consumed by the chainwork CLI. Both use YAML; the engine
// itself only depends on the core.Registry interface, so embedders are free
// to supply their own registry implementation.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"chainwork/core"
)

// AgentConfig is one agents.yaml entry.
type AgentConfig struct {
	Name     string   `yaml:"name"`
	Command  string   `yaml:"command"`
	Args     []string `yaml:"args,omitempty"`
	Model    string   `yaml:"model,omitempty"`
	Template string   `yaml:"template,omitempty"`

	// Declared file-I/O defaults. An empty Output / Reads means disabled.
	Output   string   `yaml:"output,omitempty"`
	Reads    []string `yaml:"reads,omitempty"`
	Progress bool     `yaml:"progress,omitempty"`
}

type agentsFile struct {
	Agents []AgentConfig `yaml:"agents"`
}

// Registry is an in-memory core.Registry built from configuration.
type Registry struct {
	agents map[string]*core.AgentSpec
}

// NewRegistry builds a registry from specs directly, mainly for tests and
// embedders.
func NewRegistry(specs ...core.AgentSpec) *Registry {
	r := &Registry{agents: make(map[string]*core.AgentSpec, len(specs))}
	for i := range specs {
		r.agents[specs[i].Name] = &specs[i]
	}
	return r
}

// Lookup implements core.Registry.
func (r *Registry) Lookup(name string) (*core.AgentSpec, bool) {
	spec, ok := r.agents[name]
	return spec, ok
}

// Names returns the registered agent names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.agents))
	for n := range r.agents {
		names = append(names, n)
	}
	return names
}

// LoadAgents reads an agents.yaml file into a Registry. Duplicate names and
// entries without a name or command are rejected.
func LoadAgents(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agents file: %w", err)
	}
	var file agentsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse agents file: %w", err)
	}

	r := &Registry{agents: make(map[string]*core.AgentSpec, len(file.Agents))}
	for _, a := range file.Agents {
		if a.Name == "" {
			return nil, fmt.Errorf("agent entry without a name")
		}
		if a.Command == "" {
			return nil, fmt.Errorf("agent %s has no command", a.Name)
		}
		if _, dup := r.agents[a.Name]; dup {
			return nil, fmt.Errorf("duplicate agent name: %s", a.Name)
		}
		r.agents[a.Name] = specFromConfig(a)
	}
	return r, nil
}

func specFromConfig(a AgentConfig) *core.AgentSpec {
	spec := &core.AgentSpec{
		Name:            a.Name,
		Command:         a.Command,
		Args:            append([]string(nil), a.Args...),
		Model:           a.Model,
		SavedTemplate:   a.Template,
		DefaultProgress: a.Progress,
	}
	if a.Output != "" {
		spec.DefaultOutput = &core.OutputSetting{Path: a.Output}
	}
	if len(a.Reads) > 0 {
		spec.DefaultReads = &core.ReadsSetting{Paths: append([]string(nil), a.Reads...)}
	}
	return spec
}
