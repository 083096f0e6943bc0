package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"chainwork/core"
)

type chainFile struct {
	Steps []core.Step `yaml:"steps"`
}

// LoadChain reads a chain specification file. Every step must be exactly one
// of the two variants; the empty-chain case is rejected here so the CLI
// fails before touching the engine.
func LoadChain(path string) ([]core.Step, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read chain file: %w", err)
	}
	var file chainFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse chain file: %w", err)
	}
	if len(file.Steps) == 0 {
		return nil, core.ErrEmptyChain
	}
	for i, step := range file.Steps {
		switch {
		case step.Task == nil && step.Parallel == nil:
			return nil, fmt.Errorf("step %d: set either task or parallel", i)
		case step.Task != nil && step.Parallel != nil:
			return nil, fmt.Errorf("step %d: task and parallel are mutually exclusive", i)
		case step.Task != nil && step.Task.AgentName == "":
			return nil, fmt.Errorf("step %d: task has no agent", i)
		}
		if step.Parallel != nil {
			for j, t := range step.Parallel.Tasks {
				if t.AgentName == "" {
					return nil, fmt.Errorf("step %d task %d: no agent", i, j)
				}
			}
		}
	}
	return file.Steps, nil
}
