// Package behavior computes the effective task text and file-I/O behavior for
// chain steps. Resolution is a pure function over the registry and the step's
// inline overrides; nothing here touches the filesystem or spawns processes.
package behavior

import "chainwork/core"

// Resolve computes the effective behavior for one task. Each field follows
// the same precedence independently: inline override > agent default >
// disabled. The agent must exist in the registry; a missing agent yields
// *core.UnknownAgentError before any process can be spawned.
func Resolve(reg core.Registry, agentName string, ov core.BehaviorOverrides) (core.ResolvedBehavior, error) {
	spec, ok := reg.Lookup(agentName)
	if !ok {
		return core.ResolvedBehavior{}, &core.UnknownAgentError{AgentName: agentName}
	}
	return core.ResolvedBehavior{
		OutputPath:       resolveOutput(ov.Output, spec.DefaultOutput),
		ReadPaths:        resolveReads(ov.Reads, spec.DefaultReads),
		ProgressTracking: resolveProgress(ov.Progress, spec.DefaultProgress),
	}, nil
}

func resolveOutput(override, def *core.OutputSetting) string {
	s := override
	if s == nil {
		s = def
	}
	if s == nil || s.Disabled {
		return ""
	}
	return s.Path
}

func resolveReads(override, def *core.ReadsSetting) []string {
	s := override
	if s == nil {
		s = def
	}
	if s == nil || s.Disabled || len(s.Paths) == 0 {
		return nil
	}
	return append([]string(nil), s.Paths...)
}

func resolveProgress(override *bool, def bool) bool {
	if override != nil {
		return *override
	}
	return def
}

// TaskTemplate returns the effective task template for a sequential chain
// step: the inline template, else the agent's saved template, else {task} for
// the first step and {previous} for every subsequent one.
func TaskTemplate(reg core.Registry, step core.SequentialStep, stepIndex int) string {
	if step.TaskTemplate != "" {
		return step.TaskTemplate
	}
	if spec, ok := reg.Lookup(step.AgentName); ok && spec.SavedTemplate != "" {
		return spec.SavedTemplate
	}
	if stepIndex == 0 {
		return "{task}"
	}
	return "{previous}"
}

// GroupTaskTemplate returns the effective template for a task inside a
// parallel group. Group members always default to {previous}; there is no
// first-step {task} special case inside a group.
func GroupTaskTemplate(reg core.Registry, task core.SequentialStep) string {
	if task.TaskTemplate != "" {
		return task.TaskTemplate
	}
	if spec, ok := reg.Lookup(task.AgentName); ok && spec.SavedTemplate != "" {
		return spec.SavedTemplate
	}
	return "{previous}"
}
