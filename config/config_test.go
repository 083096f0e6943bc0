package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainwork/core"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAgents(t *testing.T) {
	path := writeFile(t, "agents.yaml", `
agents:
  - name: researcher
    command: /usr/local/bin/worker
    args: ["--mode", "research"]
    model: model-r
    template: "Research the topic: {task}"
    output: findings.md
    reads: [context.md, brief.md]
    progress: true
  - name: minimal
    command: /usr/local/bin/worker
`)
	reg, err := LoadAgents(path)
	require.NoError(t, err)

	spec, ok := reg.Lookup("researcher")
	require.True(t, ok)
	assert.Equal(t, "/usr/local/bin/worker", spec.Command)
	assert.Equal(t, []string{"--mode", "research"}, spec.Args)
	assert.Equal(t, "model-r", spec.Model)
	assert.Equal(t, "Research the topic: {task}", spec.SavedTemplate)
	require.NotNil(t, spec.DefaultOutput)
	assert.Equal(t, "findings.md", spec.DefaultOutput.Path)
	require.NotNil(t, spec.DefaultReads)
	assert.Equal(t, []string{"context.md", "brief.md"}, spec.DefaultReads.Paths)
	assert.True(t, spec.DefaultProgress)

	spec, ok = reg.Lookup("minimal")
	require.True(t, ok)
	assert.Nil(t, spec.DefaultOutput)
	assert.Nil(t, spec.DefaultReads)
	assert.False(t, spec.DefaultProgress)

	assert.ElementsMatch(t, []string{"researcher", "minimal"}, reg.Names())

	_, ok = reg.Lookup("ghost")
	assert.False(t, ok)
}

func TestLoadAgentsRejectsBadEntries(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing name",
			content: "agents:\n  - command: /bin/worker\n",
			wantErr: "without a name",
		},
		{
			name:    "missing command",
			content: "agents:\n  - name: broken\n",
			wantErr: "has no command",
		},
		{
			name:    "duplicate name",
			content: "agents:\n  - name: dup\n    command: /bin/a\n  - name: dup\n    command: /bin/b\n",
			wantErr: "duplicate agent name",
		},
		{
			name:    "invalid yaml",
			content: "agents: [unclosed",
			wantErr: "parse agents file",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadAgents(writeFile(t, "agents.yaml", tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadAgentsMissingFile(t *testing.T) {
	_, err := LoadAgents(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadChain(t *testing.T) {
	path := writeFile(t, "chain.yaml", `
steps:
  - task:
      agent: planner
      task: "Plan: {task}"
  - parallel:
      limit: 2
      fail_fast: true
      tasks:
        - agent: worker-a
        - agent: worker-b
          working_dir: /srv/b
  - task:
      agent: reviewer
`)
	steps, err := LoadChain(path)
	require.NoError(t, err)
	require.Len(t, steps, 3)

	seq, ok := steps[0].AsSequential()
	require.True(t, ok)
	assert.Equal(t, "planner", seq.AgentName)
	assert.Equal(t, "Plan: {task}", seq.TaskTemplate)

	group, ok := steps[1].AsParallel()
	require.True(t, ok)
	assert.Equal(t, 2, group.ConcurrencyLimit)
	assert.True(t, group.FailFast)
	require.Len(t, group.Tasks, 2)
	assert.Equal(t, "/srv/b", group.Tasks[1].WorkingDir)

	assert.Equal(t, 4, core.LeafCount(steps))
}

func TestLoadChainValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "step with neither variant",
			content: "steps:\n  - {}\n",
			wantErr: "set either task or parallel",
		},
		{
			name: "step with both variants",
			content: `
steps:
  - task:
      agent: a
    parallel:
      tasks:
        - agent: b
`,
			wantErr: "mutually exclusive",
		},
		{
			name:    "task without agent",
			content: "steps:\n  - task:\n      task: do it\n",
			wantErr: "has no agent",
		},
		{
			name: "group task without agent",
			content: `
steps:
  - parallel:
      tasks:
        - task: orphaned
`,
			wantErr: "no agent",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadChain(writeFile(t, "chain.yaml", tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadChainEmpty(t *testing.T) {
	_, err := LoadChain(writeFile(t, "chain.yaml", "steps: []\n"))
	assert.ErrorIs(t, err, core.ErrEmptyChain)
}
