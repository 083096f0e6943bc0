package core

// OutputSetting declares where a task writes its primary output file.
// Disabled wins over Path; a zero value means "write to Path".
type OutputSetting struct {
	Disabled bool   `yaml:"disabled,omitempty" json:"disabled,omitempty"`
	Path     string `yaml:"path,omitempty" json:"path,omitempty"`
}

// ReadsSetting declares which files a task reads before starting.
type ReadsSetting struct {
	Disabled bool     `yaml:"disabled,omitempty" json:"disabled,omitempty"`
	Paths    []string `yaml:"paths,omitempty" json:"paths,omitempty"`
}

// BehaviorOverrides carries per-step inline overrides. A nil field inherits
// the agent default; a non-nil field wins regardless of its content, so an
// explicit Disabled setting can switch off an agent default.
type BehaviorOverrides struct {
	Output   *OutputSetting `yaml:"output,omitempty" json:"output,omitempty"`
	Reads    *ReadsSetting  `yaml:"reads,omitempty" json:"reads,omitempty"`
	Progress *bool          `yaml:"progress,omitempty" json:"progress,omitempty"`
}

// ResolvedBehavior is the effective file-I/O behavior for one task, computed
// once before execution and immutable afterwards. An empty OutputPath means
// output writing is disabled; a nil ReadPaths means reading is disabled.
type ResolvedBehavior struct {
	OutputPath       string
	ReadPaths        []string
	ProgressTracking bool
}

// AgentSpec describes one registered agent: the worker binary it is executed
// with and its declared file-I/O defaults. Supplied by a Registry.
type AgentSpec struct {
	Name    string
	Command string
	Args    []string
	Model   string

	// SavedTemplate, when non-empty, is used for steps that do not carry an
	// inline task template.
	SavedTemplate string

	DefaultOutput   *OutputSetting
	DefaultReads    *ReadsSetting
	DefaultProgress bool
}

// Registry resolves agent names to their specs. Implementations must be safe
// for concurrent use.
type Registry interface {
	Lookup(name string) (*AgentSpec, bool)
}
