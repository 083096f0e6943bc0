package util

import "strings"

// SubstituteChainVars replaces the chain variables {task}, {previous} and
// {chain_dir} in a resolved task template. Unknown braced tokens are left
// untouched; the worker sees them verbatim.
func SubstituteChainVars(text, task, previous, chainDir string) string {
	if !strings.Contains(text, "{") { // fast path: no variables
		return text
	}
	return strings.NewReplacer(
		"{task}", task,
		"{previous}", previous,
		"{chain_dir}", chainDir,
	).Replace(text)
}
