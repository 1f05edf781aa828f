package tools

import "github.com/forgeagent/forge/agent"

// Builtins returns the full built-in tool set in registration order.
func Builtins() []agent.ToolDefinition {
	return []agent.ToolDefinition{
		ReadFileTool(),
		WriteFileTool(),
		EditFileTool(),
		ListFilesTool(),
		ShellTool(),
		GrepTool(),
		GlobTool(),
		FindFilesTool(),
		GitStatusTool(),
		GitDiffTool(),
		GitLogTool(),
		GitCommitTool(),
	}
}

// RegisterBuiltins adds every built-in tool to the registry.
func RegisterBuiltins(registry *agent.Registry) {
	for _, def := range Builtins() {
		registry.Register(def)
	}
}
