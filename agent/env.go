package agent

import "context"

// ExecResult holds the result of a command execution.
type ExecResult struct {
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ExitCode   int    `json:"exit_code"`
	TimedOut   bool   `json:"timed_out"`
	DurationMs int64  `json:"duration_ms"`
}

// Output returns combined stdout and stderr.
func (r ExecResult) Output() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// DirEntry represents a filesystem directory entry.
type DirEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size,omitempty"`
}

// GrepOptions configures content search behavior.
type GrepOptions struct {
	GlobFilter      string `json:"glob_filter,omitempty"`
	CaseInsensitive bool   `json:"case_insensitive,omitempty"`
	MaxResults      int    `json:"max_results,omitempty"`
}

// ExecutionEnvironment abstracts where tool operations run. Tool functions
// receive one at invocation time; implementations live outside this package.
type ExecutionEnvironment interface {
	// File operations. ReadFile returns line-numbered content for model
	// consumption; ReadFileRaw returns the bytes as-is for editing.
	ReadFile(path string, offset, limit int) (string, error)
	ReadFileRaw(path string) (string, error)
	WriteFile(path string, content string) error
	FileExists(path string) bool
	ListDirectory(path string, depth int) ([]DirEntry, error)

	// Command execution.
	ExecCommand(ctx context.Context, command string, timeoutMs int, workingDir string, envVars map[string]string) (*ExecResult, error)

	// Search operations.
	Grep(ctx context.Context, pattern string, path string, options GrepOptions) (string, error)
	Glob(pattern string, path string) ([]string, error)

	// Metadata.
	WorkingDirectory() string
}
