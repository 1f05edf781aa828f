package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"regexp"
	"strings"
	"sync"
	"syscall"
)

// ErrorType categorizes a tool execution failure.
type ErrorType string

const (
	ErrFileNotFound      ErrorType = "file_not_found"
	ErrPermissionDenied  ErrorType = "permission_denied"
	ErrIsADirectory      ErrorType = "is_a_directory"
	ErrFileExists        ErrorType = "file_exists"
	ErrNotADirectory     ErrorType = "not_a_directory"
	ErrGitNotARepository ErrorType = "git_not_a_repository"
	ErrGitConflict       ErrorType = "git_conflict"
	ErrGitNoRemote       ErrorType = "git_no_remote"
	ErrModuleNotFound    ErrorType = "module_not_found"
	ErrTimeout           ErrorType = "timeout"
	ErrConnectionError   ErrorType = "connection_error"
	ErrSyntaxError       ErrorType = "syntax_error"
	ErrJSONDecodeError   ErrorType = "json_decode_error"
	ErrInvalidArg        ErrorType = "invalid_argument"
	ErrUnknown           ErrorType = "unknown"
)

// RecoveryAction is the structured, model-consumable advice produced from
// a caught tool error. Constructed fresh per error; never persisted.
type RecoveryAction struct {
	ErrorType    ErrorType              `json:"error_type"`
	ShouldRetry  bool                   `json:"should_retry"`
	Suggestions  []string               `json:"suggestions"`
	ModifiedArgs map[string]interface{} `json:"modified_args,omitempty"`
	SimilarPaths []string               `json:"similar_paths,omitempty"`
}

// ErrorMatcher reports whether an error is of a known kind.
type ErrorMatcher func(err error) bool

// kindRule maps an error kind to a category, suggestions, and retry
// eligibility. Kind rules always win over message patterns.
type kindRule struct {
	name        string
	match       ErrorMatcher
	errorType   ErrorType
	suggestions []string
	autoRetry   bool
}

// messageRule binds a message regex to a category. Suggestion templates
// may reference capture groups ($1, $2, ...).
type messageRule struct {
	re          *regexp.Regexp
	errorType   ErrorType
	suggestions []string
	autoRetry   bool
}

// ErrorRecovery classifies raised tool errors into recovery actions.
// Classification is total: every error input produces an action, and the
// classifier itself performs no I/O and never fails.
type ErrorRecovery struct {
	kindRules []kindRule
	msgRules  []messageRule
	mu        sync.RWMutex
}

// NewErrorRecovery creates a classifier with the default rule tables.
func NewErrorRecovery() *ErrorRecovery {
	r := &ErrorRecovery{}
	r.registerDefaultKindRules()
	r.registerDefaultMessageRules()
	return r
}

func (r *ErrorRecovery) registerDefaultKindRules() {
	r.kindRules = []kindRule{
		{
			name:      "file_not_found",
			match:     func(err error) bool { return errors.Is(err, fs.ErrNotExist) },
			errorType: ErrFileNotFound,
			suggestions: []string{
				"Verify the file path is correct.",
				"Use find_files or list_files to locate the file.",
			},
		},
		{
			name:      "permission_denied",
			match:     func(err error) bool { return errors.Is(err, fs.ErrPermission) },
			errorType: ErrPermissionDenied,
			suggestions: []string{
				"Check file permissions and ownership.",
				"The path may be outside the allowed working directory.",
			},
		},
		{
			name:      "file_exists",
			match:     func(err error) bool { return errors.Is(err, fs.ErrExist) },
			errorType: ErrFileExists,
			suggestions: []string{
				"The file already exists. Use edit_file to modify it, or choose a different path.",
			},
		},
		{
			name:      "is_a_directory",
			match:     func(err error) bool { return errors.Is(err, syscall.EISDIR) },
			errorType: ErrIsADirectory,
			suggestions: []string{
				"The path is a directory, not a file. Use list_files to inspect it.",
			},
		},
		{
			name:      "not_a_directory",
			match:     func(err error) bool { return errors.Is(err, syscall.ENOTDIR) },
			errorType: ErrNotADirectory,
			suggestions: []string{
				"A path component is a file, not a directory. Check the full path.",
			},
		},
		{
			name: "timeout",
			match: func(err error) bool {
				if errors.Is(err, context.DeadlineExceeded) {
					return true
				}
				var netErr net.Error
				return errors.As(err, &netErr) && netErr.Timeout()
			},
			errorType: ErrTimeout,
			suggestions: []string{
				"The operation timed out. Retry with a longer timeout or a narrower scope.",
			},
			autoRetry: true,
		},
		{
			name: "connection_error",
			match: func(err error) bool {
				return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET)
			},
			errorType: ErrConnectionError,
			suggestions: []string{
				"The connection failed. Check that the target service is reachable.",
			},
			autoRetry: true,
		},
		{
			name: "json_decode_error",
			match: func(err error) bool {
				var syntaxErr *json.SyntaxError
				var typeErr *json.UnmarshalTypeError
				return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
			},
			errorType: ErrJSONDecodeError,
			suggestions: []string{
				"The data is not valid JSON. Inspect the raw content before parsing.",
			},
		},
		{
			name:      "invalid_argument",
			match:     func(err error) bool { return errors.Is(err, ErrInvalidArgument) },
			errorType: ErrInvalidArg,
			suggestions: []string{
				"The arguments do not match the tool's input schema. Check names and types.",
			},
		},
	}
}

func (r *ErrorRecovery) registerDefaultMessageRules() {
	r.msgRules = []messageRule{
		{
			re:        regexp.MustCompile(`(?i)no such file or directory`),
			errorType: ErrFileNotFound,
			suggestions: []string{
				"Verify the file path is correct.",
				"Use find_files or list_files to locate the file.",
			},
		},
		{
			re:        regexp.MustCompile(`(?i)file not found`),
			errorType: ErrFileNotFound,
			suggestions: []string{
				"Verify the file path is correct.",
				"Use find_files or list_files to locate the file.",
			},
		},
		{
			re:        regexp.MustCompile(`(?i)not a git repository`),
			errorType: ErrGitNotARepository,
			suggestions: []string{
				"This directory is not inside a git repository.",
				"Run git init, or change to a directory that contains one.",
			},
		},
		{
			re:        regexp.MustCompile(`(?i)merge conflict|fix conflicts`),
			errorType: ErrGitConflict,
			suggestions: []string{
				"Resolve the merge conflicts, then stage the resolved files.",
			},
		},
		{
			re:        regexp.MustCompile(`(?i)no remote|no upstream|no configured push destination`),
			errorType: ErrGitNoRemote,
			suggestions: []string{
				"No remote is configured. Add one with git remote add.",
			},
		},
		{
			re:        regexp.MustCompile(`(?i)no module named '([^']+)'`),
			errorType: ErrModuleNotFound,
			suggestions: []string{
				"The module '$1' is not installed. Install it before retrying.",
			},
		},
		{
			re:        regexp.MustCompile(`(?i)connection refused`),
			errorType: ErrConnectionError,
			suggestions: []string{
				"The connection was refused. Check that the target service is running.",
			},
			autoRetry: true,
		},
		{
			re:        regexp.MustCompile(`(?i)timed out|timeout`),
			errorType: ErrTimeout,
			suggestions: []string{
				"The operation timed out. Retry with a longer timeout or a narrower scope.",
			},
			autoRetry: true,
		},
		{
			re:        regexp.MustCompile(`(?i)permission denied`),
			errorType: ErrPermissionDenied,
			suggestions: []string{
				"Check file permissions and ownership.",
			},
		},
		{
			re:        regexp.MustCompile(`(?i)syntax error`),
			errorType: ErrSyntaxError,
			suggestions: []string{
				"The content has a syntax error. Re-read the file and fix it before retrying.",
			},
		},
		{
			re:        regexp.MustCompile(`(?i)invalid json|unexpected end of json|cannot unmarshal`),
			errorType: ErrJSONDecodeError,
			suggestions: []string{
				"The data is not valid JSON. Inspect the raw content before parsing.",
			},
		},
	}
}

// AddErrorPattern registers an error-kind rule at runtime. New rules are
// consulted after the defaults, still ahead of all message patterns.
func (r *ErrorRecovery) AddErrorPattern(name string, match ErrorMatcher, errorType ErrorType, suggestions []string, autoRetry bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kindRules = append(r.kindRules, kindRule{
		name:        name,
		match:       match,
		errorType:   errorType,
		suggestions: suggestions,
		autoRetry:   autoRetry,
	})
}

// AddMessagePattern registers a message-pattern rule at runtime.
// Suggestion templates may reference regex capture groups as $1, $2, ...
func (r *ErrorRecovery) AddMessagePattern(pattern string, errorType ErrorType, suggestions []string, autoRetry bool) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("invalid message pattern %q: %w", pattern, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgRules = append(r.msgRules, messageRule{
		re:          re,
		errorType:   errorType,
		suggestions: suggestions,
		autoRetry:   autoRetry,
	})
	return nil
}

// HandleToolError classifies err into a RecoveryAction. Kind rules are
// checked first, then message patterns in order, then the unknown
// fallback. Context (such as the attempted path) refines suggestions
// without mutating the rule tables.
func (r *ErrorRecovery) HandleToolError(toolName string, err error, errContext map[string]interface{}) RecoveryAction {
	if err == nil {
		return RecoveryAction{ErrorType: ErrUnknown, Suggestions: []string{
			fmt.Sprintf("The tool '%s' reported a failure with no error detail.", toolName),
		}}
	}

	r.mu.RLock()
	kindRules := r.kindRules
	msgRules := r.msgRules
	r.mu.RUnlock()

	for _, rule := range kindRules {
		if rule.match(err) {
			action := RecoveryAction{
				ErrorType:   rule.errorType,
				ShouldRetry: rule.autoRetry,
				Suggestions: append([]string(nil), rule.suggestions...),
			}
			return r.contextualize(action, toolName, errContext)
		}
	}

	msg := err.Error()
	for _, rule := range msgRules {
		if m := rule.re.FindStringSubmatchIndex(msg); m != nil {
			suggestions := make([]string, len(rule.suggestions))
			for i, tmpl := range rule.suggestions {
				suggestions[i] = string(rule.re.ExpandString(nil, tmpl, msg, m))
			}
			action := RecoveryAction{
				ErrorType:   rule.errorType,
				ShouldRetry: rule.autoRetry,
				Suggestions: suggestions,
			}
			return r.contextualize(action, toolName, errContext)
		}
	}

	action := RecoveryAction{
		ErrorType:   ErrUnknown,
		ShouldRetry: false,
		Suggestions: []string{
			fmt.Sprintf("The tool '%s' failed: %s", toolName, msg),
			"Review the arguments and try a different approach.",
		},
	}
	return r.contextualize(action, toolName, errContext)
}

// contextualize refines suggestions based on the invoking tool and any
// provided structured context. Rule tables are never mutated.
func (r *ErrorRecovery) contextualize(action RecoveryAction, toolName string, errContext map[string]interface{}) RecoveryAction {
	if action.ErrorType == ErrGitNotARepository && strings.HasPrefix(toolName, "git_") {
		action.Suggestions = append(action.Suggestions,
			fmt.Sprintf("The '%s' tool requires a git repository in the working directory.", toolName))
	}
	if errContext != nil {
		if path, ok := errContext["path"].(string); ok && path != "" {
			switch action.ErrorType {
			case ErrFileNotFound:
				action.Suggestions = append(action.Suggestions,
					fmt.Sprintf("The attempted path was: %s", path))
			case ErrPermissionDenied:
				action.Suggestions = append(action.Suggestions,
					fmt.Sprintf("Access was denied for: %s", path))
			}
		}
	}
	return action
}
