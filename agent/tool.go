package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// RiskLevel is a tool's declared potential for harm, gating whether
// permission is auto-granted.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// ToolCategory groups tools for display purposes.
type ToolCategory string

const (
	CategoryFilesystem ToolCategory = "filesystem"
	CategoryShell      ToolCategory = "shell"
	CategorySearch     ToolCategory = "search"
	CategoryGit        ToolCategory = "git"
	CategoryOther      ToolCategory = "other"
)

// ToolFunc is the function signature for tool execution. It receives the
// raw JSON arguments and the execution environment.
type ToolFunc func(ctx context.Context, args json.RawMessage, env ExecutionEnvironment) (string, error)

// ToolDefinition is the immutable contract of a registered tool.
// Constructed once at startup and never mutated afterwards.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
	Risk        RiskLevel
	Category    ToolCategory
	ReadOnly    bool
	Cacheable   bool
	Func        ToolFunc
}

// ErrInvalidArgument marks argument validation failures so the recovery
// classifier can categorize them by kind.
var ErrInvalidArgument = errors.New("invalid argument")

var schemaCache sync.Map

func compileSchema(schema map[string]interface{}) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	key := string(raw)
	if cached, ok := schemaCache.Load(key); ok {
		if compiled, ok := cached.(*jsonschema.Schema); ok {
			return compiled, nil
		}
	}
	compiled, err := jsonschema.CompileString("tool.schema.json", key)
	if err != nil {
		return nil, err
	}
	schemaCache.Store(key, compiled)
	return compiled, nil
}

// ValidateInput checks raw arguments against the tool's input schema.
// Tools without a schema accept anything.
func (d *ToolDefinition) ValidateInput(args json.RawMessage) error {
	if len(d.InputSchema) == 0 {
		return nil
	}
	schema, err := compileSchema(d.InputSchema)
	if err != nil {
		return fmt.Errorf("compile input schema for %s: %w", d.Name, err)
	}
	var decoded interface{}
	if len(args) == 0 {
		decoded = map[string]interface{}{}
	} else if err := json.Unmarshal(args, &decoded); err != nil {
		return fmt.Errorf("%w: arguments are not valid JSON: %v", ErrInvalidArgument, err)
	}
	if err := schema.Validate(decoded); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return nil
}

// ParseArguments unmarshals tool call arguments into a map.
func ParseArguments(raw json.RawMessage) (map[string]interface{}, error) {
	if len(raw) == 0 {
		return map[string]interface{}{}, nil
	}
	var args map[string]interface{}
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid tool arguments: %w", err)
	}
	return args, nil
}

// StringArg extracts a string argument from parsed tool arguments.
func StringArg(args map[string]interface{}, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// IntArg extracts an integer argument from parsed tool arguments.
func IntArg(args map[string]interface{}, key string) (int, bool) {
	v, ok := args[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}

// BoolArg extracts a boolean argument from parsed tool arguments.
func BoolArg(args map[string]interface{}, key string) (bool, bool) {
	v, ok := args[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}
