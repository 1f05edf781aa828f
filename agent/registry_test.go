package agent

import (
	"context"
	"encoding/json"
	"testing"
)

func testTool(name string, readOnly bool) ToolDefinition {
	return ToolDefinition{
		Name:        name,
		Description: "Tool " + name,
		InputSchema: map[string]interface{}{"type": "object"},
		Risk:        RiskLow,
		Category:    CategoryFilesystem,
		ReadOnly:    readOnly,
		Cacheable:   readOnly,
		Func: func(ctx context.Context, args json.RawMessage, env ExecutionEnvironment) (string, error) {
			return "ok", nil
		},
	}
}

func TestRegistryRegisterAndGet(t *testing.T) {
	reg := NewRegistry()
	reg.Register(testTool("read_file", true))

	if got := reg.Get("read_file"); got == nil {
		t.Fatal("expected to find registered tool")
	}
	if got := reg.Get("missing"); got != nil {
		t.Errorf("expected nil for unregistered tool, got %v", got.Name)
	}
	if reg.Count() != 1 {
		t.Errorf("expected count 1, got %d", reg.Count())
	}
}

func TestRegistryLastWriteWins(t *testing.T) {
	reg := NewRegistry()

	first := testTool("shell", false)
	first.Description = "first"
	reg.Register(first)

	second := testTool("shell", false)
	second.Description = "second"
	reg.Register(second)

	if reg.Count() != 1 {
		t.Fatalf("expected 1 tool after re-registration, got %d", reg.Count())
	}
	if got := reg.Get("shell"); got.Description != "second" {
		t.Errorf("expected latest registration to win, got %q", got.Description)
	}
}

func TestRegistryDefinitionsPreserveOrder(t *testing.T) {
	reg := NewRegistry()
	reg.Register(testTool("read_file", true))
	reg.Register(testTool("write_file", false))
	reg.Register(testTool("shell", false))

	// Re-registering keeps the original position.
	reg.Register(testTool("read_file", true))

	defs := reg.Definitions()
	if len(defs) != 3 {
		t.Fatalf("expected 3 definitions, got %d", len(defs))
	}
	want := []string{"read_file", "write_file", "shell"}
	for i, name := range want {
		if defs[i].Name != name {
			t.Errorf("definition %d: expected %q, got %q", i, name, defs[i].Name)
		}
	}
}

func TestRegistryNames(t *testing.T) {
	reg := NewRegistry()
	reg.Register(testTool("a", true))
	reg.Register(testTool("b", false))

	names := reg.Names()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("unexpected names: %v", names)
	}
}
