package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/forgeagent/forge/llm"
	"github.com/forgeagent/forge/session"
)

// scriptedCompleter replays a fixed sequence of responses. A nil entry
// means "fail this call" with the configured error.
type scriptedCompleter struct {
	responses []*llm.Response
	err       error
	calls     int
	requests  []llm.Request
}

func (s *scriptedCompleter) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	s.calls++
	s.requests = append(s.requests, req)
	if len(s.responses) == 0 {
		if s.err != nil {
			return nil, s.err
		}
		return nil, errors.New("script exhausted")
	}
	next := s.responses[0]
	s.responses = s.responses[1:]
	if next == nil {
		return nil, s.err
	}
	return next, nil
}

func textResponse(text string, usage llm.TokenUsage) *llm.Response {
	return &llm.Response{
		Content:    []llm.ContentBlock{llm.TextBlock(text)},
		StopReason: llm.StopEndTurn,
		Usage:      usage,
	}
}

func toolResponse(usage llm.TokenUsage, uses ...llm.ContentBlock) *llm.Response {
	return &llm.Response{
		Content:    uses,
		StopReason: llm.StopToolUse,
		Usage:      usage,
	}
}

func greetTool(t *testing.T) ToolDefinition {
	t.Helper()
	def := testTool("greet", true)
	def.Func = func(ctx context.Context, args json.RawMessage, env ExecutionEnvironment) (string, error) {
		var input struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(args, &input); err != nil {
			return "", err
		}
		return "Hello, " + input.Name + "!", nil
	}
	return def
}

func collectEvents(t *testing.T, events <-chan LoopEvent) []LoopEvent {
	t.Helper()
	var out []LoopEvent
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func eventKinds(events []LoopEvent) []EventKind {
	kinds := make([]EventKind, len(events))
	for i, ev := range events {
		kinds[i] = ev.Kind
	}
	return kinds
}

func findEvent(events []LoopEvent, kind EventKind) (LoopEvent, bool) {
	for _, ev := range events {
		if ev.Kind == kind {
			return ev, true
		}
	}
	return LoopEvent{}, false
}

func newLoopAgent(client Completer, reg *Registry, cfg LoopConfig) *Agent {
	return New(client, reg, NewPermissionManager(PermissionPolicy{AutoApprove: true}, nil),
		WithConfig(cfg))
}

func TestLoopSingleToolRound(t *testing.T) {
	reg := NewRegistry()
	reg.Register(greetTool(t))

	client := &scriptedCompleter{responses: []*llm.Response{
		toolResponse(llm.TokenUsage{TotalTokens: 75},
			llm.ToolUseBlock("call_1", "greet", json.RawMessage(`{"name": "Alice"}`))),
		textResponse("Done greeting.", llm.TokenUsage{TotalTokens: 150}),
	}}

	a := newLoopAgent(client, reg, DefaultLoopConfig())
	sess := session.New(t.TempDir())
	events := collectEvents(t, a.Run(context.Background(), sess, "Greet Alice"))

	kinds := eventKinds(events)
	want := []EventKind{EventToolCall, EventToolResult, EventFinished}
	if len(kinds) != len(want) {
		t.Fatalf("expected events %v, got %v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("expected events %v, got %v", want, kinds)
		}
	}

	result, _ := findEvent(events, EventToolResult)
	if result.Content != "Hello, Alice!" {
		t.Errorf("expected tool result content, got %q", result.Content)
	}
	if result.ToolUseID != "call_1" || result.ToolName != "greet" {
		t.Errorf("result not paired with request: %+v", result)
	}

	finished, _ := findEvent(events, EventFinished)
	if finished.TotalTokens != 225 {
		t.Errorf("expected cumulative 225 tokens, got %d", finished.TotalTokens)
	}
	if finished.Iterations != 2 {
		t.Errorf("expected 2 iterations, got %d", finished.Iterations)
	}
}

func TestLoopUnknownToolBecomesErrorResult(t *testing.T) {
	client := &scriptedCompleter{responses: []*llm.Response{
		toolResponse(llm.TokenUsage{TotalTokens: 10},
			llm.ToolUseBlock("call_1", "no_such_tool", json.RawMessage(`{}`))),
		textResponse("Giving up.", llm.TokenUsage{TotalTokens: 10}),
	}}

	a := newLoopAgent(client, NewRegistry(), DefaultLoopConfig())
	sess := session.New(t.TempDir())
	events := collectEvents(t, a.Run(context.Background(), sess, "Use a tool"))

	result, ok := findEvent(events, EventToolResult)
	if !ok {
		t.Fatal("expected a tool_result event")
	}
	if !result.IsError {
		t.Error("unknown tool result should be an error")
	}
	if !strings.Contains(strings.ToLower(result.Content), "not found") {
		t.Errorf("expected 'not found' in result, got %q", result.Content)
	}
	if _, ok := findEvent(events, EventFinished); !ok {
		t.Error("loop should still finish after an unknown tool")
	}
}

func TestLoopPermissionDenied(t *testing.T) {
	invoked := false
	reg := NewRegistry()
	def := testTool("delete_everything", false)
	def.Risk = RiskHigh
	def.Func = func(ctx context.Context, args json.RawMessage, env ExecutionEnvironment) (string, error) {
		invoked = true
		return "deleted", nil
	}
	reg.Register(def)

	client := &scriptedCompleter{responses: []*llm.Response{
		toolResponse(llm.TokenUsage{TotalTokens: 10},
			llm.ToolUseBlock("call_1", "delete_everything", json.RawMessage(`{}`))),
		textResponse("Understood.", llm.TokenUsage{TotalTokens: 10}),
	}}

	// No prompter and no auto-approve, so non-LOW tools are denied.
	a := New(client, reg, NewPermissionManager(PermissionPolicy{}, nil),
		WithConfig(DefaultLoopConfig()))
	sess := session.New(t.TempDir())
	events := collectEvents(t, a.Run(context.Background(), sess, "Delete it all"))

	if invoked {
		t.Error("denied tool must not execute")
	}
	if _, ok := findEvent(events, EventPermissionDenied); !ok {
		t.Fatalf("expected permission_denied event, got %v", eventKinds(events))
	}
	if _, ok := findEvent(events, EventToolResult); ok {
		t.Error("denial should replace the tool_result event")
	}

	// The history turn still answers the tool use with an error block.
	last := sess.Messages[len(sess.Messages)-2]
	if last.Role != llm.RoleUser {
		t.Fatalf("expected tool result turn, got role %s", last.Role)
	}
	block := last.Content[0]
	if block.Kind != llm.BlockToolResult || !block.ToolResult.IsError {
		t.Errorf("expected error tool result block in history, got %+v", block)
	}
}

func TestLoopIterationLimit(t *testing.T) {
	reg := NewRegistry()
	reg.Register(greetTool(t))

	// Every response requests another tool call, so the loop never
	// terminates on its own.
	var responses []*llm.Response
	for i := 0; i < 10; i++ {
		responses = append(responses, toolResponse(llm.TokenUsage{TotalTokens: 10},
			llm.ToolUseBlock("call", "greet", json.RawMessage(`{"name": "x"}`))))
	}
	client := &scriptedCompleter{responses: responses}

	cfg := DefaultLoopConfig()
	cfg.MaxIterations = 3
	a := newLoopAgent(client, reg, cfg)
	sess := session.New(t.TempDir())
	events := collectEvents(t, a.Run(context.Background(), sess, "Loop forever"))

	if client.calls != 3 {
		t.Errorf("expected 3 model calls, got %d", client.calls)
	}
	limit, ok := findEvent(events, EventIterationLimit)
	if !ok {
		t.Fatalf("expected iteration_limit_reached, got %v", eventKinds(events))
	}
	if limit.Iterations != 3 {
		t.Errorf("expected 3 iterations reported, got %d", limit.Iterations)
	}
	last := events[len(events)-1]
	if last.Kind != EventFinished {
		t.Errorf("finished must be the final event, got %s", last.Kind)
	}
}

func TestLoopUnderIterationLimit(t *testing.T) {
	client := &scriptedCompleter{responses: []*llm.Response{
		textResponse("Quick answer.", llm.TokenUsage{TotalTokens: 5}),
	}}

	cfg := DefaultLoopConfig()
	cfg.MaxIterations = 3
	a := newLoopAgent(client, NewRegistry(), cfg)
	sess := session.New(t.TempDir())
	events := collectEvents(t, a.Run(context.Background(), sess, "Hi"))

	if _, ok := findEvent(events, EventIterationLimit); ok {
		t.Error("iteration limit must not fire when the loop finishes early")
	}
	if events[len(events)-1].Kind != EventFinished {
		t.Errorf("expected finished last, got %v", eventKinds(events))
	}
}

func TestLoopTokenLimit(t *testing.T) {
	reg := NewRegistry()
	reg.Register(greetTool(t))

	var responses []*llm.Response
	for i := 0; i < 10; i++ {
		responses = append(responses, toolResponse(llm.TokenUsage{TotalTokens: 100},
			llm.ToolUseBlock("call", "greet", json.RawMessage(`{"name": "x"}`))))
	}
	client := &scriptedCompleter{responses: responses}

	cfg := DefaultLoopConfig()
	cfg.MaxTokens = 250
	a := newLoopAgent(client, reg, cfg)
	sess := session.New(t.TempDir())
	events := collectEvents(t, a.Run(context.Background(), sess, "Spend tokens"))

	// 100 per iteration: 100, 200 are within the limit, 300 exceeds it.
	if client.calls != 3 {
		t.Errorf("expected 3 model calls, got %d", client.calls)
	}
	limit, ok := findEvent(events, EventTokenLimit)
	if !ok {
		t.Fatalf("expected token_limit_reached, got %v", eventKinds(events))
	}
	if limit.TotalTokens != 300 {
		t.Errorf("expected 300 cumulative tokens, got %d", limit.TotalTokens)
	}
	if events[len(events)-1].Kind != EventFinished {
		t.Errorf("finished must be the final event, got %v", eventKinds(events))
	}
}

func TestLoopNoTokenLimitWhenUnset(t *testing.T) {
	reg := NewRegistry()
	reg.Register(greetTool(t))

	client := &scriptedCompleter{responses: []*llm.Response{
		toolResponse(llm.TokenUsage{TotalTokens: 100000},
			llm.ToolUseBlock("call_1", "greet", json.RawMessage(`{"name": "x"}`))),
		textResponse("Done.", llm.TokenUsage{TotalTokens: 100000}),
	}}

	a := newLoopAgent(client, reg, DefaultLoopConfig())
	sess := session.New(t.TempDir())
	events := collectEvents(t, a.Run(context.Background(), sess, "Go"))

	if _, ok := findEvent(events, EventTokenLimit); ok {
		t.Error("token limit must not fire when MaxTokens is zero")
	}
}

func TestLoopDetectionDefaultsUnsetWindow(t *testing.T) {
	reg := NewRegistry()
	reg.Register(greetTool(t))

	// Identical tool calls on every iteration so the default window fills.
	var responses []*llm.Response
	for i := 0; i < 11; i++ {
		responses = append(responses, toolResponse(llm.TokenUsage{TotalTokens: 10},
			llm.ToolUseBlock("call", "greet", json.RawMessage(`{"name": "x"}`))))
	}
	responses = append(responses, textResponse("Done.", llm.TokenUsage{TotalTokens: 10}))
	client := &scriptedCompleter{responses: responses}

	// Detection enabled with the window left zero, as a caller supplying a
	// config wholesale would.
	a := newLoopAgent(client, reg, LoopConfig{EnableLoopDetection: true})
	sess := session.New(t.TempDir())
	events := collectEvents(t, a.Run(context.Background(), sess, "Loop"))

	if _, ok := findEvent(events, EventLoopDetected); !ok {
		t.Errorf("expected loop_detected with the default window, got %v", eventKinds(events))
	}
	if events[len(events)-1].Kind != EventFinished {
		t.Errorf("loop must terminate cleanly, got %v", eventKinds(events))
	}
}

func TestLoopLLMErrorTerminates(t *testing.T) {
	client := &scriptedCompleter{err: errors.New("connection reset by provider")}

	a := newLoopAgent(client, NewRegistry(), DefaultLoopConfig())
	sess := session.New(t.TempDir())
	events := collectEvents(t, a.Run(context.Background(), sess, "Hi"))

	if len(events) != 1 || events[0].Kind != EventLLMError {
		t.Fatalf("expected single llm_error event, got %v", eventKinds(events))
	}
	if !strings.Contains(events[0].Content, "connection reset by provider") {
		t.Errorf("expected transport error in content, got %q", events[0].Content)
	}
}

func TestLoopToolResultPairing(t *testing.T) {
	reg := NewRegistry()
	reg.Register(greetTool(t))
	failing := testTool("broken", true)
	failing.Cacheable = false
	failing.Func = func(ctx context.Context, args json.RawMessage, env ExecutionEnvironment) (string, error) {
		return "", errors.New("boom")
	}
	reg.Register(failing)

	client := &scriptedCompleter{responses: []*llm.Response{
		toolResponse(llm.TokenUsage{TotalTokens: 10},
			llm.ToolUseBlock("call_1", "greet", json.RawMessage(`{"name": "A"}`)),
			llm.ToolUseBlock("call_2", "broken", json.RawMessage(`{}`)),
			llm.ToolUseBlock("call_3", "missing_tool", json.RawMessage(`{}`))),
		textResponse("Done.", llm.TokenUsage{TotalTokens: 10}),
	}}

	a := newLoopAgent(client, reg, DefaultLoopConfig())
	sess := session.New(t.TempDir())
	collectEvents(t, a.Run(context.Background(), sess, "Run three tools"))

	// The second model call carries the tool result turn: three blocks,
	// one per request, in request order.
	req := client.requests[1]
	resultTurn := req.Messages[len(req.Messages)-1]
	if resultTurn.Role != llm.RoleUser {
		t.Fatalf("expected user tool result turn, got role %s", resultTurn.Role)
	}
	if len(resultTurn.Content) != 3 {
		t.Fatalf("expected 3 tool result blocks, got %d", len(resultTurn.Content))
	}
	wantIDs := []string{"call_1", "call_2", "call_3"}
	for i, block := range resultTurn.Content {
		if block.Kind != llm.BlockToolResult {
			t.Fatalf("block %d is not a tool result: %+v", i, block)
		}
		if block.ToolResult.ToolUseID != wantIDs[i] {
			t.Errorf("block %d answers %q, want %q", i, block.ToolResult.ToolUseID, wantIDs[i])
		}
	}
	if resultTurn.Content[0].ToolResult.IsError {
		t.Error("successful tool marked as error")
	}
	if !resultTurn.Content[1].ToolResult.IsError || !resultTurn.Content[2].ToolResult.IsError {
		t.Error("failed and unresolved tools must be marked is_error")
	}
}

func TestLoopUsesInjectedCache(t *testing.T) {
	invoked := false
	reg := NewRegistry()
	def := testTool("read_file", true)
	def.Func = func(ctx context.Context, args json.RawMessage, env ExecutionEnvironment) (string, error) {
		invoked = true
		return "fresh", nil
	}
	reg.Register(def)

	// Pre-warmed cache shared across agent instances.
	cache := NewResultCache()
	cache.Set("read_file", json.RawMessage(`{"path": "/tmp/a"}`), "warmed", true)

	client := &scriptedCompleter{responses: []*llm.Response{
		toolResponse(llm.TokenUsage{TotalTokens: 10},
			llm.ToolUseBlock("call_1", "read_file", json.RawMessage(`{"path": "/tmp/a"}`))),
		textResponse("Done.", llm.TokenUsage{TotalTokens: 10}),
	}}

	a := New(client, reg, NewPermissionManager(PermissionPolicy{AutoApprove: true}, nil),
		WithCache(cache),
		WithConfig(DefaultLoopConfig()))
	sess := session.New(t.TempDir())
	events := collectEvents(t, a.Run(context.Background(), sess, "Read it"))

	if invoked {
		t.Error("cached tool must not execute")
	}
	result, ok := findEvent(events, EventToolResult)
	if !ok {
		t.Fatal("expected a tool_result event")
	}
	if !result.WasCached || result.Content != "warmed" {
		t.Errorf("expected the injected cache entry, got %+v", result)
	}
}

func TestLoopUsesInjectedRecovery(t *testing.T) {
	reg := NewRegistry()
	def := testTool("deploy", false)
	def.Func = func(ctx context.Context, args json.RawMessage, env ExecutionEnvironment) (string, error) {
		return "", errors.New("quota exceeded for project")
	}
	reg.Register(def)

	recovery := NewErrorRecovery()
	if err := recovery.AddMessagePattern(`quota exceeded`, ErrorType("quota_exceeded"),
		[]string{"Wait for the quota window to reset before retrying."}, false); err != nil {
		t.Fatal(err)
	}

	client := &scriptedCompleter{responses: []*llm.Response{
		toolResponse(llm.TokenUsage{TotalTokens: 10},
			llm.ToolUseBlock("call_1", "deploy", json.RawMessage(`{}`))),
		textResponse("Understood.", llm.TokenUsage{TotalTokens: 10}),
	}}

	a := New(client, reg, NewPermissionManager(PermissionPolicy{AutoApprove: true}, nil),
		WithRecovery(recovery),
		WithConfig(DefaultLoopConfig()))
	sess := session.New(t.TempDir())
	events := collectEvents(t, a.Run(context.Background(), sess, "Deploy"))

	result, ok := findEvent(events, EventToolResult)
	if !ok {
		t.Fatal("expected a tool_result event")
	}
	if !result.IsError || !strings.Contains(result.Content, "Wait for the quota window to reset") {
		t.Errorf("expected injected recovery suggestion in result, got %+v", result)
	}
}

func TestLoopRecordsToolHistory(t *testing.T) {
	reg := NewRegistry()
	reg.Register(greetTool(t))

	client := &scriptedCompleter{responses: []*llm.Response{
		toolResponse(llm.TokenUsage{TotalTokens: 10},
			llm.ToolUseBlock("call_1", "greet", json.RawMessage(`{"name": "Bob"}`))),
		textResponse("Done.", llm.TokenUsage{TotalTokens: 10}),
	}}

	a := newLoopAgent(client, reg, DefaultLoopConfig())
	sess := session.New(t.TempDir())
	collectEvents(t, a.Run(context.Background(), sess, "Greet Bob"))

	if len(sess.ToolHistory) != 1 {
		t.Fatalf("expected 1 tool invocation recorded, got %d", len(sess.ToolHistory))
	}
	inv := sess.ToolHistory[0]
	if inv.Name != "greet" || inv.Output != "Hello, Bob!" || inv.IsError {
		t.Errorf("unexpected invocation record: %+v", inv)
	}
	if inv.Timestamp.IsZero() {
		t.Error("invocation timestamp should be set")
	}
}
