package agent

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/forgeagent/forge/llm"
	"github.com/forgeagent/forge/session"
)

func assistantToolCall(name, args string) session.Message {
	return session.NewMessage(llm.Message{
		Role: llm.RoleAssistant,
		Content: []llm.ContentBlock{
			llm.ToolUseBlock("id", name, json.RawMessage(args)),
		},
	})
}

func TestDetectLoopRepeatedSingleCall(t *testing.T) {
	var messages []session.Message
	for i := 0; i < 10; i++ {
		messages = append(messages, assistantToolCall("read_file", `{"path": "/tmp/a"}`))
	}
	if !DetectLoop(messages, 10) {
		t.Error("ten identical calls should be detected as a loop")
	}
}

func TestDetectLoopAlternatingPair(t *testing.T) {
	var messages []session.Message
	for i := 0; i < 5; i++ {
		messages = append(messages, assistantToolCall("read_file", `{"path": "/tmp/a"}`))
		messages = append(messages, assistantToolCall("shell", `{"command": "ls"}`))
	}
	if !DetectLoop(messages, 10) {
		t.Error("alternating pair should be detected as a loop")
	}
}

func TestDetectLoopTriple(t *testing.T) {
	var messages []session.Message
	for i := 0; i < 3; i++ {
		messages = append(messages, assistantToolCall("a", `{}`))
		messages = append(messages, assistantToolCall("b", `{}`))
		messages = append(messages, assistantToolCall("c", `{}`))
	}
	if !DetectLoop(messages, 9) {
		t.Error("repeating triple should be detected as a loop")
	}
}

func TestDetectLoopVariedCalls(t *testing.T) {
	var messages []session.Message
	for i := 0; i < 10; i++ {
		messages = append(messages, assistantToolCall("read_file",
			fmt.Sprintf(`{"path": "/tmp/file_%d"}`, i)))
	}
	if DetectLoop(messages, 10) {
		t.Error("distinct arguments must not trigger detection")
	}
}

func TestDetectLoopSameNameDifferentArgs(t *testing.T) {
	var messages []session.Message
	for i := 0; i < 10; i++ {
		path := "/tmp/a"
		if i == 7 {
			path = "/tmp/b"
		}
		messages = append(messages, assistantToolCall("read_file",
			fmt.Sprintf(`{"path": %q}`, path)))
	}
	if DetectLoop(messages, 10) {
		t.Error("a single differing call must break the pattern")
	}
}

func TestDetectLoopTooFewCalls(t *testing.T) {
	var messages []session.Message
	for i := 0; i < 4; i++ {
		messages = append(messages, assistantToolCall("read_file", `{"path": "/tmp/a"}`))
	}
	if DetectLoop(messages, 10) {
		t.Error("fewer calls than the window must not trigger detection")
	}
}

func TestDetectLoopIgnoresNonToolMessages(t *testing.T) {
	var messages []session.Message
	for i := 0; i < 10; i++ {
		messages = append(messages, assistantToolCall("read_file", `{"path": "/tmp/a"}`))
		messages = append(messages, session.NewMessage(llm.UserMessage("tool result here")))
		messages = append(messages, session.NewMessage(llm.AssistantMessage("thinking...")))
	}
	if !DetectLoop(messages, 10) {
		t.Error("interleaved text turns must not hide the repetition")
	}
}

func TestDetectLoopEmptyHistory(t *testing.T) {
	if DetectLoop(nil, 10) {
		t.Error("empty history must not trigger detection")
	}
}

func TestDetectLoopNonPositiveWindow(t *testing.T) {
	var messages []session.Message
	for i := 0; i < 10; i++ {
		messages = append(messages, assistantToolCall("read_file", `{"path": "/tmp/a"}`))
	}
	for _, window := range []int{0, -1} {
		if DetectLoop(nil, window) {
			t.Errorf("window %d on empty history must not trigger detection", window)
		}
		if DetectLoop(messages, window) {
			t.Errorf("window %d must not trigger detection", window)
		}
	}
}
