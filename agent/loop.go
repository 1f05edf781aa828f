package agent

import (
	"context"

	"github.com/forgeagent/forge/llm"
	"github.com/forgeagent/forge/session"
)

// DefaultMaxIterations is the iteration ceiling when none is configured.
const DefaultMaxIterations = 50

// DefaultLoopDetectionWindow is the tool-call window examined for
// repeating patterns when none is configured.
const DefaultLoopDetectionWindow = 10

// LoopConfig bounds and tunes a conversation loop run.
type LoopConfig struct {
	Model               string
	Provider            string
	SystemPrompt        string
	MaxIterations       int // model calls per run
	MaxTokens           int // cumulative, 0 = no limit
	EnableLoopDetection bool
	LoopDetectionWindow int
	ToolOutputLimits    map[string]int
	ToolLineLimits      map[string]int
}

// DefaultLoopConfig returns the default loop configuration.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		MaxIterations:       DefaultMaxIterations,
		LoopDetectionWindow: DefaultLoopDetectionWindow,
	}
}

// runLoop is the turn-by-turn state machine. It mutates the session's
// message history as the single writer and reports everything through
// the emitter; no failure below this boundary escapes as an error.
func (a *Agent) runLoop(ctx context.Context, sess *session.Session, emitter *EventEmitter) {
	exec := &executor{
		registry:    a.registry,
		permissions: a.permissions,
		cache:       a.cache,
		recovery:    a.recovery,
		env:         a.env,
	}

	maxIterations := a.config.MaxIterations
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}

	detectionWindow := a.config.LoopDetectionWindow
	if detectionWindow <= 0 {
		detectionWindow = DefaultLoopDetectionWindow
	}

	var total llm.TokenUsage
	iterations := 0

	for {
		if iterations >= maxIterations {
			emitter.Emit(LoopEvent{Kind: EventIterationLimit, Iterations: iterations})
			emitter.Emit(LoopEvent{Kind: EventFinished, Iterations: iterations, TotalTokens: total.TotalTokens})
			return
		}

		select {
		case <-ctx.Done():
			emitter.Emit(LoopEvent{Kind: EventLLMError, Content: ctx.Err().Error()})
			return
		default:
		}

		iterations++

		response, err := a.client.Complete(ctx, llm.Request{
			Model:    a.config.Model,
			Provider: a.config.Provider,
			System:   a.config.SystemPrompt,
			Messages: sess.LLMMessages(),
			Tools:    a.registry.Definitions(),
		})
		if err != nil {
			emitter.Emit(LoopEvent{Kind: EventLLMError, Content: err.Error()})
			return
		}

		total = total.Add(response.Usage)
		sess.Append(llm.Message{Role: llm.RoleAssistant, Content: response.Content})

		toolUses := response.ToolUses()
		if len(toolUses) == 0 {
			emitter.Emit(LoopEvent{Kind: EventFinished, Iterations: iterations, TotalTokens: total.TotalTokens})
			return
		}

		for _, use := range toolUses {
			emitter.Emit(LoopEvent{Kind: EventToolCall, ToolName: use.Name, ToolUseID: use.ID})
		}

		executions := exec.ExecuteBatch(ctx, toolUses)

		// One ToolResultBlock per request, in request order, so every
		// tool use in the assistant turn is answered in the next turn.
		blocks := make([]llm.ContentBlock, len(executions))
		for i, result := range executions {
			if result.Denied {
				emitter.Emit(LoopEvent{
					Kind:      EventPermissionDenied,
					ToolName:  result.Request.Name,
					ToolUseID: result.Request.ID,
					Content:   result.Output,
				})
			} else {
				emitter.Emit(LoopEvent{
					Kind:      EventToolResult,
					ToolName:  result.Request.Name,
					ToolUseID: result.Request.ID,
					Content:   result.Output, // full untruncated output
					IsError:   result.IsError,
					WasCached: result.WasCached,
				})
			}

			truncated := TruncateToolOutput(result.Output, result.Request.Name,
				a.config.ToolOutputLimits, a.config.ToolLineLimits)
			blocks[i] = llm.ToolResultBlock(result.Request.ID, truncated, result.IsError)

			sess.RecordToolInvocation(session.ToolInvocation{
				ToolUseID: result.Request.ID,
				Name:      result.Request.Name,
				Input:     result.Request.Input,
				Output:    result.Output,
				IsError:   result.IsError,
			})
		}
		sess.Append(llm.Message{Role: llm.RoleUser, Content: blocks})

		if a.config.MaxTokens > 0 && total.TotalTokens > a.config.MaxTokens {
			emitter.Emit(LoopEvent{Kind: EventTokenLimit, TotalTokens: total.TotalTokens})
			emitter.Emit(LoopEvent{Kind: EventFinished, Iterations: iterations, TotalTokens: total.TotalTokens})
			return
		}

		if a.config.EnableLoopDetection && DetectLoop(sess.Messages, detectionWindow) {
			note := "The recent tool calls follow a repeating pattern. Try a different approach."
			sess.Append(llm.UserMessage(note))
			emitter.Emit(LoopEvent{Kind: EventLoopDetected, Content: note})
		}
	}
}
