package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/forgeagent/forge/llm"
)

// ToolExecution is the per-call outcome of a batch execution. Output
// position i always corresponds to input position i.
type ToolExecution struct {
	Request   llm.ToolUseData
	Output    string
	IsError   bool
	WasCached bool
	Denied    bool
}

// executor runs a batch of tool calls requested in one model turn.
// Read-only tools fan out concurrently; everything else, including
// unresolved names, runs strictly in sequence.
type executor struct {
	registry    *Registry
	permissions *PermissionManager
	cache       *ResultCache
	recovery    *ErrorRecovery
	env         ExecutionEnvironment
}

// ExecuteBatch resolves and executes all tool calls from a single turn,
// preserving input order in the result slice. Failures are isolated per
// call and never propagate.
func (e *executor) ExecuteBatch(ctx context.Context, requests []llm.ToolUseData) []ToolExecution {
	if len(requests) == 0 {
		return []ToolExecution{}
	}

	results := make([]ToolExecution, len(requests))

	var readIdx, writeIdx []int
	for i, req := range requests {
		def := e.registry.Get(req.Name)
		if def != nil && def.ReadOnly {
			readIdx = append(readIdx, i)
		} else {
			writeIdx = append(writeIdx, i)
		}
	}

	var wg sync.WaitGroup
	for _, i := range readIdx {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx] = e.executeOne(ctx, requests[idx])
		}(i)
	}
	wg.Wait()

	for _, i := range writeIdx {
		results[i] = e.executeOne(ctx, requests[i])
	}

	return results
}

// executeOne runs the full pipeline for a single call:
// resolve -> permission -> cache -> validate -> execute -> store.
func (e *executor) executeOne(ctx context.Context, req llm.ToolUseData) ToolExecution {
	exec := ToolExecution{Request: req}

	def := e.registry.Get(req.Name)
	if def == nil {
		exec.Output = fmt.Sprintf("Tool not found: %s", req.Name)
		exec.IsError = true
		return exec
	}

	if !e.permissions.Check(def, req.Input) {
		exec.Output = fmt.Sprintf("Permission denied: %s", req.Name)
		exec.IsError = true
		exec.Denied = true
		return exec
	}

	if cached, ok := e.cache.Get(req.Name, req.Input, def.Cacheable); ok {
		exec.Output = cached
		exec.WasCached = true
		return exec
	}

	if err := def.ValidateInput(req.Input); err != nil {
		exec.Output = e.formatError(req.Name, err)
		exec.IsError = true
		return exec
	}

	output, err := def.Func(ctx, req.Input, e.env)
	if err != nil {
		exec.Output = e.formatError(req.Name, err)
		exec.IsError = true
		return exec
	}

	e.cache.Set(req.Name, req.Input, output, def.Cacheable)
	exec.Output = output
	return exec
}

// formatError produces the model-facing error text: the raw message plus
// recovery guidance from the classifier.
func (e *executor) formatError(toolName string, err error) string {
	msg := fmt.Sprintf("Error: %v", err)
	if e.recovery == nil {
		return msg
	}
	action := e.recovery.HandleToolError(toolName, err, nil)
	if len(action.Suggestions) == 0 {
		return msg
	}
	msg += "\nSuggestions:"
	for _, s := range action.Suggestions {
		msg += "\n- " + s
	}
	return msg
}
