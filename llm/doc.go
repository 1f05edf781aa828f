// Package llm provides the model transport layer: a provider-agnostic
// client for chat completions with tool use.
//
// The conversation loop in package agent talks to a single contract,
// Client.Complete, regardless of which backend serves the request.
// Provider adapters translate between the wire types here and a concrete
// SDK; the bundled GollmAdapter covers OpenAI and Anthropic via gollm.
//
// Failures surface as a typed error hierarchy (see errors.go). Retry with
// exponential backoff lives here as client middleware; callers above the
// transport never retry.
package llm
