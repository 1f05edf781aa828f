// Package agent implements the conversation loop and its supporting
// machinery: the tool registry, permission gating, result caching, the
// parallel tool executor, and the error recovery classifier.
//
// The loop is strictly sequential across iterations; concurrency is
// confined to the read-only tool group inside a single iteration. Every
// failure mode below the loop boundary becomes a typed event in the
// stream rather than an escaping error.
package agent
