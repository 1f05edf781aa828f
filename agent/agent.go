package agent

import (
	"context"

	"github.com/forgeagent/forge/llm"
	"github.com/forgeagent/forge/session"
)

// Completer is the model transport contract the loop consumes. llm.Client
// satisfies it.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// Agent binds a model transport, tool registry, permission manager, and
// session state, and exposes running a user message as an event stream.
type Agent struct {
	client      Completer
	registry    *Registry
	permissions *PermissionManager
	cache       *ResultCache
	recovery    *ErrorRecovery
	env         ExecutionEnvironment
	config      LoopConfig
}

// Option configures an Agent.
type Option func(*Agent)

// WithCache replaces the default result cache.
func WithCache(cache *ResultCache) Option {
	return func(a *Agent) { a.cache = cache }
}

// WithRecovery replaces the default error recovery classifier.
func WithRecovery(recovery *ErrorRecovery) Option {
	return func(a *Agent) { a.recovery = recovery }
}

// WithEnvironment sets the execution environment passed to tool functions.
func WithEnvironment(env ExecutionEnvironment) Option {
	return func(a *Agent) { a.env = env }
}

// WithConfig replaces the default loop configuration.
func WithConfig(cfg LoopConfig) Option {
	return func(a *Agent) { a.config = cfg }
}

// New creates an Agent. All collaborators are explicit; there is no
// ambient global state.
func New(client Completer, registry *Registry, permissions *PermissionManager, opts ...Option) *Agent {
	a := &Agent{
		client:      client,
		registry:    registry,
		permissions: permissions,
		cache:       NewResultCache(),
		recovery:    NewErrorRecovery(),
		config:      DefaultLoopConfig(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Registry returns the agent's tool registry.
func (a *Agent) Registry() *Registry { return a.registry }

// Recovery returns the agent's error recovery classifier.
func (a *Agent) Recovery() *ErrorRecovery { return a.recovery }

// Cache returns the agent's tool result cache.
func (a *Agent) Cache() *ResultCache { return a.cache }

// Run appends userText as a user turn and drives the conversation loop
// until it terminates. Events are delivered on the returned channel,
// which is closed when the loop ends.
func (a *Agent) Run(ctx context.Context, sess *session.Session, userText string) <-chan LoopEvent {
	sess.Append(llm.UserMessage(userText))

	emitter := NewEventEmitter(sess.ID, 256)
	go func() {
		defer emitter.Close()
		a.runLoop(ctx, sess, emitter)
	}()
	return emitter.Events()
}
