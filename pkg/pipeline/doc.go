// Package pipeline runs one action invocation from admission to response.
//
// A Processor resolves the action, applies admission control, runs the
// middleware pre hooks, validates the inputs, executes the action under a
// timeout, runs the post hooks and completes exactly once. Every outcome,
// including timeouts and panics, reaches the transport through the
// completion callback.
package pipeline
