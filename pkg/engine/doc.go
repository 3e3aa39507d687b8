// Package engine drives satellites through a staged boot:
//
//   - stage 0 loads the foundational utils and config satellites;
//   - stage 1 discovers every satellite and runs the load hooks;
//   - stage 2 runs the start hooks and marks the runtime as running.
//
// Hooks run strictly one after the other in priority order. Any hook error
// during boot or shutdown is fatal: the engine stops and the process exits.
package engine
