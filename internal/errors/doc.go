// Package errors defines the runtime error codes, the message catalog shared
// by the engine and the action pipeline, and the Error type that carries a
// code through wrapped error chains.
package errors
