// Package action defines the contract between action authors and the
// pipeline: definitions with declared inputs, the middleware hooks wrapped
// around every invocation, the versioned registry the pipeline resolves
// against and the connection object transports hand to it.
package action
