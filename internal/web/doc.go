// Package web is the HTTP transport: GET or POST /api/{action} runs the
// action through the pipeline on a "web" connection and answers with the
// JSON response.
package web
