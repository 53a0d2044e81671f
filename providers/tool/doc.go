// Package tool implements the tool subsystem: a registry mapping tool names
// to definitions and handlers, a router that validates and executes tool
// calls with timeout and concurrency control, and a typed constructor that
// derives input schemas from Go types.
//
// Tools are advertised to the model through [ai.ToolDefinition] and invoked
// through [Router.Execute], which always returns a structured [ai.ToolOutcome]
// rather than an error: validation failures, timeouts, and handler panics all
// surface as outcome error codes so a failed tool never aborts the
// conversation.
package tool
