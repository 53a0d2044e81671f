// Package client is the façade of the bridge. It routes unified chat requests
// to the provider plugin serving the requested model, executes them through
// the retrying transport, and optionally drives the multi-turn agent loop when
// a request enables tools.
//
// A [Client] owns the plugin registry, the model catalog, the tool subsystem,
// and the rate limiter; all of them are populated at construction or via the
// Register* methods and treated as read-mostly during requests.
package client
