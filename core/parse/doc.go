// Package parse recovers structured data from model output that is almost,
// but not quite, valid JSON. Models emit single quotes, bare keys, trailing
// commas, and truncated objects; the helpers here decode strictly first and
// fall back to automatic JSON repair before giving up with a clear error.
//
// The client uses [Object] to salvage malformed tool-call arguments; [As]
// decodes repaired content into a typed value.
package parse
