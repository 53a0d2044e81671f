// Package ai defines the unified chat model shared by every provider plugin:
// messages built from typed content parts, chat requests and responses, the
// streaming delta sequence, the termination model, and the plugin contract
// itself. Provider subpackages (openai, anthropic, gemini, xai) translate
// between these shapes and their vendor wire formats; everything above the
// plugin boundary works exclusively with the types in this package.
//
// The central interface is [Plugin]. A plugin translates a [ChatRequest] into
// a vendor HTTP request, parses the vendor response into a [ChatResponse] or
// a [DeltaStream] of [StreamDelta] values, normalizes vendor failures onto
// the shared error taxonomy, and classifies termination through
// [TerminationSignal]. Plugins are registered in a [Registry] keyed by
// (id, version); models live in a [Catalog] that maps qualified model ids to
// capability metadata and the plugin that serves them.
package ai
