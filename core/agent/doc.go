// Package agent drives multi-turn conversations: it calls the model, inspects
// each assistant message for tool invocations, dispatches them through a tool
// executor, and feeds the results back until the conversation terminates.
//
// The loop is a small state machine (idle, iteration active, inspecting, tool
// dispatch, terminated) with iteration accounting handled by [Manager].
// Termination reasons follow a fixed precedence: cancellation beats timeout,
// timeout beats the iteration cap, and natural completion is the fallback.
package agent
