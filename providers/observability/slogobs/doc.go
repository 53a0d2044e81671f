// Package slogobs implements observability.Provider on top of log/slog.
// Spans become paired start/end log records carrying their duration, metrics
// become debug records with running totals, and log calls map onto slog
// levels (with a TRACE level below DEBUG for wire-level noise).
//
// [New] builds an observer writing text records to stdout at the level from
// BRIDGE_LOG_LEVEL; [WithLevel], [WithJSON], [WithOutput], and [WithLogger]
// override the defaults.
package slogobs
