// Package utils provides shared low-level helpers used throughout the bridge
// internals: generic pointer utilities for the optional fields on chat
// requests, JSON string rendering for log output, and string truncation for
// oversized payloads.
package utils
