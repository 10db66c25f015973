// Package assertlib wraps the antithesis-sdk-go assertion primitives
// used to record Fabric's runtime invariants as Antithesis-style
// "sometimes"/"always" properties, per SPEC_FULL.md's ambient
// assertions/simulation-testing section. Outside of an Antithesis
// simulation the SDK falls back to its no-op build tag, so these calls
// are safe — and cheap — to leave in production code paths.
package assertlib

import (
	"github.com/antithesishq/antithesis-sdk-go/assert"
)

// Always records a property that must hold every time the call site is
// reached; a single false observation fails the run.
func Always(cond bool, message string, details map[string]any) {
	assert.Always(cond, message, details)
}

// Sometimes records a property that must hold at least once across the
// run; it catches code paths that are silently never exercised.
func Sometimes(cond bool, message string, details map[string]any) {
	assert.Sometimes(cond, message, details)
}

// Unreachable marks a call site that must never execute.
func Unreachable(message string, details map[string]any) {
	assert.Unreachable(message, details)
}

// Reachable marks a call site that must execute at least once.
func Reachable(message string, details map[string]any) {
	assert.Reachable(message, details)
}
