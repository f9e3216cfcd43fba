// Package policy wraps the externally supplied build manifest and
// answers the access engine's only question per event: is this access
// allowed, and how loudly should it be reported. The core never
// mutates the manifest; a Client's backing store is read-only for the
// lifetime of the traced process.
package policy

import "github.com/kalbhor/sandtrace/ioevent"

// Client is the contract the access engine consumes from the policy
// evaluator. A Check call is a pure function of the serialized manifest
// and the event; Flags are read once and never change.
type Client interface {
	Check(evt ioevent.Event) ioevent.CheckResult
	Flags() ioevent.PolicyFlags
}

// AllowAllClient is a Client that allows and never reports any access.
// It is useful as a default when no manifest is configured, and as a
// baseline in tests that only care about engine mechanics.
type AllowAllClient struct {
	PolicyFlags ioevent.PolicyFlags
}

// Check always allows.
func (c AllowAllClient) Check(ioevent.Event) ioevent.CheckResult {
	return ioevent.CheckResult{Allowed: true}
}

// Flags returns the client's configured flags.
func (c AllowAllClient) Flags() ioevent.PolicyFlags {
	return c.PolicyFlags
}
