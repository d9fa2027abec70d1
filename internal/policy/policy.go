// Package policy holds the verdict type shared by the path and command policies.
package policy

// ValidationResult is the outcome of a policy check. Reason is set only when
// Valid is false.
type ValidationResult struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// Allow returns a passing result.
func Allow() ValidationResult {
	return ValidationResult{Valid: true}
}

// Deny returns a failing result with a human-readable reason.
func Deny(reason string) ValidationResult {
	return ValidationResult{Valid: false, Reason: reason}
}
