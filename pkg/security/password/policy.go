// Package password implements the password policy engine and the
// adaptive one-way hashing wrapper. The engine is stateless; it reads
// history but never mutates it — pruning is the Credential Store's job.
package password

import (
	"strings"
)

// Violation enumerates the specific reasons a candidate password was
// rejected, so the caller can render a per-violation message. Violations
// are only ever shown to an already-authenticated caller (change-password);
// this detail must never leak to the unauthenticated login path.
type Violation string

const (
	TooShort          Violation = "TOO_SHORT"
	MissingUpper      Violation = "MISSING_UPPER"
	MissingDigit      Violation = "MISSING_DIGIT"
	MissingSpecial    Violation = "MISSING_SPECIAL"
	ContainsUsername  Violation = "CONTAINS_USERNAME"
	Reused            Violation = "REUSED"
)

const specialChars = "!@#$%^&*()_+-=[]{}|;:,.<>?/~`"

// Policy holds the tunable parameters of the engine (defaults come from
// config.AuthConfig.Password).
type Policy struct {
	MinLength    int
	HistoryLimit int
}

func NewPolicy(minLength, historyLimit int) Policy {
	return Policy{MinLength: minLength, HistoryLimit: historyLimit}
}

// HistoryEntry is the minimal shape the engine needs from a
// PasswordHistory row: the stored hash to compare the candidate against.
type HistoryEntry struct {
	PasswordHash string
}

// Verifier checks a plaintext candidate against a stored hash. Implemented
// by the bcrypt Hasher in this package; kept as an interface so the engine
// has no direct bcrypt dependency.
type Verifier interface {
	Verify(hash, plaintext string) bool
}

// Validate runs every policy rule against candidate and returns the full
// list of violations (not just the first), so the caller can report them
// all at once.
func (p Policy) Validate(candidate, username string, history []HistoryEntry, verifier Verifier) []Violation {
	var violations []Violation

	if len(candidate) < p.MinLength {
		violations = append(violations, TooShort)
	}
	if !containsUpper(candidate) {
		violations = append(violations, MissingUpper)
	}
	if !containsDigit(candidate) {
		violations = append(violations, MissingDigit)
	}
	if !containsSpecial(candidate) {
		violations = append(violations, MissingSpecial)
	}
	if username != "" && strings.Contains(strings.ToLower(candidate), strings.ToLower(username)) {
		violations = append(violations, ContainsUsername)
	}
	if reusesHistory(candidate, history, verifier) {
		violations = append(violations, Reused)
	}

	return violations
}

func reusesHistory(candidate string, history []HistoryEntry, verifier Verifier) bool {
	for _, entry := range history {
		if verifier.Verify(entry.PasswordHash, candidate) {
			return true
		}
	}
	return false
}

func containsUpper(s string) bool {
	for _, r := range s {
		if r >= 'A' && r <= 'Z' {
			return true
		}
	}
	return false
}

func containsDigit(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}

func containsSpecial(s string) bool {
	return strings.ContainsAny(s, specialChars)
}
