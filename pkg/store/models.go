// Package store is the persistence layer for the Credential Store,
// Revocation Ledger, and Expense Workflow Engine. Every repository here
// uses sqlx + lib/pq. The user and expense repositories share one idiom: a
// Save that creates when the ID is zero and updates otherwise, and a
// persistence struct with db tags converted to/from the domain type; only
// the user repository translates pq.Error 23505 to a domain conflict.
package store

import "time"

// User is a registered credential holder.
type User struct {
	ID                   int64
	Username             string
	Email                string
	FirstName            string
	LastName             string
	Company              string
	PasswordHash         string
	Role                 string
	Enabled              bool
	Locked               bool
	FailedLoginCount     int
	PasswordLastChanged  time.Time
	PasswordExpiresAt    time.Time
	ForcePasswordChange  bool
	TokensInvalidBefore  time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// PasswordHistoryEntry is one previously-used password hash for a user.
type PasswordHistoryEntry struct {
	ID           int64
	UserID       int64
	PasswordHash string
	ChangedAt    time.Time
}

// RevokedToken is one entry in the revocation ledger.
type RevokedToken struct {
	ID        int64
	JTI       string
	Username  string
	RevokedAt time.Time
	ExpiresAt time.Time
}

// ExpenseStatus is one of the six states in the expense state machine.
type ExpenseStatus string

const (
	ExpenseDraft       ExpenseStatus = "DRAFT"
	ExpenseSubmitted   ExpenseStatus = "SUBMITTED"
	ExpenseApproved    ExpenseStatus = "APPROVED"
	ExpenseRejected    ExpenseStatus = "REJECTED"
	ExpenseResubmitted ExpenseStatus = "RESUBMITTED"
	ExpenseReimbursed  ExpenseStatus = "REIMBURSED"
)

// Expense is a single expense record moving through the workflow.
type Expense struct {
	ID               int64
	OwnerUsername    string
	ExpenseDate      time.Time
	Amount           float64
	Client           string
	Project          string
	ExpenseType      string
	PaymentMethod    string
	Vendor           string
	Description      string
	ReceiptRef       string
	Status           ExpenseStatus
	SubmittedAt      *time.Time
	ApprovedBy       *string
	ApprovedAt       *time.Time
	RejectionReason  string
	ReimbursedAt     *time.Time
	ResubmittedCount int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
