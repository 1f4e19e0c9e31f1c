package models

import (
	"time"

	"curaledger/pkg/domain"
)

// EscrowAccountPrefix namespaces the logical custody accounts handed to the
// transfer executor.
const EscrowAccountPrefix = "escrow/"

// EscrowAccount returns the logical custody account for a case.
func EscrowAccount(caseID domain.CaseID) string {
	return EscrowAccountPrefix + string(caseID)
}

// Escrow is the custodial balance of a verified case. Its balances reconcile
// with the case's raised totals: every donation credits both, every release
// debits both.
type Escrow struct {
	CaseID   domain.CaseID `json:"case_id"`
	Account  string        `json:"account"`
	Balances Balances      `json:"balances"`
	OpenedAt time.Time     `json:"opened_at"`
	ClosedAt *time.Time    `json:"closed_at,omitempty"`
}

// NewEscrow opens an empty escrow for a case.
func NewEscrow(caseID domain.CaseID, now time.Time) *Escrow {
	return &Escrow{
		CaseID:   caseID,
		Account:  EscrowAccount(caseID),
		OpenedAt: now,
	}
}

// IsOpen reports whether the escrow still accepts donations and releases.
func (e *Escrow) IsOpen() bool {
	return e != nil && e.ClosedAt == nil
}

// Close marks the escrow swept.
func (e *Escrow) Close(now time.Time) {
	closed := now
	e.ClosedAt = &closed
}

// Clone returns a deep copy.
func (e *Escrow) Clone() *Escrow {
	if e == nil {
		return nil
	}
	out := *e
	out.Balances = e.Balances.Clone()
	if e.ClosedAt != nil {
		c := *e.ClosedAt
		out.ClosedAt = &c
	}
	return &out
}
