package service

import (
	"curaledger/internal/ledger/models"
	"curaledger/pkg/fixedpoint"
)

// Outcome is the result of evaluating a case's tally.
type Outcome string

const (
	OutcomePending  Outcome = "pending"
	OutcomeVerified Outcome = "verified"
	OutcomeRejected Outcome = "rejected"
	OutcomeNoQuorum Outcome = "no_quorum"
)

// Tally is the quorum arithmetic for one case at one point in time.
type Tally struct {
	Yes         uint64 `json:"yes"`
	No          uint64 `json:"no"`
	Active      uint64 `json:"active_verifiers"`
	QuorumMet   bool   `json:"quorum_met"`
	ApprovalMet bool   `json:"approval_met"`
}

// Evaluate computes participation against the active verifier count and
// approval against the votes cast. A zero denominator never meets a threshold.
func Evaluate(c *models.Case, active uint64, p models.Policy) (Tally, error) {
	t := Tally{Yes: c.YesVotes, No: c.NoVotes, Active: active}
	total, err := c.TotalVotes()
	if err != nil {
		return Tally{}, err
	}
	if t.QuorumMet, err = fixedpoint.MeetsThreshold(total, active, p.ParticipationPercent); err != nil {
		return Tally{}, err
	}
	if t.ApprovalMet, err = fixedpoint.MeetsThreshold(c.YesVotes, total, p.ApprovalPercent); err != nil {
		return Tally{}, err
	}
	return t, nil
}

// Verified reports whether both thresholds are met.
func (t Tally) Verified() bool {
	return t.QuorumMet && t.ApprovalMet
}

// ProvablyRejected reports whether enough verifiers took part and the approval
// threshold still failed.
func (t Tally) ProvablyRejected() bool {
	return t.QuorumMet && !t.ApprovalMet
}

// Final maps the tally to the outcome recorded once the window has closed.
func (t Tally) Final() Outcome {
	switch {
	case t.Verified():
		return OutcomeVerified
	case t.ProvablyRejected():
		return OutcomeRejected
	default:
		return OutcomeNoQuorum
	}
}
