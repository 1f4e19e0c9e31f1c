package models

import (
	"time"
	"unicode/utf8"

	"curaledger/pkg/domain"
	dErrors "curaledger/pkg/domain-errors"
	"curaledger/pkg/fixedpoint"
)

// CaseStatus is the verification state of a case.
type CaseStatus string

const (
	CaseStatusPending  CaseStatus = "pending"
	CaseStatusVerified CaseStatus = "verified"
	CaseStatusRejected CaseStatus = "rejected"
)

// IsDecided reports whether the status is terminal for voting.
func (s CaseStatus) IsDecided() bool {
	return s == CaseStatusVerified || s == CaseStatusRejected
}

const (
	maxDescriptionLen = 512
	maxRecordsLinkLen = 256
)

// Case is the aggregate root of a funding request.
//
// Invariants:
//   - ID and SubmittedAt are immutable after construction
//   - Status moves Pending -> Verified or Pending -> Rejected; an administrator may
//     move Rejected -> Verified after the override delay
//   - Funded implies Raised.Total() >= TargetAmount + slack at the time it was set
//   - YesVotes + NoVotes equals the number of stored votes
type Case struct {
	ID           domain.CaseID  `json:"id"`
	Patient      domain.ActorID `json:"patient"`
	Description  string         `json:"description"`
	RecordsLink  string         `json:"records_link,omitempty"`
	TargetAmount uint64         `json:"target_amount"`
	SubmittedAt  time.Time      `json:"submitted_at"`
	Status       CaseStatus     `json:"status"`
	YesVotes     uint64         `json:"yes_votes"`
	NoVotes      uint64         `json:"no_votes"`
	Raised       Balances       `json:"raised"`
	Funded       bool           `json:"funded"`
	DecidedAt    *time.Time     `json:"decided_at,omitempty"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// NewCase validates submission fields and returns a Pending case with zero totals.
func NewCase(id domain.CaseID, patient domain.ActorID, description, recordsLink string, target uint64, now time.Time) (*Case, error) {
	if id == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "case id cannot be empty")
	}
	if patient == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "patient cannot be empty")
	}
	if description == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "description cannot be empty")
	}
	if utf8.RuneCountInString(description) > maxDescriptionLen {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "description must be 512 characters or less")
	}
	if utf8.RuneCountInString(recordsLink) > maxRecordsLinkLen {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "records link must be 256 characters or less")
	}
	if target == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidAmount, "target amount must be greater than zero")
	}
	return &Case{
		ID:           id,
		Patient:      patient,
		Description:  description,
		RecordsLink:  recordsLink,
		TargetAmount: target,
		SubmittedAt:  now,
		Status:       CaseStatusPending,
		UpdatedAt:    now,
	}, nil
}

// IsOpen reports whether the case still occupies its patient's single open slot.
func (c *Case) IsOpen() bool {
	return c.Status != CaseStatusRejected
}

// VotingDeadline is the last instant a vote is accepted.
func (c *Case) VotingDeadline(window time.Duration) time.Time {
	return c.SubmittedAt.Add(window)
}

// WindowOpen reports whether now is within the verification window.
func (c *Case) WindowOpen(now time.Time, window time.Duration) bool {
	return !now.After(c.VotingDeadline(window))
}

// TotalVotes returns yes+no with overflow checking.
func (c *Case) TotalVotes() (uint64, error) {
	return fixedpoint.CheckedAdd(c.YesVotes, c.NoVotes)
}

// CanVote checks the status half of the vote preconditions.
func (c *Case) CanVote() error {
	if c.Status != CaseStatusPending {
		return dErrors.New(dErrors.CodeCaseAlreadyDecided, "case has already been decided")
	}
	return nil
}

// ApplyVote increments the yes or no counter.
func (c *Case) ApplyVote(approve bool, now time.Time) error {
	if approve {
		next, err := fixedpoint.CheckedAdd(c.YesVotes, 1)
		if err != nil {
			return err
		}
		c.YesVotes = next
	} else {
		next, err := fixedpoint.CheckedAdd(c.NoVotes, 1)
		if err != nil {
			return err
		}
		c.NoVotes = next
	}
	c.UpdatedAt = now
	return nil
}

// ApplyDecision records a terminal verification status.
func (c *Case) ApplyDecision(status CaseStatus, now time.Time) {
	c.Status = status
	decided := now
	c.DecidedAt = &decided
	c.UpdatedAt = now
}

// RaisedTotal sums native and token totals.
func (c *Case) RaisedTotal() (uint64, error) {
	return c.Raised.Total()
}

// FundingBar is TargetAmount + slack, the total at which a case counts as funded.
func (c *Case) FundingBar(slack uint64) (uint64, error) {
	return fixedpoint.CheckedAdd(c.TargetAmount, slack)
}

// MarkFundedIfReached sets Funded once the raised total reaches the funding bar.
// It never clears the flag; only a release does that.
func (c *Case) MarkFundedIfReached(slack uint64) error {
	total, err := c.RaisedTotal()
	if err != nil {
		return err
	}
	bar, err := c.FundingBar(slack)
	if err != nil {
		return err
	}
	if total >= bar {
		c.Funded = true
	}
	return nil
}

// ReduceTarget lowers the outstanding need by min(amount, TargetAmount).
func (c *Case) ReduceTarget(amount uint64) error {
	next, err := fixedpoint.CheckedSub(c.TargetAmount, fixedpoint.Min(amount, c.TargetAmount))
	if err != nil {
		return err
	}
	c.TargetAmount = next
	return nil
}

// Clone returns a deep copy so callers can mutate without touching stored state.
func (c *Case) Clone() *Case {
	if c == nil {
		return nil
	}
	out := *c
	out.Raised = c.Raised.Clone()
	if c.DecidedAt != nil {
		d := *c.DecidedAt
		out.DecidedAt = &d
	}
	return &out
}
