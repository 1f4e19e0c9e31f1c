package models

import (
	"time"

	"curaledger/pkg/domain"
	dErrors "curaledger/pkg/domain-errors"
)

// Aggregate is the unit of work for one case: the case itself, its votes and its
// escrow. Stores hand a copy to the mutation callback and persist it only when the
// callback succeeds, so a failed precondition leaves stored state untouched.
type Aggregate struct {
	Case   *Case
	Votes  []Vote
	Escrow *Escrow

	// NewDonations are appended by the store on commit; existing donations are
	// never loaded into the aggregate.
	NewDonations []Donation

	// Closed asks the store to delete the case, its votes and its escrow.
	Closed bool
}

// HasVoted reports whether verifier already has a vote on this case.
func (a *Aggregate) HasVoted(verifier domain.ActorID) bool {
	for _, v := range a.Votes {
		if v.Verifier == verifier {
			return true
		}
	}
	return false
}

// RecordVote appends an immutable vote and updates the tally.
func (a *Aggregate) RecordVote(verifier domain.ActorID, approve bool, now time.Time, capacity int) (Vote, error) {
	if a.HasVoted(verifier) {
		return Vote{}, dErrors.New(dErrors.CodeDuplicateVote, "verifier has already voted on this case")
	}
	if len(a.Votes) >= capacity {
		return Vote{}, dErrors.New(dErrors.CodeCapacityExceeded, "case vote capacity reached")
	}
	if err := a.Case.ApplyVote(approve, now); err != nil {
		return Vote{}, err
	}
	vote := Vote{CaseID: a.Case.ID, Verifier: verifier, Approve: approve, CastAt: now}
	a.Votes = append(a.Votes, vote)
	return vote, nil
}

// OpenEscrow creates the escrow if the case does not have one yet.
func (a *Aggregate) OpenEscrow(now time.Time) {
	if a.Escrow == nil {
		a.Escrow = NewEscrow(a.Case.ID, now)
	}
}

// Clone returns a deep copy for copy-on-write mutation.
func (a *Aggregate) Clone() *Aggregate {
	out := &Aggregate{
		Case:   a.Case.Clone(),
		Escrow: a.Escrow.Clone(),
		Closed: a.Closed,
	}
	if a.Votes != nil {
		out.Votes = append(make([]Vote, 0, len(a.Votes)), a.Votes...)
	}
	if a.NewDonations != nil {
		out.NewDonations = append(make([]Donation, 0, len(a.NewDonations)), a.NewDonations...)
	}
	return out
}
