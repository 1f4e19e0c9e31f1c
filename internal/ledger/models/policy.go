package models

import (
	"time"

	dErrors "curaledger/pkg/domain-errors"
)

// Policy holds the tunable constants of the ledger. DefaultPolicy carries the
// values the network was launched with.
type Policy struct {
	VerificationWindow   time.Duration
	OverrideDelay        time.Duration
	ParticipationPercent uint64
	ApprovalPercent      uint64
	FundingSlack         uint64
	ReserveFloor         uint64
	MaxTokenAssets       int
	MaxVotesPerCase      int
	MaxDonorCases        int
	RequiredCoSigners    int
}

// DefaultPolicy returns the launch parameters: ten-day voting window and override
// delay, 50% participation, 70% approval, a 1,000,000 unit funding slack and the
// rent-exempt floor of an empty custody account as the reserve.
func DefaultPolicy() Policy {
	return Policy{
		VerificationWindow:   10 * 24 * time.Hour,
		OverrideDelay:        10 * 24 * time.Hour,
		ParticipationPercent: 50,
		ApprovalPercent:      70,
		FundingSlack:         1_000_000,
		ReserveFloor:         890_880,
		MaxTokenAssets:       10,
		MaxVotesPerCase:      50,
		MaxDonorCases:        20,
		RequiredCoSigners:    3,
	}
}

// Validate rejects policies the engines cannot run with.
func (p Policy) Validate() error {
	switch {
	case p.VerificationWindow <= 0:
		return dErrors.New(dErrors.CodeInvariantViolation, "verification window must be positive")
	case p.OverrideDelay <= 0:
		return dErrors.New(dErrors.CodeInvariantViolation, "override delay must be positive")
	case p.ParticipationPercent == 0 || p.ParticipationPercent > 100:
		return dErrors.New(dErrors.CodeInvariantViolation, "participation percent must be in 1..100")
	case p.ApprovalPercent == 0 || p.ApprovalPercent > 100:
		return dErrors.New(dErrors.CodeInvariantViolation, "approval percent must be in 1..100")
	case p.MaxTokenAssets <= 0 || p.MaxVotesPerCase <= 0 || p.MaxDonorCases <= 0:
		return dErrors.New(dErrors.CodeInvariantViolation, "capacities must be positive")
	case p.RequiredCoSigners <= 0:
		return dErrors.New(dErrors.CodeInvariantViolation, "at least one co-signer is required")
	}
	return nil
}
