package models

import (
	"time"

	"github.com/google/uuid"

	"curaledger/pkg/domain"
)

// Vote is an immutable verifier decision on a case. At most one exists per
// (CaseID, Verifier).
type Vote struct {
	CaseID   domain.CaseID  `json:"case_id"`
	Verifier domain.ActorID `json:"verifier"`
	Approve  bool           `json:"approve"`
	CastAt   time.Time      `json:"cast_at"`
}

// Donation is an append-only audit entry for one contribution.
type Donation struct {
	ID        uuid.UUID      `json:"id"`
	CaseID    domain.CaseID  `json:"case_id"`
	Donor     domain.ActorID `json:"donor"`
	Asset     domain.AssetID `json:"asset"`
	Amount    uint64         `json:"amount"`
	DonatedAt time.Time      `json:"donated_at"`
}
