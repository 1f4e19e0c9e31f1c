package models

import (
	"strings"
	"time"
	"unicode/utf8"

	"curaledger/pkg/domain"
	dErrors "curaledger/pkg/domain-errors"
	"curaledger/pkg/fixedpoint"
)

const maxLabelLen = 50

// Recognition is an administrator-granted label for a donor's support of one case.
type Recognition struct {
	CaseID    domain.CaseID  `json:"case_id"`
	Label     string         `json:"label"`
	GrantedBy domain.ActorID `json:"granted_by"`
	GrantedAt time.Time      `json:"granted_at"`
}

// Donor aggregates a donor's contributions across cases.
//
// Invariants:
//   - TotalDonated is the checked sum of every recorded contribution
//   - Cases holds each supported case once, in first-donation order
//   - at most one Recognition per case, only for cases in Cases
type Donor struct {
	ID           domain.ActorID  `json:"id"`
	TotalDonated uint64          `json:"total_donated"`
	Cases        []domain.CaseID `json:"cases"`
	Recognitions []Recognition   `json:"recognitions,omitempty"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func NewDonor(id domain.ActorID, now time.Time) *Donor {
	return &Donor{ID: id, UpdatedAt: now}
}

// HasDonatedTo reports whether caseID is among the donor's supported cases.
func (d *Donor) HasDonatedTo(caseID domain.CaseID) bool {
	for _, c := range d.Cases {
		if c == caseID {
			return true
		}
	}
	return false
}

// ApplyContribution adds amount to the running total and remembers caseID.
// The total is always committed; a full case list is reported as
// CapacityExceeded after the total has been updated.
func (d *Donor) ApplyContribution(caseID domain.CaseID, amount uint64, capacity int, now time.Time) error {
	total, err := fixedpoint.CheckedAdd(d.TotalDonated, amount)
	if err != nil {
		return err
	}
	d.TotalDonated = total
	d.UpdatedAt = now
	if d.HasDonatedTo(caseID) {
		return nil
	}
	if len(d.Cases) >= capacity {
		return dErrors.New(dErrors.CodeCapacityExceeded, "donor case list is full")
	}
	d.Cases = append(d.Cases, caseID)
	return nil
}

// NormalizeLabel trims and validates a recognition label.
func NormalizeLabel(label string) (string, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return "", dErrors.New(dErrors.CodeValidation, "recognition label is required")
	}
	if utf8.RuneCountInString(label) > maxLabelLen {
		return "", dErrors.New(dErrors.CodeValidation, "recognition label must be 50 characters or less")
	}
	return label, nil
}

// Recognize attaches a label for caseID.
func (d *Donor) Recognize(caseID domain.CaseID, label string, by domain.ActorID, now time.Time) (Recognition, error) {
	if !d.HasDonatedTo(caseID) {
		return Recognition{}, dErrors.New(dErrors.CodeValidation, "donor has not donated to this case")
	}
	for _, r := range d.Recognitions {
		if r.CaseID == caseID {
			return Recognition{}, dErrors.New(dErrors.CodeConflict, "donor is already recognized for this case")
		}
	}
	r := Recognition{CaseID: caseID, Label: label, GrantedBy: by, GrantedAt: now}
	d.Recognitions = append(d.Recognitions, r)
	d.UpdatedAt = now
	return r, nil
}

// Clone returns a deep copy.
func (d *Donor) Clone() *Donor {
	if d == nil {
		return nil
	}
	out := *d
	if d.Cases != nil {
		out.Cases = append(make([]domain.CaseID, 0, len(d.Cases)), d.Cases...)
	}
	if d.Recognitions != nil {
		out.Recognitions = append(make([]Recognition, 0, len(d.Recognitions)), d.Recognitions...)
	}
	return &out
}
