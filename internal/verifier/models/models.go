package models

import (
	"strings"
	"time"
	"unicode/utf8"

	"curaledger/pkg/domain"
	dErrors "curaledger/pkg/domain-errors"
)

const maxKindLen = 32

// Verifier is a registry member entitled to vote while active. Removal only
// deactivates, so past votes keep a resolvable author.
type Verifier struct {
	ID        domain.ActorID `json:"id"`
	Kind      string         `json:"kind"`
	Active    bool           `json:"active"`
	AddedAt   time.Time      `json:"added_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// NormalizeKind trims and validates the free-text verifier type.
func NormalizeKind(kind string) (string, error) {
	kind = strings.TrimSpace(kind)
	if kind == "" {
		return "", dErrors.New(dErrors.CodeValidation, "verifier kind is required")
	}
	if utf8.RuneCountInString(kind) > maxKindLen {
		return "", dErrors.New(dErrors.CodeValidation, "verifier kind must be 32 characters or less")
	}
	return kind, nil
}

// NewVerifier returns an active verifier.
func NewVerifier(id domain.ActorID, kind string, now time.Time) (*Verifier, error) {
	if id == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "verifier id cannot be empty")
	}
	kind, err := NormalizeKind(kind)
	if err != nil {
		return nil, err
	}
	return &Verifier{ID: id, Kind: kind, Active: true, AddedAt: now, UpdatedAt: now}, nil
}

// CanActivate rejects re-adding an active verifier.
func (v *Verifier) CanActivate() error {
	if v.Active {
		return dErrors.New(dErrors.CodeConflict, "verifier is already active")
	}
	return nil
}

// ApplyActivation re-activates the verifier with a possibly new kind.
func (v *Verifier) ApplyActivation(kind string, now time.Time) {
	v.Active = true
	v.Kind = kind
	v.UpdatedAt = now
}

// CanDeactivate rejects removing an inactive verifier.
func (v *Verifier) CanDeactivate() error {
	if !v.Active {
		return dErrors.New(dErrors.CodeConflict, "verifier is already inactive")
	}
	return nil
}

func (v *Verifier) ApplyDeactivation(now time.Time) {
	v.Active = false
	v.UpdatedAt = now
}
