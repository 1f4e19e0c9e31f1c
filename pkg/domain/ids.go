// Package domain holds the identifier primitives shared by every ledger module.
// Identifiers are validated once at the trust boundary (transport or config) and
// passed around as distinct types afterwards.
package domain

import (
	"fmt"
	"strings"

	dErrors "curaledger/pkg/domain-errors"
)

// CaseID identifies a funding case. Assigned at submission and immutable.
type CaseID string

// ActorID is an authenticated identity: patient, verifier, donor, admin or recipient.
type ActorID string

// AssetID names the asset a balance is held in. NativeAsset is the chain's
// native unit; anything else is a token id.
type AssetID string

// NativeAsset is the reserved asset id for native-unit balances.
const NativeAsset AssetID = "native"

const (
	maxCaseIDLen  = 32
	maxActorIDLen = 128
	maxAssetIDLen = 64
)

func (id CaseID) String() string  { return string(id) }
func (id ActorID) String() string { return string(id) }
func (id AssetID) String() string { return string(id) }

// IsNative reports whether the asset is the native unit.
func (id AssetID) IsNative() bool { return id == NativeAsset }

// FormatCaseNumber renders a counter value the way cases are numbered: CASE0001.
func FormatCaseNumber(n uint64) CaseID {
	return CaseID(fmt.Sprintf("CASE%04d", n))
}

// ParseCaseID validates a caller-supplied case id.
func ParseCaseID(s string) (CaseID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeValidation, "case id is required")
	}
	if len(s) > maxCaseIDLen {
		return "", dErrors.New(dErrors.CodeValidation, "case id is too long")
	}
	for _, r := range s {
		if !isIDRune(r) {
			return "", dErrors.New(dErrors.CodeValidation, "case id contains invalid characters")
		}
	}
	return CaseID(s), nil
}

// ParseActorID validates an identity handed over by the identity collaborator.
func ParseActorID(s string) (ActorID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeValidation, "actor id is required")
	}
	if len(s) > maxActorIDLen {
		return "", dErrors.New(dErrors.CodeValidation, "actor id is too long")
	}
	if strings.ContainsAny(s, " \t\r\n") {
		return "", dErrors.New(dErrors.CodeValidation, "actor id must not contain whitespace")
	}
	return ActorID(s), nil
}

// ParseAssetID validates an asset id; an empty string means the native asset.
func ParseAssetID(s string) (AssetID, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, string(NativeAsset)) {
		return NativeAsset, nil
	}
	if len(s) > maxAssetIDLen {
		return "", dErrors.New(dErrors.CodeValidation, "asset id is too long")
	}
	for _, r := range s {
		if !isIDRune(r) && r != '.' && r != ':' {
			return "", dErrors.New(dErrors.CodeValidation, "asset id contains invalid characters")
		}
	}
	return AssetID(s), nil
}

func isIDRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-' || r == '_':
		return true
	}
	return false
}
