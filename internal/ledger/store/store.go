// Package store persists case aggregates. Every mutation goes through Execute,
// which serializes writers per case id and commits the aggregate only when the
// mutation callback succeeds.
package store

import (
	"fmt"

	"curaledger/pkg/platform/sentinel"
)

var (
	// ErrNotFound is returned when the case does not exist.
	ErrNotFound = sentinel.ErrNotFound

	// ErrCaseIDTaken is returned when a case with the same id already exists.
	ErrCaseIDTaken = fmt.Errorf("case id: %w", sentinel.ErrAlreadyUsed)

	// ErrPatientHasOpenCase is returned when the patient already has a pending or
	// verified case.
	ErrPatientHasOpenCase = fmt.Errorf("patient open case: %w", sentinel.ErrAlreadyUsed)
)
