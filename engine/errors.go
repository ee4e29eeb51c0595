// Copyright (C) 2025 Mono Technologies Inc.
//
// This program is free software; you can redistribute it and/or
// modify it under the terms of the GNU General Public License
// as published by the Free Software Foundation; version 2.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.

package engine

import (
	"errors"
	"fmt"

	"github.com/we-are-mono/netstage/types"
)

// ErrApplyInProgress is returned when an apply is attempted while another
// apply holds the engine. Callers should retry after the current run ends.
var ErrApplyInProgress = errors.New("an apply operation is already in progress")

// ValidationError rejects a staged configuration before it enters the ledger.
type ValidationError struct {
	Resource string
	Err      error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration for %s: %v", e.Resource, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// SnapshotError aborts an apply before any change is executed: without a
// snapshot there is no rollback target.
type SnapshotError struct {
	Err error
}

func (e *SnapshotError) Error() string {
	return fmt.Sprintf("failed to capture pre-apply snapshot: %v", e.Err)
}

func (e *SnapshotError) Unwrap() error { return e.Err }

// ApplyStepError reports the first change that failed during an apply run.
// Changes after it were not attempted.
type ApplyStepError struct {
	ChangeID string
	Resource string
	Action   types.ChangeAction
	Err      error
}

func (e *ApplyStepError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Action, e.Resource, e.Err)
}

func (e *ApplyStepError) Unwrap() error { return e.Err }

// VerificationError reports that post-apply connectivity checks failed and
// rollback was triggered.
type VerificationError struct {
	Target string
	Err    error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("connectivity verification failed for %s: %v", e.Target, e.Err)
}

func (e *VerificationError) Unwrap() error { return e.Err }

// RestoreError aggregates the per-link failures of a best-effort restore.
// Links not listed were restored successfully.
type RestoreError struct {
	Failures map[string]error
}

func (e *RestoreError) Error() string {
	return fmt.Sprintf("restore completed with %d failed link(s)", len(e.Failures))
}
