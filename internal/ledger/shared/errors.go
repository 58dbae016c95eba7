package shared

import (
	"errors"
	"fmt"
)

// Error taxonomy roots. Every ledger operation failure wraps one of these so
// callers can discriminate with errors.Is and pick a remediation path.
var (
	// ErrNotFound indicates a referenced account or entry does not exist.
	ErrNotFound = errors.New("ledger: not found")
	// ErrValidation rejects the whole operation; no partial writes.
	ErrValidation = errors.New("ledger: validation failed")
	// ErrConflict indicates a uniqueness or state conflict.
	ErrConflict = errors.New("ledger: conflict")
	// ErrPeriodLocked indicates a mutation inside a locked month.
	ErrPeriodLocked = errors.New("ledger: period locked")
	// ErrBusy indicates a concurrent close is in progress; retry shortly.
	ErrBusy = errors.New("ledger: period is busy; try again shortly")
)

var (
	// ErrAccountNotFound indicates a missing GL account.
	ErrAccountNotFound = fmt.Errorf("%w: gl account", ErrNotFound)
	// ErrEntryNotFound indicates a missing journal entry.
	ErrEntryNotFound = fmt.Errorf("%w: journal entry", ErrNotFound)
	// ErrUnbalanced indicates total debits != total credits.
	ErrUnbalanced = fmt.Errorf("%w: entry not balanced", ErrValidation)
	// ErrOneSidedLine indicates a line carrying both or neither side.
	ErrOneSidedLine = fmt.Errorf("%w: line must have exactly one positive side", ErrValidation)
	// ErrDuplicateAccount indicates a code or name collision.
	ErrDuplicateAccount = fmt.Errorf("%w: account code or name already exists", ErrConflict)
	// ErrAlreadyClosed indicates a prior closing without a posted reversal.
	ErrAlreadyClosed = fmt.Errorf("%w: already closed", ErrConflict)
	// ErrNothingToClose indicates zero month activity.
	ErrNothingToClose = fmt.Errorf("%w: nothing to close", ErrValidation)
	// ErrReverseDraft indicates an attempt to reverse an unposted entry.
	ErrReverseDraft = fmt.Errorf("%w: cannot reverse a draft entry", ErrValidation)
	// ErrEntryPosted indicates a mutation only allowed on drafts.
	ErrEntryPosted = fmt.Errorf("%w: entry is posted", ErrValidation)
)
