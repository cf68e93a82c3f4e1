package oplog

import "errors"

// Sentinel errors identifying the failure taxonomy a Log or LogIO can
// surface. Wrap these with fmt.Errorf("...: %w", ErrX) at the call site so
// errors.Is keeps working across the added context.
var (
	// ErrStoreMissing is returned when a Log is constructed without an
	// EntryStore.
	ErrStoreMissing = errors.New("oplog: store is required")

	// ErrLogMissing names the case of an operation given no Log. No
	// function in this module returns it.
	ErrLogMissing = errors.New("oplog: log is required")

	// ErrNotALog is returned by Join when the argument does not present the
	// Log shape (id, heads, entry index).
	ErrNotALog = errors.New("oplog: not a log")

	// ErrBadEntries is returned when the entries supplied to NewLog are
	// malformed.
	ErrBadEntries = errors.New("oplog: bad entries")

	// ErrBadHeads is returned when the heads supplied to NewLog are
	// malformed or reference entries outside the entry set.
	ErrBadHeads = errors.New("oplog: bad heads")

	// ErrInvalidHash names the case of a malformed hash string. No function
	// in this module validates hash shape or returns it.
	ErrInvalidHash = errors.New("oplog: invalid hash")

	// ErrNotAllowedToWrite is returned by Append when the signing identity
	// is not present in allowedKeys.
	ErrNotAllowedToWrite = errors.New("oplog: not allowed to write")

	// ErrEntryMissingKey is returned by Join when a signed-mode log
	// receives an entry without a key.
	ErrEntryMissingKey = errors.New("oplog: entry missing key")

	// ErrEntryMissingSig is returned by Join when a signed-mode log
	// receives an entry without a signature.
	ErrEntryMissingSig = errors.New("oplog: entry missing signature")

	// ErrVerificationFailed marks an entry whose signature did not verify.
	// Per spec this is handled by dropping the entry from the join, not by
	// aborting it; it is exposed so callers/logs can report it.
	ErrVerificationFailed = errors.New("oplog: signature verification failed")

	// ErrStoreError wraps an underlying store or keystore failure.
	ErrStoreError = errors.New("oplog: store error")
)
