package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks startup errors that abort a run before any transfer
	ErrConfiguration = errors.New("configuration error")

	// ErrStreamExhausted is returned by a cursor with no more records right now
	ErrStreamExhausted = errors.New("pending stream exhausted")

	// ErrProbe marks a failed metadata probe; the skip check is disabled for the file
	ErrProbe = errors.New("probe failed")

	// ErrTransferTimeout marks a timed out transfer attempt
	ErrTransferTimeout = errors.New("transfer timed out")
)

// TransferError is the terminal failure of a single file transfer.
// The record stays not downloaded and is retried by a later run.
type TransferError struct {
	FileID string
	Err    error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer of %s failed: %v", e.FileID, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// StoreWriteError is a failed completion write-back
type StoreWriteError struct {
	FileID string
	Err    error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("failed to mark %s complete: %v", e.FileID, e.Err)
}

func (e *StoreWriteError) Unwrap() error {
	return e.Err
}

// ConfigError wraps a message as a configuration error
func ConfigError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}
