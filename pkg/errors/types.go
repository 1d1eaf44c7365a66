// Package errors provides typed errors for the shist project.
//
// This package defines the error taxonomy of the history engine (indexing,
// lookup, on-disk decoding, background flushing, session locking) plus
// configuration and foreign-history source errors. All error types implement
// the standard error interface and support errors.Is() and errors.As() from
// the standard library and cockroachdb/errors.
package errors

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// ConfigError represents configuration-related errors.
type ConfigError struct {
	Field   string // Which config field has the issue
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error in %s: %s", e.Field, e.Message)
	}
	return "config error: " + e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// NewConfigErrorWithCause creates a new ConfigError with an underlying cause.
func NewConfigErrorWithCause(field, message string, cause error) *ConfigError {
	return &ConfigError{Field: field, Message: message, Cause: cause}
}

// IndexError reports an integer index outside the bounds of a history view.
type IndexError struct {
	Index int
	Len   int
}

// Error implements the error interface.
func (e *IndexError) Error() string {
	return fmt.Sprintf("history index %d out of range [%d, %d)", e.Index, -e.Len, e.Len)
}

// NewIndexError creates a new IndexError.
func NewIndexError(index, length int) *IndexError {
	return &IndexError{Index: index, Len: length}
}

// KeyError reports a fuzzy command lookup that matched nothing.
type KeyError struct {
	Key string
}

// Error implements the error interface.
func (e *KeyError) Error() string {
	return fmt.Sprintf("no history entry matches %q", e.Key)
}

// NewKeyError creates a new KeyError.
func NewKeyError(key string) *KeyError {
	return &KeyError{Key: key}
}

// MalformedRecordError reports a unit in a history file that cannot be decoded.
type MalformedRecordError struct {
	Path   string
	Offset int64
	Reason string
	Cause  error
}

// Error implements the error interface.
func (e *MalformedRecordError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("malformed history unit in %s at offset %d: %s", e.Path, e.Offset, e.Reason)
	}
	return fmt.Sprintf("malformed history unit at offset %d: %s", e.Offset, e.Reason)
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *MalformedRecordError) Unwrap() error {
	return e.Cause
}

// NewMalformedRecordError creates a new MalformedRecordError.
func NewMalformedRecordError(path string, offset int64, reason string) *MalformedRecordError {
	return &MalformedRecordError{Path: path, Offset: offset, Reason: reason}
}

// FlushError represents a failed background write of buffered records.
type FlushError struct {
	Session string
	Pending int // Records that remain buffered for the next flush
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *FlushError) Error() string {
	if e.Session != "" {
		return fmt.Sprintf("flush of session %s failed (%d records pending): %s", e.Session, e.Pending, e.Message)
	}
	return fmt.Sprintf("flush failed (%d records pending): %s", e.Pending, e.Message)
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *FlushError) Unwrap() error {
	return e.Cause
}

// NewFlushError creates a new FlushError with an underlying cause.
func NewFlushError(session string, pending int, message string, cause error) *FlushError {
	return &FlushError{Session: session, Pending: pending, Message: message, Cause: cause}
}

// LockError reports that another writer holds a session file.
type LockError struct {
	Path      string
	Message   string
	Retryable bool
	Cause     error
}

// Error implements the error interface.
func (e *LockError) Error() string {
	return fmt.Sprintf("lock %s: %s", e.Path, e.Message)
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *LockError) Unwrap() error {
	return e.Cause
}

// NewLockError creates a new LockError. Contention is retryable; any other
// failure to lock is not.
func NewLockError(path string, contended bool, cause error) *LockError {
	msg := "failed to acquire writer lock"
	if contended {
		msg = "session file is held by another writer"
	}
	return &LockError{Path: path, Message: msg, Retryable: contended, Cause: cause}
}

// SourceError represents a failure reading a foreign shell history (bash,
// zsh, zsh-histdb, atuin).
type SourceError struct {
	Source  string
	Path    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *SourceError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s history at %s: %s", e.Source, e.Path, e.Message)
	}
	return fmt.Sprintf("%s history: %s", e.Source, e.Message)
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *SourceError) Unwrap() error {
	return e.Cause
}

// NewSourceError creates a new SourceError with an underlying cause.
func NewSourceError(source, path, message string, cause error) *SourceError {
	return &SourceError{Source: source, Path: path, Message: message, Cause: cause}
}

// IsRetryable checks if an error or any error in its chain is retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var lockErr *LockError
	if errors.As(err, &lockErr) {
		return lockErr.Retryable
	}

	return false
}

// IsConfigError checks if an error or any error in its chain is a ConfigError.
func IsConfigError(err error) bool {
	var configErr *ConfigError
	return errors.As(err, &configErr)
}

// IsIndexError checks if an error or any error in its chain is an IndexError.
func IsIndexError(err error) bool {
	var indexErr *IndexError
	return errors.As(err, &indexErr)
}

// IsKeyError checks if an error or any error in its chain is a KeyError.
func IsKeyError(err error) bool {
	var keyErr *KeyError
	return errors.As(err, &keyErr)
}

// IsMalformed checks if an error or any error in its chain is a MalformedRecordError.
func IsMalformed(err error) bool {
	var malformed *MalformedRecordError
	return errors.As(err, &malformed)
}

// IsFlushError checks if an error or any error in its chain is a FlushError.
func IsFlushError(err error) bool {
	var flushErr *FlushError
	return errors.As(err, &flushErr)
}

// IsLockError checks if an error or any error in its chain is a LockError.
func IsLockError(err error) bool {
	var lockErr *LockError
	return errors.As(err, &lockErr)
}
