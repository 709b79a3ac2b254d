// Package blobstore provides the per-shard-host evidence blob store.
//
// This file defines sentinel errors and error wrappers for classifying
// storage failures. Callers use errors.Is/errors.As for typed assertions
// rather than string matching.
package blobstore

import (
	"errors"
	"fmt"
	"strings"
)

// Operation sentinels. A *StorageError matches exactly one of these via
// errors.Is, selected by its Op.
var (
	// ErrStorageWrite matches failed puts (Op "write").
	ErrStorageWrite = errors.New("storage write failed")

	// ErrStorageRead matches failed reads and listings (Op "read", "list", "init").
	ErrStorageRead = errors.New("storage read failed")

	// ErrStorageDelete matches failed deletes (Op "delete").
	ErrStorageDelete = errors.New("storage delete failed")
)

// Kind sentinels for storage failure classification.
var (
	// ErrPermissionDenied indicates a permission/access failure (EACCES, 403).
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotFound indicates the target path/resource does not exist (ENOENT, 404).
	ErrNotFound = errors.New("not found")

	// ErrDiskFull indicates storage is out of space (ENOSPC).
	ErrDiskFull = errors.New("no space left on device")

	// ErrTimeout indicates an operation timed out.
	ErrTimeout = errors.New("operation timed out")

	// ErrThrottled indicates rate limiting (429, SlowDown).
	ErrThrottled = errors.New("rate limited")

	// ErrAuth indicates authentication failure (no credentials, expired token).
	ErrAuth = errors.New("authentication failed")

	// ErrAccessDenied indicates authorization failure (valid creds but no permission).
	ErrAccessDenied = errors.New("access denied")

	// ErrNetwork indicates a network-level failure (connection refused, DNS).
	ErrNetwork = errors.New("network error")

	// ErrCorrupt indicates a metadata sidecar that could not be decoded.
	ErrCorrupt = errors.New("corrupt metadata")

	// ErrUnclassified is the kind of errors no pattern matched.
	ErrUnclassified = errors.New("storage error")
)

// Storage operations recorded in StorageError.Op.
const (
	OpInit   = "init"
	OpWrite  = "write"
	OpRead   = "read"
	OpList   = "list"
	OpDelete = "delete"
)

// StorageError wraps an underlying error with storage classification.
// It keeps the underlying error in the chain for inspection via errors.As.
type StorageError struct {
	// Kind is the sentinel error for classification (e.g., ErrPermissionDenied).
	Kind error
	// Op is the operation that failed (write, read, list, delete, init).
	Op string
	// Path is the storage path involved, if any.
	Path string
	// Err is the underlying error.
	Err error
}

func (e *StorageError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Path, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As chain traversal.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target kind or operation sentinel.
func (e *StorageError) Is(target error) bool {
	if errors.Is(e.Kind, target) {
		return true
	}
	switch e.Op {
	case OpWrite:
		return target == ErrStorageWrite
	case OpRead, OpList, OpInit:
		return target == ErrStorageRead
	case OpDelete:
		return target == ErrStorageDelete
	}
	return false
}

// NewStorageError creates a classified storage error.
func NewStorageError(kind error, op, path string, err error) *StorageError {
	return &StorageError{
		Kind: kind,
		Op:   op,
		Path: path,
		Err:  err,
	}
}

// wrap classifies err and wraps it for op. Returns nil if err is nil.
// Errors that are already a *StorageError pass through unchanged.
func wrap(err error, op, path string) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return NewStorageError(classifyError(err), op, path, err)
}

// WrapWriteError classifies and wraps a write error. Returns nil if err is nil.
func WrapWriteError(err error, path string) error { return wrap(err, OpWrite, path) }

// WrapReadError classifies and wraps a read error. Returns nil if err is nil.
func WrapReadError(err error, path string) error { return wrap(err, OpRead, path) }

// WrapListError classifies and wraps a list error. Returns nil if err is nil.
func WrapListError(err error, path string) error { return wrap(err, OpList, path) }

// WrapDeleteError classifies and wraps a delete error. Returns nil if err is nil.
func WrapDeleteError(err error, path string) error { return wrap(err, OpDelete, path) }

// WrapInitError classifies and wraps a store initialization error.
func WrapInitError(err error, host string) error { return wrap(err, OpInit, host) }

// classifyError determines the appropriate kind sentinel for err.
// Classification is based on error type and message patterns.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return ErrTimeout
	}

	msg := err.Error()

	switch {
	case containsAny(msg, "permission denied", "EACCES", "access denied"):
		if containsAny(msg, "AccessDenied", "Forbidden", "403") {
			return ErrAccessDenied
		}
		return ErrPermissionDenied

	case containsAny(msg, "no such file", "does not exist", "not found", "ENOENT", "404", "NoSuchKey"):
		return ErrNotFound

	case containsAny(msg, "no space left", "disk full", "ENOSPC", "quota exceeded"):
		return ErrDiskFull

	case containsAny(msg, "timeout", "timed out", "deadline exceeded"):
		return ErrTimeout

	case containsAny(msg, "SlowDown", "rate exceeded", "throttl", "429", "TooManyRequests"):
		return ErrThrottled

	case containsAny(msg, "NoCredentialProviders", "credentials", "InvalidAccessKeyId",
		"SignatureDoesNotMatch", "ExpiredToken", "401", "Unauthorized"):
		return ErrAuth

	case containsAny(msg, "AccessDenied", "Forbidden", "403"):
		return ErrAccessDenied

	case containsAny(msg, "connection refused", "no route to host", "network unreachable",
		"DNS", "dial tcp", "i/o timeout"):
		return ErrNetwork

	default:
		return ErrUnclassified
	}
}

// containsAny reports whether s contains any of substrs, case-insensitively.
func containsAny(s string, substrs ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range substrs {
		if strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}
