// Package types defines the core domain types shared by evq packages.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"errors"
	"fmt"
	"strings"
)

// IdentLength is the fixed byte length of an agent ident.
const IdentLength = 14

// FilenameSeparator separates ident from instance in a composite filename.
// It sits at byte offset IdentLength.
const FilenameSeparator = ':'

// ErrMalformedFilename is the sentinel for composite filenames that do not
// have the "<ident>:<instance>" shape. Use errors.Is for assertions.
var ErrMalformedFilename = errors.New("malformed evidence filename")

// MalformedFilenameError reports a filename (or ident/instance pair) that
// cannot be mapped to an AgentKey.
type MalformedFilenameError struct {
	// Filename is the offending value as seen on the wire or in storage.
	Filename string
	// Reason describes which rule was violated.
	Reason string
}

func (e *MalformedFilenameError) Error() string {
	return fmt.Sprintf("%v %q: %s", ErrMalformedFilename, e.Filename, e.Reason)
}

// Is reports whether target is ErrMalformedFilename.
func (e *MalformedFilenameError) Is(target error) bool {
	return target == ErrMalformedFilename
}

// AgentKey identifies one monitored installation.
type AgentKey struct {
	Ident    string `json:"ident" yaml:"ident" msgpack:"ident"`
	Instance string `json:"instance" yaml:"instance" msgpack:"instance"`
}

// Filename returns the composite "<ident>:<instance>" form without validation.
// Use EncodeFilename on write paths.
func (k AgentKey) Filename() string {
	return k.Ident + string(FilenameSeparator) + k.Instance
}

// String implements fmt.Stringer.
func (k AgentKey) String() string {
	return k.Filename()
}

// Validate checks that the key serializes to a filename ParseFilename accepts.
func (k AgentKey) Validate() error {
	name := k.Filename()
	switch {
	case len(k.Ident) != IdentLength:
		return &MalformedFilenameError{Filename: name, Reason: fmt.Sprintf("ident must be %d bytes, got %d", IdentLength, len(k.Ident))}
	case strings.IndexByte(k.Ident, FilenameSeparator) >= 0:
		return &MalformedFilenameError{Filename: name, Reason: "ident contains separator"}
	case k.Instance == "":
		return &MalformedFilenameError{Filename: name, Reason: "empty instance"}
	case strings.ContainsAny(name, "/\\"):
		return &MalformedFilenameError{Filename: name, Reason: "path separator in filename"}
	}
	return nil
}

// EncodeFilename validates the key and returns its composite filename.
func EncodeFilename(k AgentKey) (string, error) {
	if err := k.Validate(); err != nil {
		return "", err
	}
	return k.Filename(), nil
}

// ParseFilename splits a composite filename into its AgentKey.
// The ident occupies bytes [0, IdentLength), the separator sits at
// IdentLength and the instance is the non-empty remainder.
func ParseFilename(name string) (AgentKey, error) {
	if len(name) < IdentLength+2 {
		return AgentKey{}, &MalformedFilenameError{Filename: name, Reason: "too short"}
	}
	if name[IdentLength] != FilenameSeparator {
		return AgentKey{}, &MalformedFilenameError{
			Filename: name,
			Reason:   fmt.Sprintf("expected %q at offset %d", FilenameSeparator, IdentLength),
		}
	}
	key := AgentKey{Ident: name[:IdentLength], Instance: name[IdentLength+1:]}
	if err := key.Validate(); err != nil {
		return AgentKey{}, err
	}
	return key, nil
}
