package types

import "strings"

// ShardID is the opaque identifier of one evidence shard.
// The zero value means "no shard" and is never a valid assignment.
type ShardID string

// IsZero reports whether the id is the absent value.
func (s ShardID) IsZero() bool {
	return s == ""
}

// String implements fmt.Stringer.
func (s ShardID) String() string {
	return string(s)
}

// HostLabel strips an optional ":port" suffix from a shard host address.
// Report rows and per-host connections are keyed by this label.
func HostLabel(host string) string {
	label, _, _ := strings.Cut(host, ":")
	return label
}
