package types

// SyncStatus is an agent's synchronization state as recorded by the registry.
type SyncStatus int

// Sync states. Values are stored as integers in the registry.
const (
	SyncIdle       SyncStatus = 0
	SyncInProgress SyncStatus = 1
	SyncTimeouted  SyncStatus = 2
	SyncProcessing SyncStatus = 3
	SyncGhost      SyncStatus = 4
)

// String returns the lowercase state name used in json and yaml output.
func (s SyncStatus) String() string {
	switch s {
	case SyncIdle:
		return "idle"
	case SyncInProgress:
		return "in_progress"
	case SyncTimeouted:
		return "timeouted"
	case SyncProcessing:
		return "processing"
	case SyncGhost:
		return "ghost"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s SyncStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
