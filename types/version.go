package types

// Version is the canonical evq version.
// The CLI, the scan_completed notification and the report share it.
const Version = "0.3.0"

// NotificationVersion is stamped on published notifications.
// It moves in lockstep with Version.
const NotificationVersion = Version
