package types

// Version is the mavbridge release version, reported by the version command
// and in webhook User-Agent headers.
const Version = "0.3.0"

// SchemaVersion versions the shape of recorded telemetry and published
// vehicle events. It changes only when a consumer-visible field changes.
const SchemaVersion = "1"
