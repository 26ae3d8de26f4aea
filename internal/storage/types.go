package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": JSON Lines file
//   - "sqlite": SQLite database file
//   - "postgres": PostgreSQL, DSN required
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	DSN         string
	BusyTimeout time.Duration // sqlite only; 0 means default
	Retention   time.Duration // audit entries older than this are pruned; 0 keeps everything
}

// Audit actions.
const (
	ActionIngest   = "ingest"
	ActionRegister = "register"
)

// AuditEntry summarises one ingestion or registration.
type AuditEntry struct {
	At          time.Time `json:"at"`
	RequestID   string    `json:"request_id,omitempty"`
	Action      string    `json:"action"`
	DeviceID    string    `json:"device_id,omitempty"`
	Destination string    `json:"destination,omitempty"`
	Delivered   int       `json:"delivered"`
	Failed      int       `json:"failed"`
	Skipped     int       `json:"skipped"`
	Error       string    `json:"error,omitempty"`
	TookMS      int64     `json:"took_ms"`
}
