package models

// Incident records a channel operation that succeeded on only one of the
// two collections and needs manual reconciliation.
type Incident struct {
	ID        string `json:"id"` // ULID
	Channel   string `json:"channel"`
	Operation string `json:"operation"` // "create" or "drop"
	Detail    string `json:"detail"`
	Timestamp int64  `json:"ts"` // Unix ms
}
