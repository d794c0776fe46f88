package models

// Channel is a named message queue with its membership list.
type Channel struct {
	Name    string `json:"name"`
	Pending int    `json:"pending"` // unprocessed messages, capped by the caller
}
