package models

// Message is a row of a channel's message collection. UUID is the integrity
// hash of Body and doubles as the row key.
type Message struct {
	UUID        string `json:"uuid"`
	MessageType string `json:"message_type"`
	Body        string `json:"body"` // hex encoded
	Processed   bool   `json:"processed"`
}
