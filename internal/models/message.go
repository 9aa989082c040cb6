package models

import "time"

// Message represents a direct message between two users. The ID is a ULID
// assigned by the store at persistence time, so lexicographic order matches
// creation order.
type Message struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Recipient string    `json:"recipient"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Read      bool      `json:"read"`
}
