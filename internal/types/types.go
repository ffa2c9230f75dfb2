package types

import (
	"time"
)

type User struct {
	Id           int       `json:"id"`
	DisplayName  string    `json:"display_name"`
	EmailAddress string    `json:"email_address,omitempty"`
	Password     string    `json:"-"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	UpdatedAt    time.Time `json:"updated_at,omitempty"`
}

type Channel struct {
	Id          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedBy   int       `json:"created_by"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

// Message is the caller-facing message shape. AuthorName is resolved
// from the author's account on every read and is never persisted.
type Message struct {
	Id         int       `json:"id"`
	ChannelId  string    `json:"channel_id"`
	AuthorId   int       `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}
