package database

import "time"

type Account struct {
	Id           int
	DisplayName  string
	EmailAddress string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Channel struct {
	Id          int
	ExternalId  string
	Name        string
	Description string
	CreatedBy   int
	CreatedAt   time.Time
}

type Message struct {
	Id        int
	ChannelId int
	AuthorId  int
	Content   string
	CreatedAt time.Time
}

type CreateAccountParams struct {
	DisplayName  string
	EmailAddress string
	PasswordHash string
}

type UpdateAccountParams struct {
	AccountId    int
	DisplayName  string
	PasswordHash string
}

type CreateChannelParams struct {
	Name        string
	Description string
	ExternalId  string
	CreatedBy   int
}

type CreateMessageParams struct {
	ChannelId int
	AuthorId  int
	Content   string
}
