package database

import (
	"database/sql"
	"errors"
	"time"
)

const channelColumns = "id, external_id, name, description, created_by, created_at"

func (db *PgRepository) CreateAccount(params CreateAccountParams) (Account, error) {
	res := db.conn.QueryRow(
		"INSERT INTO accounts (display_name, email, password_hash, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $4) RETURNING id, display_name, email, created_at, updated_at",
		params.DisplayName,
		params.EmailAddress,
		params.PasswordHash,
		time.Now().UTC(),
	)

	var a Account
	err := res.Scan(
		&a.Id,
		&a.DisplayName,
		&a.EmailAddress,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return Account{}, ErrDuplicate
	}

	return a, err
}

func (db *PgRepository) UpdateAccount(params UpdateAccountParams) (Account, error) {
	res := db.conn.QueryRow(
		"UPDATE accounts SET display_name = $2, password_hash = $3, updated_at = $4 "+
			"WHERE id = $1 RETURNING id, display_name, email, created_at, updated_at",
		params.AccountId,
		params.DisplayName,
		params.PasswordHash,
		time.Now().UTC(),
	)

	var a Account
	err := res.Scan(
		&a.Id,
		&a.DisplayName,
		&a.EmailAddress,
		&a.CreatedAt,
		&a.UpdatedAt,
	)

	return a, err
}

func (db *PgRepository) GetAccountById(accountId int) (Account, error) {
	row := db.conn.QueryRow(
		"SELECT id, display_name, email, created_at, updated_at FROM accounts "+
			"WHERE id = $1 LIMIT 1",
		accountId,
	)

	var a Account
	err := row.Scan(
		&a.Id,
		&a.DisplayName,
		&a.EmailAddress,
		&a.CreatedAt,
		&a.UpdatedAt,
	)

	return a, err
}

func (db *PgRepository) GetAccountByEmail(email string) (Account, error) {
	row := db.conn.QueryRow(
		"SELECT id, display_name, email, password_hash, created_at, updated_at FROM accounts "+
			"WHERE email = $1 LIMIT 1",
		email,
	)

	var a Account
	err := row.Scan(
		&a.Id,
		&a.DisplayName,
		&a.EmailAddress,
		&a.PasswordHash,
		&a.CreatedAt,
		&a.UpdatedAt,
	)

	return a, err
}

func (db *PgRepository) ListChannels() ([]Channel, error) {
	rows, err := db.conn.Query(
		"SELECT " + channelColumns + " FROM channels ORDER BY id",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var channels []Channel
	for rows.Next() {
		var ch Channel
		if err := scanChannel(rows, &ch); err != nil {
			return nil, err
		}

		channels = append(channels, ch)
	}

	return channels, rows.Err()
}

func (db *PgRepository) GetChannelByName(name string) (Channel, error) {
	row := db.conn.QueryRow(
		"SELECT "+channelColumns+" FROM channels WHERE name = $1 LIMIT 1",
		name,
	)

	var ch Channel
	err := scanChannel(row, &ch)

	return ch, err
}

func (db *PgRepository) GetChannelByExternalId(externalId string) (Channel, error) {
	row := db.conn.QueryRow(
		"SELECT "+channelColumns+" FROM channels WHERE external_id = $1 LIMIT 1",
		externalId,
	)

	var ch Channel
	err := scanChannel(row, &ch)

	return ch, err
}

func (db *PgRepository) CreateChannel(params CreateChannelParams) (Channel, error) {
	res := db.conn.QueryRow(
		"INSERT INTO channels (external_id, name, description, created_by, created_at) "+
			"VALUES ($1, $2, $3, $4, $5) RETURNING "+channelColumns,
		params.ExternalId,
		params.Name,
		params.Description,
		params.CreatedBy,
		time.Now().UTC(),
	)

	var ch Channel
	err := scanChannel(res, &ch)
	if isUniqueViolation(err) {
		return Channel{}, ErrDuplicate
	}

	return ch, err
}

// EnsureChannel inserts the channel unless a channel with the same name
// already exists, in which case the existing row is returned. The boolean
// reports whether a new row was written. The unique index on name serializes
// concurrent callers, so exactly one of them creates the row.
func (db *PgRepository) EnsureChannel(params CreateChannelParams) (Channel, bool, error) {
	res := db.conn.QueryRow(
		"INSERT INTO channels (external_id, name, description, created_by, created_at) "+
			"VALUES ($1, $2, $3, $4, $5) ON CONFLICT (name) DO NOTHING RETURNING "+channelColumns,
		params.ExternalId,
		params.Name,
		params.Description,
		params.CreatedBy,
		time.Now().UTC(),
	)

	var ch Channel
	err := scanChannel(res, &ch)
	if err == nil {
		return ch, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Channel{}, false, err
	}

	// lost the race or the row already existed, fetch the winner
	ch, err = db.GetChannelByName(params.Name)

	return ch, false, err
}

func (db *PgRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	res := db.conn.QueryRow(
		"INSERT INTO messages (channel_id, author_id, content, created_at) "+
			"VALUES ($1, $2, $3, $4) RETURNING id, channel_id, author_id, content, created_at",
		params.ChannelId,
		params.AuthorId,
		params.Content,
		time.Now().UTC(),
	)

	var m Message
	err := res.Scan(
		&m.Id,
		&m.ChannelId,
		&m.AuthorId,
		&m.Content,
		&m.CreatedAt,
	)

	return m, err
}

// RecentMessages returns up to limit messages for the channel, newest first.
// Id breaks ties between messages written in the same clock tick.
func (db *PgRepository) RecentMessages(channelId, limit int) ([]Message, error) {
	rows, err := db.conn.Query(
		"SELECT id, channel_id, author_id, content, created_at FROM messages "+
			"WHERE channel_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2",
		channelId,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages = make([]Message, 0, limit)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Id, &m.ChannelId, &m.AuthorId, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}

		messages = append(messages, m)
	}

	return messages, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChannel(row rowScanner, ch *Channel) error {
	return row.Scan(
		&ch.Id,
		&ch.ExternalId,
		&ch.Name,
		&ch.Description,
		&ch.CreatedBy,
		&ch.CreatedAt,
	)
}
