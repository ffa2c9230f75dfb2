package chat

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/mfiorillo/go-chathub/internal/database"
	"github.com/mfiorillo/go-chathub/internal/types"
)

const (
	// messageWindow bounds every read to the most recent messages.
	messageWindow = 50

	unknownAuthorName = "Unknown User"
)

type MessageService struct {
	log      *log.Logger
	db       database.Repository
	notifier Notifier
}

func NewMessageService(logger *log.Logger, db database.Repository, notifier Notifier) *MessageService {
	return &MessageService{
		log:      logger,
		db:       db,
		notifier: notifier,
	}
}

// ListMessages returns the 50 most recent messages of the channel in
// ascending creation order, each with the author's display name resolved
// at read time.
func (s *MessageService) ListMessages(callerId int, channelId string) ([]types.Message, error) {
	if callerId <= 0 {
		return nil, ErrUnauthenticated
	}

	ch, err := s.db.GetChannelByExternalId(channelId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: channel %q", ErrNotFound, channelId)
		}
		return nil, fmt.Errorf("lookup channel: %w", err)
	}

	recent, err := s.db.RecentMessages(ch.Id, messageWindow)
	if err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}

	// recent is newest first, the caller-visible contract is oldest first
	names := make(map[int]string)
	messages := make([]types.Message, 0, len(recent))
	for i := len(recent) - 1; i >= 0; i-- {
		m := recent[i]
		messages = append(messages, types.Message{
			Id:         m.Id,
			ChannelId:  ch.ExternalId,
			AuthorId:   m.AuthorId,
			AuthorName: s.authorName(m.AuthorId, names),
			Content:    m.Content,
			CreatedAt:  m.CreatedAt,
		})
	}

	return messages, nil
}

// Send validates and stores a message in the channel. The channel must
// exist; a message can never reference an unknown channel id.
func (s *MessageService) Send(callerId int, channelId, content string) error {
	if callerId <= 0 {
		return ErrUnauthenticated
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return fmt.Errorf("%w: message cannot be empty", ErrInvalidArgument)
	}

	ch, err := s.db.GetChannelByExternalId(channelId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: channel %q", ErrNotFound, channelId)
		}
		return fmt.Errorf("lookup channel: %w", err)
	}

	if _, err := s.db.CreateMessage(database.CreateMessageParams{
		ChannelId: ch.Id,
		AuthorId:  callerId,
		Content:   content,
	}); err != nil {
		return fmt.Errorf("create message: %w", err)
	}

	s.notifier.Invalidate(TopicChannelMessages(ch.ExternalId))

	return nil
}

// authorName resolves a display name for the account, preferring the
// display name, then the email address, then a fixed placeholder for
// accounts that no longer resolve. The cache holds one lookup per distinct
// author for the duration of a single read.
func (s *MessageService) authorName(accountId int, cache map[int]string) string {
	if name, ok := cache[accountId]; ok {
		return name
	}

	name := unknownAuthorName
	acct, err := s.db.GetAccountById(accountId)
	switch {
	case err == nil:
		if acct.DisplayName != "" {
			name = acct.DisplayName
		} else if acct.EmailAddress != "" {
			name = acct.EmailAddress
		}
	case !errors.Is(err, sql.ErrNoRows):
		// degrade to the placeholder rather than failing the whole read
		s.log.Printf("resolve author %d: %v", accountId, err)
	}

	cache[accountId] = name
	return name
}
