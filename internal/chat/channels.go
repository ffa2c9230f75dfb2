package chat

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/mfiorillo/go-chathub/internal/database"
	"github.com/mfiorillo/go-chathub/internal/types"
	"github.com/teris-io/shortid"
)

const (
	// DefaultChannelName is the channel DefaultChannel bootstraps on demand.
	DefaultChannelName        = "general"
	defaultChannelDescription = "General discussion"
)

type ChannelService struct {
	log      *log.Logger
	db       database.Repository
	notifier Notifier
	// newExternalId is overridable in tests
	newExternalId func() (string, error)
}

func NewChannelService(logger *log.Logger, db database.Repository, notifier Notifier) *ChannelService {
	return &ChannelService{
		log:           logger,
		db:            db,
		notifier:      notifier,
		newExternalId: shortid.Generate,
	}
}

// ListChannels returns every channel. The only precondition is an
// authenticated caller.
func (s *ChannelService) ListChannels(callerId int) ([]types.Channel, error) {
	if callerId <= 0 {
		return nil, ErrUnauthenticated
	}

	dbChannels, err := s.db.ListChannels()
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}

	channels := make([]types.Channel, 0, len(dbChannels))
	for _, ch := range dbChannels {
		channels = append(channels, channelFromRecord(ch))
	}

	return channels, nil
}

// CreateChannel creates a channel with a globally unique name. The lookup
// before the insert gives a friendly error on the common path; correctness
// under concurrent creates rests on the store's unique index, whose
// violation also surfaces as ErrAlreadyExists.
func (s *ChannelService) CreateChannel(callerId int, name, description string) (types.Channel, error) {
	if callerId <= 0 {
		return types.Channel{}, ErrUnauthenticated
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return types.Channel{}, fmt.Errorf("%w: channel name cannot be empty", ErrInvalidArgument)
	}

	_, err := s.db.GetChannelByName(name)
	if err == nil {
		return types.Channel{}, fmt.Errorf("%w: channel %q", ErrAlreadyExists, name)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return types.Channel{}, fmt.Errorf("lookup channel name: %w", err)
	}

	externalId, err := s.newExternalId()
	if err != nil {
		return types.Channel{}, fmt.Errorf("generate channel id: %w", err)
	}

	ch, err := s.db.CreateChannel(database.CreateChannelParams{
		Name:        name,
		Description: description,
		ExternalId:  externalId,
		CreatedBy:   callerId,
	})
	if errors.Is(err, database.ErrDuplicate) {
		// lost a create race
		return types.Channel{}, fmt.Errorf("%w: channel %q", ErrAlreadyExists, name)
	}
	if err != nil {
		return types.Channel{}, fmt.Errorf("create channel: %w", err)
	}

	s.notifier.Invalidate(TopicChannels)

	return channelFromRecord(ch), nil
}

// DefaultChannel ensures the default channel exists and returns it.
// Concurrent callers are serialized by the store, so N calls yield exactly
// one channel named DefaultChannelName.
func (s *ChannelService) DefaultChannel(callerId int) (types.Channel, error) {
	if callerId <= 0 {
		return types.Channel{}, ErrUnauthenticated
	}

	externalId, err := s.newExternalId()
	if err != nil {
		return types.Channel{}, fmt.Errorf("generate channel id: %w", err)
	}

	ch, created, err := s.db.EnsureChannel(database.CreateChannelParams{
		Name:        DefaultChannelName,
		Description: defaultChannelDescription,
		ExternalId:  externalId,
		CreatedBy:   callerId,
	})
	if err != nil {
		return types.Channel{}, fmt.Errorf("ensure default channel: %w", err)
	}

	if created {
		s.log.Printf("created default channel %q", ch.ExternalId)
		s.notifier.Invalidate(TopicChannels)
	}

	return channelFromRecord(ch), nil
}

func channelFromRecord(ch database.Channel) types.Channel {
	return types.Channel{
		Id:          ch.ExternalId,
		Name:        ch.Name,
		Description: ch.Description,
		CreatedBy:   ch.CreatedBy,
		CreatedAt:   ch.CreatedAt,
	}
}
