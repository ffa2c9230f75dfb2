package chat

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/mfiorillo/go-chathub/internal/database"
	"github.com/mfiorillo/go-chathub/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Invalidate(topic string) {
	m.Called(topic)
}

func newTestChannelService(t *testing.T, db database.Repository, notifier Notifier) *ChannelService {
	s := NewChannelService(testutil.TestLogger(t), db, notifier)
	s.newExternalId = func() (string, error) { return "chan-ext-id", nil }
	return s
}

func TestListChannels(t *testing.T) {
	dbChannels := []database.Channel{
		{
			Id:          1,
			ExternalId:  "ext-general",
			Name:        "general",
			Description: "General discussion",
			CreatedBy:   7,
			CreatedAt:   time.Now().UTC(),
		},
		{
			Id:         2,
			ExternalId: "ext-random",
			Name:       "random",
			CreatedBy:  8,
			CreatedAt:  time.Now().UTC(),
		},
	}

	t.Run("requires authentication", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)

		s := newTestChannelService(t, mockRepo, &mockNotifier{})
		channels, err := s.ListChannels(0)
		assert.ErrorIs(t, err, ErrUnauthenticated, "expected unauthenticated error")
		assert.Nil(t, channels, "expected no channels")
	})

	t.Run("returns all channels", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("ListChannels").Return(dbChannels, nil).Once()

		s := newTestChannelService(t, mockRepo, &mockNotifier{})
		channels, err := s.ListChannels(7)
		assert.NoError(t, err, "expected no error")
		assert.Len(t, channels, 2, "expected two channels")
		assert.Equal(t, "ext-general", channels[0].Id, "expected external id as caller-facing id")
		assert.Equal(t, "general", channels[0].Name, "expected name to match")
		assert.Equal(t, 7, channels[0].CreatedBy, "expected creator to match")
	})

	t.Run("propagates store error", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("ListChannels").Return([]database.Channel(nil), errors.New("db error")).Once()

		s := newTestChannelService(t, mockRepo, &mockNotifier{})
		_, err := s.ListChannels(7)
		assert.Error(t, err, "expected an error")
	})
}

func TestCreateChannel(t *testing.T) {
	newChannel := database.Channel{
		Id:          3,
		ExternalId:  "chan-ext-id",
		Name:        "offtopic",
		Description: "anything goes",
		CreatedBy:   7,
		CreatedAt:   time.Now().UTC(),
	}

	tcases := []struct {
		name        string
		callerId    int
		channelName string
		setupMocks  func(repo *database.MockRepository, notifier *mockNotifier)
		expectedErr error
	}{
		{
			name:        "requires authentication",
			callerId:    0,
			channelName: "offtopic",
			expectedErr: ErrUnauthenticated,
		},
		{
			name:        "rejects empty name",
			callerId:    7,
			channelName: "",
			expectedErr: ErrInvalidArgument,
		},
		{
			name:        "rejects whitespace name",
			callerId:    7,
			channelName: "   \t ",
			expectedErr: ErrInvalidArgument,
		},
		{
			name:        "rejects existing name",
			callerId:    7,
			channelName: "offtopic",
			setupMocks: func(repo *database.MockRepository, notifier *mockNotifier) {
				repo.On("GetChannelByName", "offtopic").Return(newChannel, nil).Once()
			},
			expectedErr: ErrAlreadyExists,
		},
		{
			name:        "loses create race",
			callerId:    7,
			channelName: "offtopic",
			setupMocks: func(repo *database.MockRepository, notifier *mockNotifier) {
				repo.On("GetChannelByName", "offtopic").Return(database.Channel{}, sql.ErrNoRows).Once()
				repo.On("CreateChannel", mock.Anything).Return(database.Channel{}, database.ErrDuplicate).Once()
			},
			expectedErr: ErrAlreadyExists,
		},
		{
			name:        "creates channel and invalidates",
			callerId:    7,
			channelName: "  offtopic  ",
			setupMocks: func(repo *database.MockRepository, notifier *mockNotifier) {
				repo.On("GetChannelByName", "offtopic").Return(database.Channel{}, sql.ErrNoRows).Once()
				repo.On("CreateChannel", database.CreateChannelParams{
					Name:        "offtopic",
					Description: "anything goes",
					ExternalId:  "chan-ext-id",
					CreatedBy:   7,
				}).Return(newChannel, nil).Once()
				notifier.On("Invalidate", TopicChannels).Once()
			},
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockRepository{}
			defer mockRepo.AssertExpectations(t)
			notifier := &mockNotifier{}
			defer notifier.AssertExpectations(t)

			if tc.setupMocks != nil {
				tc.setupMocks(mockRepo, notifier)
			}

			s := newTestChannelService(t, mockRepo, notifier)
			ch, err := s.CreateChannel(tc.callerId, tc.channelName, "anything goes")

			if tc.expectedErr != nil {
				assert.ErrorIs(t, err, tc.expectedErr, "expected error to match")
				return
			}

			assert.NoError(t, err, "expected no error")
			assert.Equal(t, newChannel.ExternalId, ch.Id, "expected channel id to match")
			assert.Equal(t, newChannel.Name, ch.Name, "expected channel name to match")
		})
	}
}

func TestDefaultChannel(t *testing.T) {
	general := database.Channel{
		Id:          1,
		ExternalId:  "ext-general",
		Name:        DefaultChannelName,
		Description: "General discussion",
		CreatedBy:   7,
		CreatedAt:   time.Now().UTC(),
	}

	t.Run("requires authentication", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)

		s := newTestChannelService(t, mockRepo, &mockNotifier{})
		_, err := s.DefaultChannel(0)
		assert.ErrorIs(t, err, ErrUnauthenticated, "expected unauthenticated error")
	})

	t.Run("creates the default channel once", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)
		notifier := &mockNotifier{}
		defer notifier.AssertExpectations(t)

		// the first call wins the insert, later calls observe the winner
		mockRepo.On("EnsureChannel", mock.MatchedBy(func(params database.CreateChannelParams) bool {
			return params.Name == DefaultChannelName && params.CreatedBy == 7
		})).Return(general, true, nil).Once()
		mockRepo.On("EnsureChannel", mock.Anything).Return(general, false, nil).Times(2)
		notifier.On("Invalidate", TopicChannels).Once()

		s := newTestChannelService(t, mockRepo, notifier)
		for i := 0; i < 3; i++ {
			ch, err := s.DefaultChannel(7)
			assert.NoError(t, err, "expected no error on call %d", i)
			assert.Equal(t, DefaultChannelName, ch.Name, "expected the general channel")
			assert.Equal(t, general.ExternalId, ch.Id, "expected the same channel on every call")
		}
	})

	t.Run("propagates store error", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("EnsureChannel", mock.Anything).Return(database.Channel{}, false, errors.New("db error")).Once()

		s := newTestChannelService(t, mockRepo, &mockNotifier{})
		_, err := s.DefaultChannel(7)
		assert.Error(t, err, "expected an error")
	})
}
