package api

import (
	"database/sql"
	"net/http"
	"testing"
	"time"

	"github.com/mfiorillo/go-chathub/internal/config"
	"github.com/mfiorillo/go-chathub/internal/database"
	"github.com/mfiorillo/go-chathub/internal/live"
	"github.com/mfiorillo/go-chathub/internal/testutil"
	"github.com/mfiorillo/go-chathub/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestNewChatApp(t *testing.T) {
	mux := http.NewServeMux()
	logger := testutil.TestLogger(t)
	hub := &live.Hub{}
	db := &database.MockRepository{}
	cfg := &config.Config{
		ServerAddr:     "localhost:8080",
		DatabaseDSN:    "dsn",
		SigningKey:     []byte("secret"),
		AllowedOrigins: []string{"http://localhost:3000"},
	}

	app := NewChatApp(mux, logger, hub, db, cfg)

	assert.NotNil(t, app, "expected app to be initialized")
	assert.NotNil(t, app.mux, "expected mux to be initialized")
	assert.NotNil(t, app.channels, "expected channel service to be initialized")
	assert.NotNil(t, app.messages, "expected message service to be initialized")
	assert.Equal(t, app.log, logger, "expected logger to be set")
	assert.Equal(t, app.db, db, "expected db to be set")
	assert.Equal(t, app.hub, hub, "expected hub to be set")
	assert.Equal(t, app.signingKey, cfg.SigningKey, "expected signing key to be set")
	assert.Equal(t, app.allowedOrigins, cfg.AllowedOrigins, "expected allowed origins to be set")
	assert.Equal(t, app.mux.Addr, cfg.ServerAddr, "expected server address to match config")
}

func TestQuery(t *testing.T) {
	channel := database.Channel{
		Id:         1,
		ExternalId: "ext-general",
		Name:       "general",
		CreatedBy:  1,
		CreatedAt:  time.Now().UTC(),
	}

	t.Run("channels topic", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("ListChannels").Return([]database.Channel{channel}, nil).Once()

		app := NewChatApp(http.NewServeMux(), testutil.TestLogger(t), &live.Hub{}, mockRepo, &config.Config{})

		run, err := app.Query("channels", 1)
		assert.NoError(t, err, "expected channels topic to resolve")

		result, err := run()
		assert.NoError(t, err, "expected query to succeed")
		channels, ok := result.([]types.Channel)
		assert.True(t, ok, "expected a channel list result")
		assert.Len(t, channels, 1)
		assert.Equal(t, channel.ExternalId, channels[0].Id, "expected the external id to be exposed")
	})

	t.Run("messages topic", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)
		// once while resolving the topic, once per run
		mockRepo.On("GetChannelByExternalId", channel.ExternalId).Return(channel, nil).Twice()
		mockRepo.On("RecentMessages", channel.Id, 50).Return([]database.Message{}, nil).Twice()

		app := NewChatApp(http.NewServeMux(), testutil.TestLogger(t), &live.Hub{}, mockRepo, &config.Config{})

		run, err := app.Query("messages/"+channel.ExternalId, 1)
		assert.NoError(t, err, "expected messages topic to resolve")

		result, err := run()
		assert.NoError(t, err, "expected query to succeed")
		messages, ok := result.([]types.Message)
		assert.True(t, ok, "expected a message list result")
		assert.Empty(t, messages, "expected no messages")
	})

	t.Run("messages topic for unknown channel", func(t *testing.T) {
		mockRepo := &database.MockRepository{}
		defer mockRepo.AssertExpectations(t)
		mockRepo.On("GetChannelByExternalId", "missing").Return(database.Channel{}, sql.ErrNoRows).Once()

		app := NewChatApp(http.NewServeMux(), testutil.TestLogger(t), &live.Hub{}, mockRepo, &config.Config{})

		_, err := app.Query("messages/missing", 1)
		assert.Error(t, err, "expected an unknown channel to fail topic resolution")
	})

	t.Run("unknown topic", func(t *testing.T) {
		app := NewChatApp(http.NewServeMux(), testutil.TestLogger(t), &live.Hub{}, &database.MockRepository{}, &config.Config{})

		_, err := app.Query("bogus", 1)
		assert.Error(t, err, "expected an unknown topic to fail")
	})
}
