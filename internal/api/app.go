package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/mfiorillo/go-chathub/internal/chat"
	"github.com/mfiorillo/go-chathub/internal/config"
	"github.com/mfiorillo/go-chathub/internal/database"
	"github.com/mfiorillo/go-chathub/internal/live"
)

// ChatApp owns the HTTP surface: auth, the REST endpoints backed by the
// chat services, and the websocket upgrade that hands connections to the
// hub. It also implements live.QuerySource so the hub can resolve a
// subscription topic to the read it re-executes.
type ChatApp struct {
	log            *log.Logger
	db             database.Repository
	mux            *http.Server
	hub            *live.Hub
	channels       *chat.ChannelService
	messages       *chat.MessageService
	signingKey     []byte
	allowedOrigins []string
}

func NewChatApp(mux *http.ServeMux, logger *log.Logger, hub *live.Hub, db database.Repository, cfg *config.Config) *ChatApp {
	s := &ChatApp{
		log:            logger,
		db:             db,
		hub:            hub,
		channels:       chat.NewChannelService(logger, db, hub),
		messages:       chat.NewMessageService(logger, db, hub),
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("GET /api/auth/session", s.authMiddleware(s.session))
	mux.Handle("GET /api/auth/logout", s.authMiddleware(s.logout))
	mux.Handle("/api/account", s.authMiddleware(s.account))
	mux.Handle("GET /api/channels", s.authMiddleware(s.listChannels))
	mux.Handle("POST /api/channels", s.authMiddleware(s.createChannel))
	mux.Handle("POST /api/channels/default", s.authMiddleware(s.defaultChannel))
	mux.Handle("GET /api/messages", s.authMiddleware(s.listMessages))
	mux.Handle("POST /api/messages", s.authMiddleware(s.sendMessage))
	mux.Handle("GET /ws", s.authMiddleware(s.serveWs))
	mux.HandleFunc("GET /healthz", s.healthz)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

// Query resolves a subscription topic to the read behind it. The returned
// function runs with the identity of the subscriber that loaded the topic;
// both reads return the same data for every authenticated caller.
func (s *ChatApp) Query(topic string, userId int) (live.QueryFunc, error) {
	if topic == chat.TopicChannels {
		return func() (any, error) {
			return s.channels.ListChannels(userId)
		}, nil
	}

	if channelId, ok := chat.ParseMessagesTopic(topic); ok {
		if _, err := s.messages.ListMessages(userId, channelId); err != nil {
			return nil, fmt.Errorf("resolve topic %q: %w", topic, err)
		}

		return func() (any, error) {
			return s.messages.ListMessages(userId, channelId)
		}, nil
	}

	return nil, fmt.Errorf("unknown topic %q", topic)
}

func (s *ChatApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *ChatApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
