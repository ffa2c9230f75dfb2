package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/mfiorillo/go-chathub/internal/api"
	"github.com/mfiorillo/go-chathub/internal/config"
	"github.com/mfiorillo/go-chathub/internal/database"
	"github.com/mfiorillo/go-chathub/internal/live"
	"github.com/mfiorillo/go-chathub/internal/stats"
)

const defaultSigningKey = "nq5EY1cFmEEwG9jWy7qTTgBUZGJvghES4pNQIDYz5tE="

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr           string
	dsn            string
	signingKey     string
	allowedOrigins stringSliceFlag
)

func main() {
	logger := log.New(os.Stderr, "[chathub] ", log.LstdFlags)

	env, err := config.EnvDefaults()
	if err != nil {
		logger.Fatal("env:", err)
	}
	if env.SigningKey == "" {
		env.SigningKey = defaultSigningKey
	}

	flag.StringVar(&addr, "addr", env.ServerAddr, "server address")
	flag.StringVar(&dsn, "dsn", env.DatabaseDSN, "database connection string")
	flag.StringVar(&signingKey, "signing-key", env.SigningKey, "base64 encoded signing key")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	if len(allowedOrigins) == 0 {
		allowedOrigins = env.AllowedOrigins
	}

	cfg, err := config.NewConfig(addr, dsn, signingKey, allowedOrigins)
	if err != nil {
		logger.Fatal("config:", err)
	}

	db, err := database.NewPgRepository(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("db open:", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Fatal("db close:", err)
		}
	}()

	if err := db.Migrate(); err != nil {
		logger.Fatal("migrate:", err)
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewUpdater(mux)

	hub := live.NewHub(logger, statsUpdater)

	app := api.NewChatApp(mux, logger, hub, db, cfg)
	hub.SetSource(app)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go hub.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := app.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("shutting down hub...")
	hub.Shutdown()

	logger.Println("shutdown complete")
}
