package config

import (
	"encoding/base64"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	ServerAddr     string
	DatabaseDSN    string
	SigningKey     []byte
	AllowedOrigins []string
}

// Env holds environment-sourced defaults for the command line flags.
// Variables are prefixed with CHATHUB_, e.g. CHATHUB_DATABASE_DSN.
type Env struct {
	ServerAddr     string   `envconfig:"ADDR" default:"localhost:8000"`
	DatabaseDSN    string   `envconfig:"DATABASE_DSN" default:"host=localhost user=postgres password=postgres dbname=postgres sslmode=disable"`
	SigningKey     string   `envconfig:"SIGNING_KEY"`
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS"`
}

// EnvDefaults loads a .env file if one is present and resolves the
// environment-backed defaults.
func EnvDefaults() (Env, error) {
	// a missing .env file is not an error
	_ = godotenv.Load()

	var env Env
	if err := envconfig.Process("chathub", &env); err != nil {
		return Env{}, fmt.Errorf("process environment: %w", err)
	}

	return env, nil
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(base64Secret)
}

func NewConfig(serverAddr, databaseDSN, base64Secret string, allowedOrigins []string) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if base64Secret == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}

	signingKey, err := decodeSigningSecret(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	return &Config{
		ServerAddr:     serverAddr,
		DatabaseDSN:    databaseDSN,
		SigningKey:     signingKey,
		AllowedOrigins: allowedOrigins,
	}, nil
}
