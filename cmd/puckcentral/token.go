package main

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/nerrad567/puck-central/internal/auth"
	"github.com/nerrad567/puck-central/internal/infrastructure/config"
)

// runToken implements "puckcentral token": it signs an API bearer token
// with the configured secret and prints it to out.
func runToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(out)
	subject := fs.String("subject", "", "who the token is for (required)")
	scope := fs.String("scope", string(auth.ScopeRead), "read or control")
	ttl := fs.Duration("ttl", 30*24*time.Hour, "token lifetime, 0 for no expiry")
	if err := fs.Parse(args); err != nil {
		return err
	}

	sc, err := auth.ParseScope(*scope)
	if err != nil {
		return err
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.API.Auth.JWTSecret == "" {
		return fmt.Errorf("api.auth.jwt_secret is not set; API authentication is disabled")
	}

	token, err := auth.Issue(cfg.API.Auth.JWTSecret, *subject, sc, *ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}
