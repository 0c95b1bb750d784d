// Command grant issues an entitlement token for one or more assessments.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gokatarajesh/clinic-assessments/internal/access"
	"github.com/gokatarajesh/clinic-assessments/internal/config"
)

func main() {
	var (
		subject     = flag.String("subject", "", "Subject the token is issued to")
		assessments = flag.String("assessments", "", "Comma-separated assessment ids, or * for staff access")
		ttl         = flag.Duration("ttl", 0, "Token lifetime (defaults to ACCESS_TOKEN_TTL)")
	)
	flag.Parse()

	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

	if os.Getenv("APP_ENV") != "production" {
		if err := godotenv.Load("configs/.env"); err != nil {
			log.Warn().Err(err).Msg("could not load .env file")
		}
	}

	var cfg config.Access
	if err := env.Parse(&cfg); err != nil {
		log.Fatal().Err(err).Msg("failed to parse access config")
	}
	if cfg.Secret == "" {
		log.Fatal().Msg("ACCESS_TOKEN_SECRET is required")
	}
	if *subject == "" {
		log.Fatal().Msg("-subject is required")
	}
	if *ttl > 0 {
		cfg.TTL = *ttl
	}

	ids := splitList(*assessments)
	manager := access.NewManager(access.TokenConfig{
		Secret: []byte(cfg.Secret),
		TTL:    cfg.TTL,
		Issuer: cfg.Issuer,
	})
	token, err := manager.Issue(*subject, ids)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to issue token")
	}

	log.Info().
		Str("subject", *subject).
		Strs("assessments", ids).
		Time("expires_at", time.Now().Add(cfg.TTL)).
		Msg("token issued")
	fmt.Println(token)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
