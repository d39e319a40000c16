package main

import (
	"fmt"
	"io"
	"time"

	"github.com/nerrad567/lanwake/internal/api"
	"github.com/nerrad567/lanwake/internal/infrastructure/config"
)

// printToken mints an API token for subject using the configured secret
// and writes it to w.
func printToken(w io.Writer, subject string, ttl time.Duration) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Security.JWT.Secret == "" {
		return fmt.Errorf("security.jwt.secret is not set; the API accepts requests without a token")
	}

	token, err := api.IssueToken(cfg.Security.JWT.Secret, subject, ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, token)
	return err
}
