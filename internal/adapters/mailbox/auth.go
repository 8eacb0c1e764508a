package mailbox

import (
	"context"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/spec-kit/helpdesk-intake/internal/config"
)

var scopes = []string{
	gmail.GmailModifyScope,
	gmail.GmailSendScope,
}

// NewGmailService authenticates with the installed-app credentials and the
// previously granted token stored on disk.
func NewGmailService(ctx context.Context, cfg config.GmailConfig) (*gmail.Service, error) {
	data, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials from %s: %w", cfg.CredentialsFile, err)
	}
	oauthCfg, err := google.ConfigFromJSON(data, scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	token, err := loadToken(cfg.TokenFile)
	if err != nil {
		return nil, err
	}

	client := oauth2.NewClient(ctx, oauthCfg.TokenSource(ctx, token))
	return gmail.NewService(ctx, option.WithHTTPClient(client))
}

func loadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read token from %s: %w", path, err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if token.RefreshToken == "" && token.AccessToken == "" {
		return nil, fmt.Errorf("token file %s holds no credentials", path)
	}
	return &token, nil
}
