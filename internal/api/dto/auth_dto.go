package dto

import "time"

// TokenRequest exchanges an operator key for a bearer token.
type TokenRequest struct {
	Operator string `json:"operator"`
	Key      string `json:"key"`
}

// TokenResponse carries the issued token.
type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}
