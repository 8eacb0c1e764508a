package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-intake/internal/api/dto"
	"github.com/spec-kit/helpdesk-intake/internal/auth"
	apperrors "github.com/spec-kit/helpdesk-intake/pkg/util/errorutil"
)

// AuthHandler issues operator tokens.
type AuthHandler struct {
	tokens  *auth.TokenManager
	keyHash string
}

// NewAuthHandler constructs handler. An empty keyHash disables token issue.
func NewAuthHandler(tokens *auth.TokenManager, keyHash string) *AuthHandler {
	return &AuthHandler{tokens: tokens, keyHash: keyHash}
}

// Token POST /auth/token.
func (h *AuthHandler) Token(c *fiber.Ctx) error {
	if h.keyHash == "" {
		return apperrors.NewValidationError("operator auth is disabled", nil)
	}
	var req dto.TokenRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	req.Operator = strings.TrimSpace(req.Operator)
	if req.Operator == "" || req.Key == "" {
		return apperrors.NewValidationError("operator and key required", nil)
	}
	if err := auth.CompareKey(h.keyHash, req.Key); err != nil {
		return apperrors.NewUnauthorized("invalid credentials")
	}

	token, expiresAt, err := h.tokens.GenerateToken(req.Operator)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	return c.JSON(fiber.Map{"data": dto.TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
	}})
}
