package identity

import (
	"context"

	"github.com/studieo-app/studieo-api/internal/models"
)

// Provider resolves a bearer token to an authenticated principal.
// Returns (nil, nil) for tokens the identity provider does not know.
type Provider interface {
	Resolve(ctx context.Context, token string) (*models.User, error)
}
