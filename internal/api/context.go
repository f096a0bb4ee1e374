package api

import (
	"context"

	"github.com/studieo-app/studieo-api/internal/models"
)

type contextKey string

const principalContextKey contextKey = "principal"

// PrincipalFromContext extracts the authenticated user from context
func PrincipalFromContext(ctx context.Context) *models.User {
	user, ok := ctx.Value(principalContextKey).(*models.User)
	if !ok {
		return nil
	}
	return user
}

// ContextWithPrincipal adds the authenticated user to context
func ContextWithPrincipal(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, principalContextKey, user)
}
