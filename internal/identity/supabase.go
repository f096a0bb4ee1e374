package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/studieo-app/studieo-api/internal/models"
	"github.com/studieo-app/studieo-api/internal/storage"
)

// SupabaseProvider resolves tokens against the GoTrue auth API and joins
// the profile row for role and company affiliation
type SupabaseProvider struct {
	baseURL    string
	anonKey    string
	repo       storage.Repository
	httpClient *http.Client
}

// SupabaseAuthConfig holds auth provider configuration
type SupabaseAuthConfig struct {
	URL     string
	AnonKey string
	Timeout time.Duration
}

// NewSupabaseProvider creates a new GoTrue-backed identity provider
func NewSupabaseProvider(cfg SupabaseAuthConfig, repo storage.Repository) *SupabaseProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &SupabaseProvider{
		baseURL:    cfg.URL + "/auth/v1",
		anonKey:    cfg.AnonKey,
		repo:       repo,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Resolve validates the access token with GoTrue, then loads the profile
// row for role and company affiliation
func (p *SupabaseProvider) Resolve(ctx context.Context, token string) (*models.User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/user", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("apikey", p.anonKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, nil // unknown or expired token
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read auth response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("auth error (HTTP %d): %s", resp.StatusCode, string(body))
	}

	var authUser struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	if err := json.Unmarshal(body, &authUser); err != nil {
		return nil, fmt.Errorf("failed to unmarshal auth response: %w", err)
	}

	if authUser.ID == "" {
		return nil, nil
	}

	// Role and company come from the profile row, not the auth record
	user, err := p.repo.GetUser(ctx, authUser.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user profile: %w", err)
	}

	if user == nil {
		return nil, nil
	}

	if user.Email == "" {
		user.Email = authUser.Email
	}

	return user, nil
}
