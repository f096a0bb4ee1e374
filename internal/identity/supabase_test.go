package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studieo-app/studieo-api/internal/models"
	"github.com/studieo-app/studieo-api/internal/storage"
)

// stubRepo satisfies the repository interface for the single method the
// provider uses
type stubRepo struct {
	storage.Repository
	users map[string]*models.User
}

func (r *stubRepo) GetUser(ctx context.Context, id string) (*models.User, error) {
	return r.users[id], nil
}

func newTestProvider(handler http.HandlerFunc, users map[string]*models.User) (*SupabaseProvider, *httptest.Server) {
	srv := httptest.NewServer(handler)
	provider := NewSupabaseProvider(SupabaseAuthConfig{
		URL:     srv.URL,
		AnonKey: "anon-key",
	}, &stubRepo{users: users})
	return provider, srv
}

func TestResolveKnownToken(t *testing.T) {
	var gotAuth, gotAPIKey string

	provider, srv := newTestProvider(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAPIKey = r.Header.Get("apikey")
		json.NewEncoder(w).Encode(map[string]string{
			"id":    "stu-1",
			"email": "auth@example.com",
		})
	}, map[string]*models.User{
		"stu-1": {ID: "stu-1", Email: "profile@example.com", Name: "Lena", Role: models.RoleStudent},
	})
	defer srv.Close()

	user, err := provider.Resolve(context.Background(), "tok-abc")
	require.NoError(t, err)
	require.NotNil(t, user)

	assert.Equal(t, "Bearer tok-abc", gotAuth)
	assert.Equal(t, "anon-key", gotAPIKey)
	assert.Equal(t, "stu-1", user.ID)
	// Profile email wins over the auth record
	assert.Equal(t, "profile@example.com", user.Email)
	assert.Equal(t, models.RoleStudent, user.Role)
}

func TestResolveFallsBackToAuthEmail(t *testing.T) {
	provider, srv := newTestProvider(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"id":    "stu-1",
			"email": "auth@example.com",
		})
	}, map[string]*models.User{
		"stu-1": {ID: "stu-1", Role: models.RoleStudent},
	})
	defer srv.Close()

	user, err := provider.Resolve(context.Background(), "tok-abc")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "auth@example.com", user.Email)
}

func TestResolveUnknownToken(t *testing.T) {
	provider, srv := newTestProvider(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}, nil)
	defer srv.Close()

	user, err := provider.Resolve(context.Background(), "tok-bad")
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestResolveNoProfileRow(t *testing.T) {
	provider, srv := newTestProvider(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": "stu-unknown"})
	}, map[string]*models.User{})
	defer srv.Close()

	user, err := provider.Resolve(context.Background(), "tok-abc")
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestResolveServerError(t *testing.T) {
	provider, srv := newTestProvider(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, nil)
	defer srv.Close()

	_, err := provider.Resolve(context.Background(), "tok-abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}
