package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// SupabaseStore implements Store against the Supabase Storage HTTP API
type SupabaseStore struct {
	baseURL    string
	serviceKey string
	bucket     string
	httpClient *http.Client
}

// SupabaseConfig holds Supabase Storage configuration
type SupabaseConfig struct {
	URL        string
	ServiceKey string
	Bucket     string
	Timeout    time.Duration
}

// NewSupabaseStore creates a new Supabase Storage client
func NewSupabaseStore(cfg SupabaseConfig) *SupabaseStore {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &SupabaseStore{
		baseURL:    cfg.URL + "/storage/v1",
		serviceKey: cfg.ServiceKey,
		bucket:     cfg.Bucket,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Upload stores an object at the given path within the bucket
func (s *SupabaseStore) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	urlStr := fmt.Sprintf("%s/object/%s/%s", s.baseURL, s.bucket, url.PathEscape(path))

	respBody, statusCode, err := s.doRequest(ctx, http.MethodPost, urlStr, data, map[string]string{
		"Content-Type": contentType,
		"x-upsert":     "true",
	})
	if err != nil {
		return fmt.Errorf("failed to upload object: %w", err)
	}

	if statusCode >= 400 {
		return parseError(respBody, statusCode)
	}

	return nil
}

// Remove deletes the given objects from the bucket
func (s *SupabaseStore) Remove(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}

	body, err := json.Marshal(map[string]interface{}{
		"prefixes": paths,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal remove request: %w", err)
	}

	urlStr := fmt.Sprintf("%s/object/%s", s.baseURL, s.bucket)

	respBody, statusCode, err := s.doRequest(ctx, http.MethodDelete, urlStr, body, map[string]string{
		"Content-Type": "application/json",
	})
	if err != nil {
		return fmt.Errorf("failed to remove objects: %w", err)
	}

	if statusCode >= 400 {
		return parseError(respBody, statusCode)
	}

	return nil
}

// SignedURL creates a short-lived signed link to an object
func (s *SupabaseStore) SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	body, err := json.Marshal(map[string]interface{}{
		"expiresIn": int(ttl.Seconds()),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal sign request: %w", err)
	}

	urlStr := fmt.Sprintf("%s/object/sign/%s/%s", s.baseURL, s.bucket, url.PathEscape(path))

	respBody, statusCode, err := s.doRequest(ctx, http.MethodPost, urlStr, body, map[string]string{
		"Content-Type": "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign object url: %w", err)
	}

	if statusCode >= 400 {
		return "", parseError(respBody, statusCode)
	}

	var result struct {
		SignedURL string `json:"signedURL"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to unmarshal sign response: %w", err)
	}

	return s.baseURL + result.SignedURL, nil
}

// doRequest performs an authenticated HTTP request against the storage API
func (s *SupabaseStore) doRequest(ctx context.Context, method, urlStr string, body []byte, headers map[string]string) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, urlStr, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("apikey", s.serviceKey)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response: %w", err)
	}

	return respBody, resp.StatusCode, nil
}

// parseError extracts an error message from a storage API response
func parseError(body []byte, statusCode int) error {
	var apiErr struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}

	if err := json.Unmarshal(body, &apiErr); err == nil {
		if apiErr.Message != "" {
			return fmt.Errorf("storage error (HTTP %d): %s", statusCode, apiErr.Message)
		}
		if apiErr.Error != "" {
			return fmt.Errorf("storage error (HTTP %d): %s", statusCode, apiErr.Error)
		}
	}

	return fmt.Errorf("storage error (HTTP %d)", statusCode)
}
