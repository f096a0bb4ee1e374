package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/studieo-app/studieo-api/internal/models"
)

// Client is a Go SDK for the studieo API
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new studieo API client
func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// CreateApplicationRequest represents an application creation request
type CreateApplicationRequest struct {
	ProjectID string          `json:"project_id"`
	MemberIDs []string        `json:"member_ids,omitempty"`
	Answers   []models.Answer `json:"answers,omitempty"`
	Document  []byte          `json:"-"`
}

// CreateApplication creates a new application with its design document
func (c *Client) CreateApplication(ctx context.Context, req CreateApplicationRequest) (*models.Application, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if err := mw.WriteField("payload", string(payload)); err != nil {
		return nil, fmt.Errorf("failed to write payload part: %w", err)
	}

	part, err := mw.CreateFormFile("document", "design-doc.pdf")
	if err != nil {
		return nil, fmt.Errorf("failed to create document part: %w", err)
	}
	if _, err := part.Write(req.Document); err != nil {
		return nil, fmt.Errorf("failed to write document part: %w", err)
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize form: %w", err)
	}

	resp, err := c.doRequestWithContentType(ctx, "POST", "/api/v1/applications", &buf, mw.FormDataContentType())
	if err != nil {
		return nil, err
	}

	var result struct {
		Success bool                `json:"success"`
		Data    *models.Application `json:"data"`
		Error   *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if !result.Success {
		return nil, fmt.Errorf("API error: %s - %s", result.Error.Code, result.Error.Message)
	}

	return result.Data, nil
}

// GetApplication retrieves an application by ID
func (c *Client) GetApplication(ctx context.Context, id string) (*models.Application, error) {
	resp, err := c.doRequest(ctx, "GET", fmt.Sprintf("/api/v1/applications/%s", id), nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Success bool                `json:"success"`
		Data    *models.Application `json:"data"`
		Error   *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if !result.Success {
		return nil, fmt.Errorf("API error: %s - %s", result.Error.Code, result.Error.Message)
	}

	return result.Data, nil
}

// SubmitApplication submits a pending application for review
func (c *Client) SubmitApplication(ctx context.Context, id string) (*models.SubmitResult, error) {
	resp, err := c.doRequest(ctx, "POST", fmt.Sprintf("/api/v1/applications/%s/submit", id), nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Success bool                 `json:"success"`
		Data    *models.SubmitResult `json:"data"`
		Error   *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if !result.Success {
		return nil, fmt.Errorf("API error: %s - %s", result.Error.Code, result.Error.Message)
	}

	return result.Data, nil
}

// AcceptApplication accepts a submitted application
func (c *Client) AcceptApplication(ctx context.Context, id string) error {
	return c.doAction(ctx, fmt.Sprintf("/api/v1/applications/%s/accept", id))
}

// RejectApplication rejects a submitted application
func (c *Client) RejectApplication(ctx context.Context, id string) error {
	return c.doAction(ctx, fmt.Sprintf("/api/v1/applications/%s/reject", id))
}

// WithdrawApplication withdraws a pending application
func (c *Client) WithdrawApplication(ctx context.Context, id string) error {
	return c.doAction(ctx, fmt.Sprintf("/api/v1/applications/%s/withdraw", id))
}

// DeleteApplication removes an application (company only)
func (c *Client) DeleteApplication(ctx context.Context, id string) error {
	resp, err := c.doRequest(ctx, "DELETE", fmt.Sprintf("/api/v1/applications/%s", id), nil)
	if err != nil {
		return err
	}

	return decodeActionResponse(resp)
}

// RespondToInvite answers a team invitation. The result is non-nil when
// the response completed the team and the application was submitted.
func (c *Client) RespondToInvite(ctx context.Context, id string, accept bool) (*models.SubmitResult, error) {
	body, err := json.Marshal(map[string]bool{"accept": accept})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.doRequest(ctx, "POST", fmt.Sprintf("/api/v1/applications/%s/invite-response", id), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var result struct {
		Success bool                 `json:"success"`
		Data    *models.SubmitResult `json:"data"`
		Error   *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if !result.Success {
		return nil, fmt.Errorf("API error: %s - %s", result.Error.Code, result.Error.Message)
	}

	return result.Data, nil
}

// DesignDocURL retrieves a short-lived signed link to the design document
func (c *Client) DesignDocURL(ctx context.Context, id string) (string, error) {
	resp, err := c.doRequest(ctx, "GET", fmt.Sprintf("/api/v1/applications/%s/design-doc", id), nil)
	if err != nil {
		return "", err
	}

	var result struct {
		Success bool `json:"success"`
		Data    struct {
			URL string `json:"url"`
		} `json:"data"`
		Error *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(resp, &result); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if !result.Success {
		return "", fmt.Errorf("API error: %s - %s", result.Error.Code, result.Error.Message)
	}

	return result.Data.URL, nil
}

// CheckLimits retrieves the caller's eligibility snapshot
func (c *Client) CheckLimits(ctx context.Context) (*models.StudentLimits, error) {
	resp, err := c.doRequest(ctx, "GET", "/api/v1/limits", nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Success bool                  `json:"success"`
		Data    *models.StudentLimits `json:"data"`
		Error   *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if !result.Success {
		return nil, fmt.Errorf("API error: %s - %s", result.Error.Code, result.Error.Message)
	}

	return result.Data, nil
}

// Health checks if the service is healthy
func (c *Client) Health(ctx context.Context) error {
	_, err := c.doRequest(ctx, "GET", "/health", nil)
	return err
}

// doAction performs a bodyless POST that returns only a status message
func (c *Client) doAction(ctx context.Context, path string) error {
	resp, err := c.doRequest(ctx, "POST", path, nil)
	if err != nil {
		return err
	}

	return decodeActionResponse(resp)
}

func decodeActionResponse(resp []byte) error {
	var result struct {
		Success bool `json:"success"`
		Error   *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}

	if err := json.Unmarshal(resp, &result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if !result.Success {
		return fmt.Errorf("API error: %s - %s", result.Error.Code, result.Error.Message)
	}

	return nil
}

// doRequest performs an HTTP request with a JSON body
func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	return c.doRequestWithContentType(ctx, method, path, body, "application/json")
}

func (c *Client) doRequestWithContentType(ctx context.Context, method, path string, body io.Reader, contentType string) ([]byte, error) {
	url := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", contentType)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}
