// Package services provides HTTP clients for the collaborator services that generate
// scripts, voices, images and avatar videos.
//
// Every collaborator speaks JSON over HTTP. Requests are validated at the boundary and
// any non-success reply is reported as ErrService so callers can attach it to a slot.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// API paths shared by all collaborators.
const (
	apiHealth = "/health"
)

// HTTP headers.
const (
	headerContentType   = "Content-Type"
	headerAccept        = "Accept"
	headerAuthorization = "Authorization"
	contentTypeJSON     = "application/json"
	bearerPrefix        = "Bearer "
)

// Error messages.
const (
	errFmtServiceErrorWithCode = "%w: %s returned %s: %s (code: %s)"
	errFmtServiceNonOKStatus   = "%w: %s returned %s: %s"
	maxErrorBodyBytes          = 4096
)

var (
	// ErrService indicates a non-success or unusable reply from a collaborator.
	ErrService = errors.New("collaborator service error")
	// ErrInvalidRequest indicates that a request failed validation before it was sent.
	ErrInvalidRequest = errors.New("invalid request")
)

var validate = validator.New()

// ErrorResponse is the structured error body collaborators may return.
type ErrorResponse struct {
	Error     string `json:"error"`
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code,omitempty"`
}

// Client is the JSON transport shared by the collaborator clients.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewClient creates a client for the collaborator at baseURL. The timeout applies to
// every request; apiKey, when set, is sent as a bearer token.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
	}
}

// BaseURL returns the collaborator's base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// HealthCheck verifies that the collaborator is running.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiHealth, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed for service at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health check failed with status: %s", ErrService, resp.Status)
	}

	return nil
}

// postJSON validates payload, posts it to path and decodes the reply into target.
func (c *Client) postJSON(ctx context.Context, path string, payload, target any) error {
	validationErr := validateRequest(payload)
	if validationErr != nil {
		return validationErr
	}

	requestBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + path

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(requestBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, contentTypeJSON)

	if c.apiKey != "" {
		httpReq.Header.Set(headerAuthorization, bearerPrefix+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return parseErrorResponse(url, resp)
	}

	err = json.NewDecoder(resp.Body).Decode(target)
	if err != nil {
		return fmt.Errorf("%w: failed to decode reply from %s: %w", ErrService, url, err)
	}

	return nil
}

// parseErrorResponse decodes a structured JSON error, falling back to the raw body.
func parseErrorResponse(url string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

	var errorResp ErrorResponse

	err := json.Unmarshal(body, &errorResp)
	if err == nil && (errorResp.Error != "" || errorResp.Detail != "") {
		message := errorResp.Error
		if message == "" {
			message = errorResp.Detail
		}

		return fmt.Errorf(errFmtServiceErrorWithCode, ErrService, url, resp.Status, message, errorResp.ErrorCode)
	}

	return fmt.Errorf(errFmtServiceNonOKStatus, ErrService, url, resp.Status, strings.TrimSpace(string(body)))
}

// validateRequest runs struct validation and flattens the failures into one error.
func validateRequest(payload any) error {
	err := validate.Struct(payload)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	messages := make([]string, 0, len(validationErrs))
	for _, fieldErr := range validationErrs {
		message := fmt.Sprintf("field '%s' failed on the '%s' tag", fieldErr.Field(), fieldErr.Tag())
		if fieldErr.Param() != "" {
			message = fmt.Sprintf("%s (value: %s)", message, fieldErr.Param())
		}

		messages = append(messages, message)
	}

	return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(messages, "; "))
}

// nonBlank returns the trimmed, non-empty entries of values.
func nonBlank(values []string) []string {
	result := make([]string, 0, len(values))

	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
