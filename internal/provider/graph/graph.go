package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/shineum/sealpost/internal/email"
)

// Config holds the configuration for creating a Provider.
type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	Sender       string
}

// maxRetries is the maximum number of retry attempts for transient failures.
const maxRetries = 3

// baseRetryDelay is the initial delay for exponential backoff.
const baseRetryDelay = 1 * time.Second

// Provider sends emails via the Microsoft Graph sendMail endpoint using
// OAuth2 client credentials.
type Provider struct {
	sender   string
	graphURL string
	rc       *resty.Client
	token    *tokenCache
}

// New creates a new Provider with the given configuration.
func New(cfg Config) *Provider {
	tokenURL := fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", cfg.TenantID)
	graphURL := fmt.Sprintf("https://graph.microsoft.com/v1.0/users/%s/sendMail", cfg.Sender)

	return newWithOverrides(cfg, graphURL, tokenURL, &http.Client{Timeout: 30 * time.Second})
}

// newWithOverrides creates a Provider with custom URLs and HTTP client.
func newWithOverrides(cfg Config, graphURL, tokenURL string, client *http.Client) *Provider {
	rc := resty.NewWithClient(client)

	return &Provider{
		sender:   cfg.Sender,
		graphURL: graphURL,
		rc:       rc,
		token:    newTokenCache(tokenURL, cfg.ClientID, cfg.ClientSecret, rc),
	}
}

// Send delivers msg. Transient failures are retried with exponential
// backoff, HTTP 429 honors Retry-After and a single HTTP 401 triggers a
// token refresh.
func (g *Provider) Send(ctx context.Context, msg *email.Email) error {
	reqBody := buildSendMailRequest(msg)

	var lastErr error
	tokenRefreshed := false

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			slog.Debug("retrying Graph API request", "attempt", attempt, "max_retries", maxRetries)
		}

		err := g.doSendRequest(ctx, reqBody)
		if err == nil {
			slog.Info("sent email via Graph API", "message_id", msg.MessageID, "sender", g.sender)
			return nil
		}

		lastErr = err

		var graphErr *sendError
		if !errors.As(err, &graphErr) {
			return err
		}

		switch {
		case graphErr.permanent:
			return graphErr
		case graphErr.statusCode == http.StatusUnauthorized && !tokenRefreshed:
			slog.Info("refreshing Graph API token after 401")
			if _, refreshErr := g.token.ForceRefresh(); refreshErr != nil {
				return fmt.Errorf("token refresh failed: %w", refreshErr)
			}
			tokenRefreshed = true
		case graphErr.statusCode == http.StatusTooManyRequests:
			delay := retryAfterDelay(graphErr.retryAfter, attempt)
			slog.Info("rate limited by Graph API", "retry_after", delay)
			if err := sleepWithContext(ctx, delay); err != nil {
				return fmt.Errorf("context cancelled during retry wait: %w", err)
			}
		case graphErr.transient:
			delay := backoffDelay(attempt)
			slog.Info("transient Graph API error, retrying", "status", graphErr.statusCode, "delay", delay)
			if err := sleepWithContext(ctx, delay); err != nil {
				return fmt.Errorf("context cancelled during retry wait: %w", err)
			}
		default:
			return graphErr
		}
	}

	return fmt.Errorf("Graph API request failed after %d retries: %w", maxRetries, lastErr)
}

// Name returns the provider name.
func (g *Provider) Name() string {
	return "msgraph"
}

// doSendRequest performs a single sendMail call.
func (g *Provider) doSendRequest(ctx context.Context, body *sendMailRequest) error {
	token, err := g.token.Token()
	if err != nil {
		return fmt.Errorf("failed to get access token: %w", err)
	}

	resp, err := g.rc.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(g.graphURL)
	if err != nil {
		return &sendError{message: fmt.Sprintf("HTTP request failed: %v", err), transient: true}
	}

	if resp.StatusCode() == http.StatusAccepted || resp.StatusCode() == http.StatusOK {
		return nil
	}

	retryAfter := resp.Header().Get("Retry-After")

	var errResp graphErrorResponse
	if err := json.Unmarshal(resp.Body(), &errResp); err == nil && errResp.Error.Message != "" {
		return classifyError(resp.StatusCode(), errResp.Error.Message, retryAfter)
	}

	return classifyError(resp.StatusCode(), resp.String(), retryAfter)
}

// sendError is a failed sendMail call, classified for the retry loop.
type sendError struct {
	message    string
	statusCode int
	permanent  bool
	transient  bool
	retryAfter string
}

func (e *sendError) Error() string {
	return fmt.Sprintf("Graph API error (HTTP %d): %s", e.statusCode, e.message)
}

func classifyError(statusCode int, message, retryAfter string) *sendError {
	err := &sendError{
		message:    message,
		statusCode: statusCode,
		retryAfter: retryAfter,
	}

	switch {
	case statusCode == http.StatusBadRequest || statusCode == http.StatusForbidden:
		err.permanent = true
	case statusCode == http.StatusUnauthorized:
		err.transient = true
	case statusCode == http.StatusTooManyRequests:
		err.transient = true
	case statusCode >= 500:
		err.transient = true
	default:
		err.permanent = true
	}

	return err
}

// retryAfterDelay uses the Retry-After seconds when present, falling back
// to exponential backoff.
func retryAfterDelay(retryAfter string, attempt int) time.Duration {
	if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	return backoffDelay(attempt)
}

// backoffDelay returns 1s, 2s, 4s for attempts 0, 1, 2.
func backoffDelay(attempt int) time.Duration {
	return baseRetryDelay << attempt
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
