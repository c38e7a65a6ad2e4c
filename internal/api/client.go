// Package api is a small REST client for the endpoints the send and RSVP
// pipelines call: the SRP modulus and the calendar event key packet.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-resty/resty/v2"
	"github.com/shineum/sealpost/internal/config"
)

// CodeOK is the API body code of a successful call.
const CodeOK = 1000

// Client issues authenticated API requests.
type Client struct {
	rc *resty.Client
}

// New creates a client from the API configuration.
func New(cfg config.APIConfig) *Client {
	rc := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetLogger(slogLogger{}).
		SetHeader("Accept", "application/vnd.protonmail.v1+json")

	if cfg.AppVersion != "" {
		rc.SetHeader("x-pm-appversion", cfg.AppVersion)
	}

	if cfg.UID != "" {
		rc.SetHeader("x-pm-uid", cfg.UID)
	}

	if cfg.AccessToken != "" {
		rc.SetAuthToken(cfg.AccessToken)
	}

	return NewWithClient(rc)
}

// NewWithClient wraps an existing resty client. Used in tests.
func NewWithClient(rc *resty.Client) *Client {
	return &Client{rc: rc}
}

type coder interface {
	code() int
}

// envelope is embedded in every response body.
type envelope struct {
	Code int
}

func (e envelope) code() int { return e.Code }

// do runs one request and maps every failure onto *RequestError.
func (c *Client) do(ctx context.Context, op string, res coder, fn func(r *resty.Request) (*resty.Response, error)) error {
	apiErr := &APIError{}

	r := c.rc.R().SetContext(ctx).SetError(apiErr)
	if res != nil {
		r.SetResult(res)
	}

	resp, err := fn(r)
	if err != nil {
		return &RequestError{Op: op, Err: err}
	}

	if resp.IsError() {
		reqErr := &RequestError{Op: op, StatusCode: resp.StatusCode()}
		if apiErr.Code != 0 {
			reqErr.Err = apiErr
		} else {
			reqErr.Err = errors.New(resp.Status())
		}
		return reqErr
	}

	if res != nil && res.code() != CodeOK {
		return &RequestError{
			Op:         op,
			StatusCode: resp.StatusCode(),
			Err:        &APIError{Code: res.code(), Message: "unexpected response code"},
		}
	}

	slog.Debug("api request completed", "op", op, "status", resp.StatusCode())

	return nil
}

// APIError is the error body returned by the API.
type APIError struct {
	Code    int
	Message string `json:"Error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Code, e.Message)
}

// RequestError is a failure of the transport or of the remote side. Crypto
// failures never carry this type.
type RequestError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Temporary reports whether retrying the same request may succeed.
func (e *RequestError) Temporary() bool {
	switch {
	case e.StatusCode == 0:
		return true
	case e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= 500:
		return true
	default:
		return false
	}
}

// IsNetworkError reports whether err came from a remote call.
func IsNetworkError(err error) bool {
	var reqErr *RequestError
	return errors.As(err, &reqErr)
}

// slogLogger adapts slog to resty's logger interface.
type slogLogger struct{}

func (slogLogger) Errorf(format string, v ...interface{}) {
	slog.Error(fmt.Sprintf(format, v...), "component", "api")
}

func (slogLogger) Warnf(format string, v ...interface{}) {
	slog.Warn(fmt.Sprintf(format, v...), "component", "api")
}

func (slogLogger) Debugf(format string, v ...interface{}) {
	slog.Debug(fmt.Sprintf(format, v...), "component", "api")
}
