package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shineum/sealpost/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return New(config.APIConfig{
		BaseURL:     server.URL,
		AppVersion:  "cli@test",
		UID:         "uid-1",
		AccessToken: "token-1",
		Timeout:     5 * time.Second,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestGetModulus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/core/v4/auth/modulus", r.URL.Path)
		assert.Equal(t, "cli@test", r.Header.Get("x-pm-appversion"))
		assert.Equal(t, "uid-1", r.Header.Get("x-pm-uid"))
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))

		writeJSON(w, http.StatusOK, map[string]any{
			"Code":      1000,
			"Modulus":   "signed-modulus",
			"ModulusID": "mod-1",
		})
	})

	mod, err := client.GetModulus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Modulus{Modulus: "signed-modulus", ModulusID: "mod-1"}, mod)
}

func TestGetModulus_ServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"Code": 5003, "Error": "maintenance"})
	})

	_, err := client.GetModulus(context.Background())
	require.Error(t, err)
	assert.True(t, IsNetworkError(err))

	var reqErr *RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, http.StatusServiceUnavailable, reqErr.StatusCode)
	assert.True(t, reqErr.Temporary())

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 5003, apiErr.Code)
}

func TestGetModulus_UnexpectedCode(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"Code": 2001})
	})

	_, err := client.GetModulus(context.Background())
	require.Error(t, err)
	assert.True(t, IsNetworkError(err))
}

func TestGetModulus_EmptyBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"Code": 1000})
	})

	_, err := client.GetModulus(context.Background())
	require.Error(t, err)
	assert.True(t, IsNetworkError(err))
}

func TestUpdateEventKeyPacket(t *testing.T) {
	var got UpdateEventKeyPacketReq

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/calendar/v1/cal-1/events/ev-1/keypacket", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		writeJSON(w, http.StatusOK, map[string]any{"Code": 1000})
	})

	err := client.UpdateEventKeyPacket(context.Background(), "cal-1", "ev-1", UpdateEventKeyPacketReq{SharedKeyPacket: "packet"})
	require.NoError(t, err)
	assert.Equal(t, "packet", got.SharedKeyPacket)
}

func TestUpdateEventKeyPacket_Forbidden(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusForbidden, map[string]any{"Code": 2011, "Error": "no permission"})
	})

	err := client.UpdateEventKeyPacket(context.Background(), "cal-1", "ev-1", UpdateEventKeyPacketReq{SharedKeyPacket: "packet"})

	var reqErr *RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.False(t, reqErr.Temporary())
}

func TestRequestError_TransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := New(config.APIConfig{BaseURL: url, Timeout: time.Second})

	_, err := client.GetModulus(context.Background())

	var reqErr *RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, 0, reqErr.StatusCode)
	assert.True(t, reqErr.Temporary())
}

func TestIsNetworkError(t *testing.T) {
	assert.False(t, IsNetworkError(errors.New("boom")))
	assert.False(t, IsNetworkError(nil))
	assert.True(t, IsNetworkError(&RequestError{Op: "x", Err: errors.New("y")}))
}
