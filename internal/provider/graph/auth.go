package graph

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

// tokenExpiryBuffer is subtracted from the token lifetime so a token never
// expires in the middle of a request.
const tokenExpiryBuffer = 5 * time.Minute

// tokenCache holds an OAuth2 client-credentials token and refreshes it
// before it expires. It is safe for concurrent use.
type tokenCache struct {
	mu           sync.Mutex
	accessToken  string
	expiresAt    time.Time
	tokenURL     string
	clientID     string
	clientSecret string
	scope        string
	rc           *resty.Client
}

func newTokenCache(tokenURL, clientID, clientSecret string, rc *resty.Client) *tokenCache {
	return &tokenCache{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		scope:        "https://graph.microsoft.com/.default",
		rc:           rc,
	}
}

// Token returns a valid access token, refreshing it if necessary.
func (tc *tokenCache) Token() (string, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if tc.accessToken != "" && time.Now().Before(tc.expiresAt) {
		return tc.accessToken, nil
	}

	return tc.refresh()
}

// ForceRefresh discards the current token and acquires a new one.
func (tc *tokenCache) ForceRefresh() (string, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	tc.accessToken = ""
	tc.expiresAt = time.Time{}

	return tc.refresh()
}

// refresh must be called with tc.mu held.
func (tc *tokenCache) refresh() (string, error) {
	var res tokenResponse

	resp, err := tc.rc.R().
		SetFormData(map[string]string{
			"grant_type":    "client_credentials",
			"client_id":     tc.clientID,
			"client_secret": tc.clientSecret,
			"scope":         tc.scope,
		}).
		SetResult(&res).
		Post(tc.tokenURL)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}

	if resp.IsError() {
		return "", fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode(), resp.String())
	}

	if res.AccessToken == "" {
		return "", errors.New("token response missing access_token")
	}

	tc.accessToken = res.AccessToken
	tc.expiresAt = time.Now().Add(time.Duration(res.ExpiresIn)*time.Second - tokenExpiryBuffer)

	return tc.accessToken, nil
}
