package globalbus

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// TokenProvider supplies the bearer token for upstream calls. Tokens can
// expire mid-run; Invalidate drops the cached value so the next Token
// call re-acquires.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// OAuthTokenProvider acquires bearer tokens from the integration auth
// endpoint and caches them until invalidated. The acquisition protocol is
// opaque to the rest of the pipeline.
type OAuthTokenProvider struct {
	client   *http.Client
	endpoint string
	username string
	password string

	mu    sync.Mutex
	token string
}

// NewOAuthTokenProvider creates a token provider for the given auth
// endpoint and credentials.
func NewOAuthTokenProvider(endpoint, username, password string) *OAuthTokenProvider {
	return &OAuthTokenProvider{
		client:   &http.Client{Timeout: 30 * time.Second},
		endpoint: endpoint,
		username: username,
		password: password,
	}
}

// Token returns the cached token, acquiring a fresh one if needed.
func (p *OAuthTokenProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" {
		return p.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", p.username)
	form.Set("password", p.password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned %d", resp.StatusCode)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned empty token")
	}

	p.token = payload.AccessToken
	return p.token, nil
}

// Invalidate drops the cached token.
func (p *OAuthTokenProvider) Invalidate() {
	p.mu.Lock()
	p.token = ""
	p.mu.Unlock()
}

// StaticTokenProvider returns a fixed token. Used in tests and for
// pre-issued long-lived tokens.
type StaticTokenProvider string

func (s StaticTokenProvider) Token(ctx context.Context) (string, error) { return string(s), nil }
func (s StaticTokenProvider) Invalidate()                               {}
