package transport

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

	"github.com/golang-jwt/jwt/v5"

	pkgerrors "github.com/KaripeHS/serenity-sub009/pkg/errors"
)

// refreshSkew renews tokens this long before their expiry so in-flight
// requests never carry a token that dies mid-call.
const refreshSkew = 2 * time.Minute

// tokenResponse is the aggregator's OAuth-style token grant.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// TokenManager fetches and caches bearer tokens from the aggregator's
// credential endpoint. Safe for concurrent use.
type TokenManager struct {
	tokenURL     string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	now          func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewTokenManager builds a manager against the given token endpoint.
func NewTokenManager(tokenURL, clientID, clientSecret string, httpClient *http.Client) *TokenManager {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &TokenManager{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   httpClient,
		now:          time.Now,
	}
}

// Token returns a bearer token valid for at least the refresh skew,
// fetching a new one when the cached token is absent or near expiry.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token != "" && m.now().Before(m.expiresAt.Add(-refreshSkew)) {
		return m.token, nil
	}

	token, expiresAt, err := m.fetch(ctx)
	if err != nil {
		return "", err
	}
	m.token = token
	m.expiresAt = expiresAt
	return token, nil
}

// Invalidate drops the cached token, forcing a refresh on the next call.
// Used after a 401 from the submission endpoint.
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	m.expiresAt = time.Time{}
}

func (m *TokenManager) fetch(ctx context.Context) (string, time.Time, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {m.clientID},
		"client_secret": {m.clientSecret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", time.Time{}, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "build token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", time.Time{}, pkgerrors.Wrap(err, pkgerrors.CodeTransient, "token endpoint unreachable")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", time.Time{}, pkgerrors.Wrap(err, pkgerrors.CodeTransient, "read token response")
	}
	if resp.StatusCode != http.StatusOK {
		code := pkgerrors.CodeAuthentication
		if resp.StatusCode >= 500 {
			code = pkgerrors.CodeTransient
		}
		return "", time.Time{}, pkgerrors.Newf(code, "token endpoint returned %d", resp.StatusCode)
	}

	var grant tokenResponse
	if err := json.Unmarshal(body, &grant); err != nil {
		return "", time.Time{}, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "decode token response")
	}
	if grant.AccessToken == "" {
		return "", time.Time{}, pkgerrors.New(pkgerrors.CodeAuthentication, "token endpoint returned an empty token")
	}

	return grant.AccessToken, m.tokenExpiry(grant), nil
}

// tokenExpiry prefers the exp claim embedded in the JWT over the grant's
// expires_in, since the claim is what the server actually enforces.
func (m *TokenManager) tokenExpiry(grant tokenResponse) time.Time {
	if exp, ok := jwtExpiry(grant.AccessToken); ok {
		return exp
	}
	if grant.ExpiresIn > 0 {
		return m.now().Add(time.Duration(grant.ExpiresIn) * time.Second)
	}
	// No expiry information at all: force a refresh on every call.
	return m.now()
}

// jwtExpiry extracts the exp claim without verifying the signature. The
// signature belongs to the aggregator; locally the claim only drives cache
// lifetime.
func jwtExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// bearer formats the Authorization header value.
func bearer(token string) string {
	return fmt.Sprintf("Bearer %s", token)
}
