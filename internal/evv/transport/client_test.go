package transport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/KaripeHS/serenity-sub009/pkg/errors"
)

type staticTokens struct {
	token       string
	invalidated atomic.Int64
}

func (s *staticTokens) Token(context.Context) (string, error) { return s.token, nil }
func (s *staticTokens) Invalidate()                           { s.invalidated.Add(1) }

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *staticTokens) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	tokens := &staticTokens{token: "test-token"}
	return NewClient(server.URL, tokens), tokens
}

func TestSubmitVisit_ParsesEnvelope(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, pathVisits, r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		json.NewEncoder(w).Encode(Envelope{
			Success:       true,
			TransactionID: "txn-123",
			Warnings:      []ResponseIssue{{Code: "W1", Message: "late submission"}},
		})
	})

	result, err := client.SubmitVisit(context.Background(), map[string]string{"k": "v"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.HTTPStatus)
	assert.True(t, result.Envelope.Success)
	assert.Equal(t, "txn-123", result.Envelope.TransactionID)
	require.Len(t, result.Envelope.Warnings, 1)
}

func TestSubmit_BusinessRejectionIsNotATransportError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(Envelope{
			Success: false,
			Errors:  []ResponseIssue{{Code: "DUP", Message: "duplicate visit", Field: "VisitOtherID"}},
		})
	})

	result, err := client.SubmitVisit(context.Background(), struct{}{})
	require.NoError(t, err, "a 200 with success=false is a business outcome, not a failure")
	assert.False(t, result.Envelope.Success)
	require.Len(t, result.Envelope.Errors, 1)
	assert.Equal(t, "DUP", result.Envelope.Errors[0].Code)
}

func TestSubmit_StatusClassification(t *testing.T) {
	cases := []struct {
		status    int
		wantCode  pkgerrors.Code
		retryable bool
	}{
		{http.StatusTooManyRequests, pkgerrors.CodeTransient, true},
		{http.StatusInternalServerError, pkgerrors.CodeTransient, true},
		{http.StatusBadGateway, pkgerrors.CodeTransient, true},
		{http.StatusUnauthorized, pkgerrors.CodeAuthentication, false},
		{http.StatusForbidden, pkgerrors.CodeAuthentication, false},
		{http.StatusBadRequest, pkgerrors.CodeValidation, false},
		{http.StatusUnprocessableEntity, pkgerrors.CodeValidation, false},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("status_%d", tc.status), func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
			})
			result, err := client.SubmitPatient(context.Background(), struct{}{})
			require.Error(t, err)
			assert.Equal(t, tc.wantCode, pkgerrors.CodeOf(err))
			assert.Equal(t, tc.retryable, pkgerrors.IsRetryable(err))
			require.NotNil(t, result)
			assert.Equal(t, tc.status, result.HTTPStatus)
		})
	}
}

func TestSubmit_UnauthorizedInvalidatesToken(t *testing.T) {
	client, tokens := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.SubmitStaff(context.Background(), struct{}{})
	require.Error(t, err)
	assert.Equal(t, int64(1), tokens.invalidated.Load())
}

func TestSubmit_TimeoutIsTransient(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})
	client.httpClient = &http.Client{Timeout: 20 * time.Millisecond}

	_, err := client.SubmitVisit(context.Background(), struct{}{})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsRetryable(err))
}

func TestSubmit_ConnectionRefusedIsTransient(t *testing.T) {
	tokens := &staticTokens{token: "test-token"}
	client := NewClient("http://127.0.0.1:1", tokens)

	_, err := client.SubmitVisit(context.Background(), struct{}{})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsRetryable(err))
}

// unverifiedJWT builds a token whose exp claim the manager can read.
func unverifiedJWT(t *testing.T, exp time.Time) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	claims, err := json.Marshal(map[string]any{"exp": exp.Unix()})
	require.NoError(t, err)
	payload := base64.RawURLEncoding.EncodeToString(claims)
	return header + "." + payload + ".signature"
}

func TestTokenManager_CachesUntilNearExpiry(t *testing.T) {
	var fetches atomic.Int64
	exp := time.Now().Add(time.Hour)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.Form.Get("grant_type"))
		json.NewEncoder(w).Encode(tokenResponse{AccessToken: unverifiedJWT(t, exp), ExpiresIn: 60})
	}))
	t.Cleanup(server.Close)

	mgr := NewTokenManager(server.URL, "id", "secret", nil)
	first, err := mgr.Token(context.Background())
	require.NoError(t, err)
	second, err := mgr.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), fetches.Load(), "second call served from cache")
	assert.WithinDuration(t, exp, mgr.expiresAt, time.Second, "expiry read from the JWT claim, not expires_in")
}

func TestTokenManager_RefreshesExpiredToken(t *testing.T) {
	var fetches atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := fetches.Add(1)
		exp := time.Now().Add(-time.Minute) // already expired
		if n > 1 {
			exp = time.Now().Add(time.Hour)
		}
		json.NewEncoder(w).Encode(tokenResponse{AccessToken: unverifiedJWT(t, exp)})
	}))
	t.Cleanup(server.Close)

	mgr := NewTokenManager(server.URL, "id", "secret", nil)
	_, err := mgr.Token(context.Background())
	require.NoError(t, err)
	_, err = mgr.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), fetches.Load())
}

func TestTokenManager_InvalidateForcesRefetch(t *testing.T) {
	var fetches atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fetches.Add(1)
		json.NewEncoder(w).Encode(tokenResponse{AccessToken: unverifiedJWT(t, time.Now().Add(time.Hour))})
	}))
	t.Cleanup(server.Close)

	mgr := NewTokenManager(server.URL, "id", "secret", nil)
	_, err := mgr.Token(context.Background())
	require.NoError(t, err)
	mgr.Invalidate()
	_, err = mgr.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), fetches.Load())
}

func TestTokenManager_ServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	mgr := NewTokenManager(server.URL, "id", "secret", nil)
	_, err := mgr.Token(context.Background())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsRetryable(err))
}

func TestTokenManager_BadCredentialsAreTerminal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(server.Close)

	mgr := NewTokenManager(server.URL, "id", "wrong", nil)
	_, err := mgr.Token(context.Background())
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeAuthentication, pkgerrors.CodeOf(err))
	assert.False(t, pkgerrors.IsRetryable(err))
}
