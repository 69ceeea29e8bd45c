package middleware

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"neon/backend/config"

	"firebase.google.com/go/v4/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubVerifier struct {
	tokens map[string]string
}

func (s stubVerifier) VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error) {
	uid, ok := s.tokens[idToken]
	if !ok {
		return nil, errors.New("token rejected")
	}
	return &auth.Token{UID: uid}, nil
}

func withVerifier(t *testing.T, v TokenVerifier) {
	t.Helper()
	original, required := verifier, authRequired
	SetTokenVerifier(v)
	t.Cleanup(func() { verifier, authRequired = original, required })
}

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(GetUserIDFromContext(r)))
	})
}

func TestExtractToken(t *testing.T) {
	testCases := []struct {
		name          string
		authHeader    string
		expectedToken string
	}{
		{"Valid Bearer token", "Bearer test-token-123", "test-token-123"},
		{"Missing Bearer prefix", "test-token-123", ""},
		{"Empty auth header", "", ""},
		{"Bearer with no token", "Bearer ", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expectedToken, extractToken(tc.authHeader))
		})
	}
}

func TestAuthMiddlewareDevMode(t *testing.T) {
	withVerifier(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/timelines", nil)
	w := httptest.NewRecorder()
	AuthMiddleware(echoUser()).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, DevUserID, w.Body.String())
}

func TestAuthMiddlewareVerifiesTokens(t *testing.T) {
	withVerifier(t, stubVerifier{tokens: map[string]string{"good": "user-42"}})
	handler := AuthMiddleware(echoUser())

	testCases := []struct {
		name       string
		header     string
		target     string
		wantStatus int
		wantUser   string
	}{
		{"bearer token", "Bearer good", "/query", http.StatusOK, "user-42"},
		{"query parameter", "", "/query?auth=good", http.StatusOK, "user-42"},
		{"missing token", "", "/query", http.StatusUnauthorized, ""},
		{"invalid token", "Bearer bad", "/query", http.StatusUnauthorized, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tc.wantStatus, w.Code)
			if tc.wantUser != "" {
				assert.Equal(t, tc.wantUser, w.Body.String())
			}
		})
	}
}

func TestAuthMiddlewarePassesPreflight(t *testing.T) {
	withVerifier(t, stubVerifier{})

	req := httptest.NewRequest(http.MethodOptions, "/query", nil)
	w := httptest.NewRecorder()
	AuthMiddleware(echoUser()).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestInitializeFirebaseWithoutCredentials(t *testing.T) {
	withVerifier(t, stubVerifier{})

	require.NoError(t, InitializeFirebase(context.Background(), config.FirebaseConfig{}, zap.NewNop()))
	assert.Nil(t, verifier)
}

func TestInitializeFirebaseBadCredentials(t *testing.T) {
	withVerifier(t, nil)

	err := InitializeFirebase(context.Background(), config.FirebaseConfig{Credentials: "%%%"}, zap.NewNop())
	assert.Error(t, err)
	assert.Nil(t, verifier)

	// configured but unusable credentials must not fall back to the dev user
	req := httptest.NewRequest(http.MethodGet, "/timelines", nil)
	w := httptest.NewRecorder()
	AuthMiddleware(echoUser()).ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDecodeCredentials(t *testing.T) {
	raw := `{"type":"service_account"}`

	creds, err := decodeCredentials("  " + raw)
	require.NoError(t, err)
	assert.Equal(t, raw, string(creds))

	creds, err = decodeCredentials(base64.StdEncoding.EncodeToString([]byte(raw)))
	require.NoError(t, err)
	assert.Equal(t, raw, string(creds))

	_, err = decodeCredentials("not base64!")
	assert.Error(t, err)
}

func TestGetUserIDFromContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, GetUserIDFromContext(req))

	req = req.WithContext(context.WithValue(req.Context(), UserIDKey, "someone"))
	assert.Equal(t, "someone", GetUserIDFromContext(req))
}
