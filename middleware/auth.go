package middleware

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"neon/backend/config"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

type contextKey string

const UserIDKey contextKey = "user_id"

// DevUserID is the user every request runs as when token verification is
// disabled.
const DevUserID = "dev-user"

// TokenVerifier checks Firebase ID tokens. *auth.Client implements it.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

var (
	verifier TokenVerifier
	// set when credentials are configured; a nil verifier then rejects
	// every request instead of falling back to the dev user
	authRequired bool
	logger       = zap.NewNop()
)

// InitializeFirebase sets up token verification from cfg. Without
// credentials the middleware runs in development mode and skips
// verification.
func InitializeFirebase(ctx context.Context, cfg config.FirebaseConfig, l *zap.Logger) error {
	if l != nil {
		logger = l
	}
	verifier = nil
	authRequired = cfg.Credentials != ""

	if cfg.Credentials == "" {
		logger.Warn("no Firebase credentials configured, running with auth checks disabled")
		return nil
	}

	creds, err := decodeCredentials(cfg.Credentials)
	if err != nil {
		return err
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.Project}, option.WithCredentialsJSON(creds))
	if err != nil {
		return fmt.Errorf("error initializing Firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return fmt.Errorf("error getting Firebase Auth client: %w", err)
	}

	verifier = client
	logger.Info("Firebase Admin SDK initialized", zap.String("project", cfg.Project))
	return nil
}

// SetTokenVerifier replaces the verifier used by AuthMiddleware. nil turns
// verification off.
func SetTokenVerifier(v TokenVerifier) {
	verifier = v
	authRequired = false
}

// decodeCredentials accepts a service account as raw JSON or base64.
func decodeCredentials(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "{") {
		return []byte(raw), nil
	}
	creds, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("error decoding base64 Firebase credentials: %w", err)
	}
	return creds, nil
}

// AuthMiddleware verifies Firebase JWT tokens from the Authorization header
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip auth for OPTIONS requests (CORS preflight)
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		v := verifier
		if v == nil && authRequired {
			http.Error(w, "Unauthorized: token verification unavailable", http.StatusUnauthorized)
			return
		}
		if v == nil {
			ctx := context.WithValue(r.Context(), UserIDKey, DevUserID)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		idToken := extractToken(r.Header.Get("Authorization"))
		if idToken == "" {
			// Fallback to query parameter for clients that cannot set headers
			idToken = r.URL.Query().Get("auth")
		}
		if idToken == "" {
			http.Error(w, "Unauthorized: No token provided", http.StatusUnauthorized)
			return
		}

		token, err := verifyToken(r.Context(), v, idToken)
		if err != nil {
			logger.Info("rejected token", zap.String("path", r.URL.Path), zap.Error(err))
			http.Error(w, "Unauthorized: Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), UserIDKey, token.UID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractToken gets the token from the Authorization header
func extractToken(authHeader string) string {
	if authHeader == "" {
		return ""
	}

	parts := strings.Split(authHeader, "Bearer ")
	if len(parts) != 2 {
		return ""
	}

	return parts[1]
}

func verifyToken(ctx context.Context, v TokenVerifier, idToken string) (*auth.Token, error) {
	if v == nil {
		return nil, errors.New("Firebase auth client not initialized")
	}
	token, err := v.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, fmt.Errorf("error verifying ID token: %w", err)
	}
	return token, nil
}

// GetUserIDFromContext retrieves the user ID from the request context
func GetUserIDFromContext(r *http.Request) string {
	userID, ok := r.Context().Value(UserIDKey).(string)
	if !ok {
		return ""
	}
	return userID
}
