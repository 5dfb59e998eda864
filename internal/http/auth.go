package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	applog "fintrack/internal/log"
)

type ctxKey string

const ownerKey ctxKey = "owner_id"

var (
	errMissingHeader   = errors.New("authorization header missing")
	errMalformedHeader = errors.New("malformed authorization header")
)

// bearerToken extracts the token of an "Authorization: Bearer <token>"
// header.
func bearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", errMissingHeader
	}
	scheme, token, ok := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", errMalformedHeader
	}
	return token, nil
}

// requireAuth resolves the bearer token to the owner id every downstream
// handler scopes its work to.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := bearerToken(r)
		if err != nil {
			UnauthorizedError("Unauthorized").Write(w)
			return
		}
		ownerID, err := s.deps.Auth.Authenticate(token)
		if err != nil {
			applog.FromContext(r.Context()).DebugContext(r.Context(), "Token rejected", applog.FieldError, err)
			UnauthorizedError("Invalid token").Write(w)
			return
		}

		logger := applog.FromContext(r.Context()).With(applog.FieldOwnerID, ownerID)
		ctx := context.WithValue(r.Context(), ownerKey, ownerID)
		ctx = context.WithValue(ctx, applog.LoggerContextKey, logger)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ownerFrom returns the authenticated owner id set by requireAuth.
func ownerFrom(ctx context.Context) string {
	id, _ := ctx.Value(ownerKey).(string)
	return id
}
