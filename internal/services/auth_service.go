package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"fintrack/internal/auth"
	"fintrack/internal/core"
	"fintrack/internal/ledger"
)

// ErrAccountNotFound is returned by Refresh when the token's user no longer
// exists. It also matches core.ErrUnauthorized.
var ErrAccountNotFound = fmt.Errorf("user account not found: %w", core.ErrUnauthorized)

// Session is the result of a successful register, login or refresh.
type Session struct {
	User      core.User
	Token     string
	ExpiresAt time.Time
	ExpiresIn string
}

type AuthService struct {
	users  ledger.UserStore
	tokens *auth.TokenIssuer
	now    func() time.Time
}

func NewAuthService(users ledger.UserStore, tokens *auth.TokenIssuer) *AuthService {
	return &AuthService{users: users, tokens: tokens, now: time.Now}
}

func (s *AuthService) Register(ctx context.Context, name, email, password string) (Session, error) {
	name = strings.TrimSpace(name)
	email = core.NormalizeEmail(email)
	if missing := missingFields(map[string]string{"name": name, "email": email, "password": password}); missing != nil {
		return Session{}, &core.ValidationError{Field: "body", Message: "All fields are required", Missing: missing}
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return Session{}, err
	}
	user, err := s.users.CreateUser(ctx, core.User{Name: name, Email: email, PasswordHash: hash})
	if err != nil {
		return Session{}, core.Persistence("create user", err)
	}

	slog.InfoContext(ctx, "User registered", "user_id", user.ID)
	return s.session(user)
}

func (s *AuthService) Login(ctx context.Context, email, password string) (Session, error) {
	email = core.NormalizeEmail(email)
	if missing := missingFields(map[string]string{"email": email, "password": password}); missing != nil {
		return Session{}, &core.ValidationError{Field: "body", Message: "Email and password are required", Missing: missing}
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, core.ErrNotFound) {
		return Session{}, fmt.Errorf("invalid credentials: %w", core.ErrUnauthorized)
	}
	if err != nil {
		return Session{}, core.Persistence("get user", err)
	}
	if !auth.CheckPassword(password, user.PasswordHash) {
		slog.InfoContext(ctx, "Login rejected", "user_id", user.ID)
		return Session{}, fmt.Errorf("invalid credentials: %w", core.ErrUnauthorized)
	}
	return s.session(user)
}

// Refresh re-issues a token for a validly signed one, expired or not, as long
// as the user still exists. It stamps the user's last login.
func (s *AuthService) Refresh(ctx context.Context, token string) (Session, error) {
	userID, err := s.tokens.VerifyIgnoringExpiry(token)
	if err != nil {
		return Session{}, err
	}
	user, err := s.users.GetUserByID(ctx, userID)
	if errors.Is(err, core.ErrNotFound) {
		return Session{}, ErrAccountNotFound
	}
	if err != nil {
		return Session{}, core.Persistence("get user", err)
	}

	now := s.now().UTC()
	if err := s.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		return Session{}, core.Persistence("touch last login", err)
	}
	user.LastLogin = now
	return s.session(user)
}

// Authenticate verifies a bearer token and returns the user id it carries.
func (s *AuthService) Authenticate(token string) (string, error) {
	return s.tokens.Verify(token)
}

func (s *AuthService) session(user core.User) (Session, error) {
	token, expires, err := s.tokens.Issue(user.ID)
	if err != nil {
		return Session{}, err
	}
	return Session{User: user, Token: token, ExpiresAt: expires, ExpiresIn: formatTTL(s.tokens.TTL())}, nil
}

func missingFields(fields map[string]string) map[string]bool {
	var missing map[string]bool
	for name, v := range fields {
		if strings.TrimSpace(v) == "" {
			if missing == nil {
				missing = make(map[string]bool, len(fields))
				for n := range fields {
					missing[n] = false
				}
			}
			missing[name] = true
		}
	}
	return missing
}

// formatTTL renders whole hours as "24h" and anything else with
// time.Duration's own format.
func formatTTL(d time.Duration) string {
	if d > 0 && d%time.Hour == 0 {
		return fmt.Sprintf("%dh", d/time.Hour)
	}
	return d.String()
}
