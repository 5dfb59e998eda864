package http

import (
	"errors"
	"net/http"

	"fintrack/internal/core"
	applog "fintrack/internal/log"
	"fintrack/internal/services"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	body, err := ParseRequestBody(r)
	if err != nil {
		s.writeError(w, r, applog.OpRegister, err)
		return
	}
	defer body.Close()

	session, err := s.deps.Auth.Register(r.Context(), body.Get("name"), body.Get("email"), body.Get("password"))
	if err != nil {
		s.writeError(w, r, applog.OpRegister, err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Body(newSessionResponse(session, viewRegistered)).
		Write(w)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	body, err := ParseRequestBody(r)
	if err != nil {
		s.writeError(w, r, applog.OpLogin, err)
		return
	}
	defer body.Close()

	session, err := s.deps.Auth.Login(r.Context(), body.Get("email"), body.Get("password"))
	if errors.Is(err, core.ErrUnauthorized) {
		UnauthorizedError("Invalid credentials").Write(w)
		return
	}
	if err != nil {
		s.writeError(w, r, applog.OpLogin, err)
		return
	}
	NewJSONResponse().Body(newSessionResponse(session, viewLoggedIn)).Write(w)
}

// handleRefresh re-issues a token for a validly signed one, even an expired
// one.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	token, err := bearerToken(r)
	switch {
	case errors.Is(err, errMissingHeader):
		UnauthorizedError("Authorization header missing").Write(w)
		return
	case err != nil:
		UnauthorizedError("Malformed authorization header").Write(w)
		return
	}

	session, err := s.deps.Auth.Refresh(r.Context(), token)
	switch {
	case errors.Is(err, services.ErrAccountNotFound):
		UnauthorizedError("User account not found").Write(w)
		return
	case errors.Is(err, core.ErrUnauthorized):
		applog.FromContext(r.Context()).InfoContext(r.Context(), "Token refresh rejected", applog.FieldError, err)
		UnauthorizedError("Invalid token").Write(w)
		return
	case err != nil:
		s.writeError(w, r, applog.OpRefresh, err)
		return
	}
	NewJSONResponse().Body(newSessionResponse(session, viewRefreshed)).Write(w)
}
