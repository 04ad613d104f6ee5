package handler

import (
	"log/slog"
	"net/http"
	"time"

	"storefront-sync/internal/auth"
	"storefront-sync/internal/model"
)

// SignInRequest is the body of POST /session.
type SignInRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

// SignUpRequest is the body of POST /session/signup.
type SignUpRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name,omitempty"`
	Phone       string `json:"phone,omitempty"`
}

// SessionResponse describes the current session without exposing tokens.
type SessionResponse struct {
	State      string     `json:"state"`
	SignedIn   bool       `json:"signed_in"`
	UserID     string     `json:"user_id,omitempty"`
	Email      string     `json:"email,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	RememberMe bool       `json:"remember_me,omitempty"`
}

func sessionResponse(state auth.State, s *model.Session) SessionResponse {
	resp := SessionResponse{State: state.String()}
	if s == nil {
		return resp
	}
	exp := s.Expiry().UTC()
	resp.SignedIn = true
	resp.UserID = s.UserID
	resp.Email = s.Email
	resp.ExpiresAt = &exp
	resp.RememberMe = s.RememberMe
	return resp
}

// handleGetSession returns the current session state.
// GET /session
func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, sessionResponse(h.sessions.State(), h.sessions.Current()))
}

// handleSignIn signs in with email and password.
// POST /session
func (h *Handler) handleSignIn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req SignInRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	s, err := h.sessions.SignIn(ctx, req.Email, req.Password, req.RememberMe)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, sessionResponse(h.sessions.State(), s))
}

// handleSignUp registers a new account. The response carries the session
// when the backend signs the user in immediately.
// POST /session/signup
func (h *Handler) handleSignUp(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req SignUpRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	res, err := h.sessions.SignUp(ctx, req.Email, req.Password, auth.ProfileDefaults{
		DisplayName: req.DisplayName,
		Phone:       req.Phone,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "account created",
		slog.String("user_id", res.User.ID),
		slog.Bool("signed_in", res.Session != nil),
	)
	h.writeJSON(w, http.StatusCreated, sessionResponse(h.sessions.State(), res.Session))
}

// handleSignOut ends the session. Always succeeds locally.
// DELETE /session
func (h *Handler) handleSignOut(w http.ResponseWriter, r *http.Request) {
	h.sessions.SignOut(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// handleGetProfile returns the signed-in user's profile.
// GET /profile
func (h *Handler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.sessions.Profile(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}
