package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"schedlog/internal/apperr"
	mw "schedlog/internal/http/middleware"
	"schedlog/internal/identity"
	"schedlog/internal/jobs"
	"schedlog/internal/session"
	"schedlog/internal/store"

	"go.uber.org/zap"
)

// Sessions builds a session manager per request. Nothing is shared between
// requests except the store.
type Sessions struct {
	Auth   *identity.Authority
	Store  *store.Gorm
	Jobs   *jobs.Repo
	Logger *zap.Logger
}

// anonymous returns a manager whose identity client holds no session yet.
// The caller must Close it.
func (s *Sessions) anonymous(opts ...identity.Option) (*session.Manager, *identity.Client) {
	c := identity.NewClient(s.Auth, opts...)
	return session.NewManager(c, s.Store, s.Jobs, s.Logger), c
}

// restore returns a manager hydrated for the request's bearer session.
// The caller must Close it.
func (s *Sessions) restore(r *http.Request) (*session.Manager, error) {
	sess, ok := mw.SessionFromContext(r.Context())
	if !ok {
		return nil, apperr.AuthProvider("restore session", identity.ErrInvalidToken)
	}
	m := session.NewManager(identity.NewClient(s.Auth, identity.WithSession(sess)), s.Store, s.Jobs, s.Logger)
	if err := m.Start(r.Context()); err != nil {
		m.Close()
		return nil, err
	}
	return m, nil
}

type authResp struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	State     session.View `json:"state"`
}

func writeSession(w http.ResponseWriter, status int, c *identity.Client, m *session.Manager) {
	cur, _ := c.Current()
	writeJSON(w, status, authResp{
		Token:     cur.Token,
		ExpiresAt: cur.ExpiresAt,
		State:     m.Snapshot().View(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMsg(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps an operation error to its status code. Store failures
// are logged and hidden behind a generic message.
func (s *Sessions) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		writeMsg(w, http.StatusBadRequest, apperr.UserMessage(err))
	case errors.Is(err, apperr.ErrAuthProvider):
		writeMsg(w, http.StatusUnauthorized, identity.Describe(err))
	case errors.Is(err, apperr.ErrConsistency):
		writeMsg(w, http.StatusConflict, apperr.UserMessage(err))
	default:
		s.Logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeMsg(w, http.StatusInternalServerError, "server error")
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeMsg(w, http.StatusBadRequest, "bad json")
		return false
	}
	return true
}
