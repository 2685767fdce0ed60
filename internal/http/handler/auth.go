package handler

import (
	"net/http"

	"schedlog/internal/identity"
)

type AuthHandler struct {
	S *Sessions
}

type signupReq struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupReq
	if !decode(w, r, &req) {
		return
	}

	m, c := h.S.anonymous()
	defer m.Close()
	if err := m.Signup(r.Context(), req.Email, req.Password, req.ConfirmPassword); err != nil {
		h.S.writeError(w, r, err)
		return
	}
	writeSession(w, http.StatusCreated, c, m)
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginReq
	if !decode(w, r, &req) {
		return
	}

	m, c := h.S.anonymous()
	defer m.Close()
	if err := m.Login(r.Context(), req.Email, req.Password, req.Remember); err != nil {
		h.S.writeError(w, r, err)
		return
	}
	writeSession(w, http.StatusOK, c, m)
}

type federatedReq struct {
	IDToken  string `json:"id_token"`
	Remember bool   `json:"remember"`
}

func (h *AuthHandler) Federated(w http.ResponseWriter, r *http.Request) {
	var req federatedReq
	if !decode(w, r, &req) {
		return
	}

	m, c := h.S.anonymous(identity.WithFederation(identity.StaticIDToken(req.IDToken)))
	defer m.Close()
	if err := m.FederatedSignin(r.Context(), req.Remember); err != nil {
		h.S.writeError(w, r, err)
		return
	}
	writeSession(w, http.StatusOK, c, m)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	m, err := h.S.restore(r)
	if err != nil {
		h.S.writeError(w, r, err)
		return
	}
	defer m.Close()

	if err := m.Logout(r.Context()); err != nil {
		h.S.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
