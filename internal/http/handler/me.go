package handler

import "net/http"

type MeHandler struct {
	S *Sessions
}

// Me returns the restored session state. A credential without an account
// reports phase logged_out.
func (h *MeHandler) Me(w http.ResponseWriter, r *http.Request) {
	m, err := h.S.restore(r)
	if err != nil {
		h.S.writeError(w, r, err)
		return
	}
	defer m.Close()

	writeJSON(w, http.StatusOK, m.Snapshot().View())
}

func (h *MeHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	m, err := h.S.restore(r)
	if err != nil {
		h.S.writeError(w, r, err)
		return
	}
	defer m.Close()

	if err := m.DeleteAccount(r.Context()); err != nil {
		h.S.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type toggleReq struct {
	Value *bool `json:"value"`
}

func (h *MeHandler) SetDarkMode(w http.ResponseWriter, r *http.Request) {
	var req toggleReq
	if !decode(w, r, &req) {
		return
	}
	if req.Value == nil {
		writeMsg(w, http.StatusBadRequest, "value required")
		return
	}

	m, err := h.S.restore(r)
	if err != nil {
		h.S.writeError(w, r, err)
		return
	}
	defer m.Close()

	if err := m.SetDarkMode(r.Context(), *req.Value); err != nil {
		h.S.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
