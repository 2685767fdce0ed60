package handler

import (
	"net/http"
	"time"

	"schedlog/internal/activity"
	"schedlog/internal/apperr"
	"schedlog/internal/session"
	"schedlog/internal/store"
	"schedlog/internal/validate"
)

type ScheduleHandler struct {
	S *Sessions
}

type scheduleDTO struct {
	ScheduleID string                 `json:"schedule_id"`
	Sharing    bool                   `json:"sharing"`
	Records    []store.ActivityRecord `json:"records"`
}

func (h *ScheduleHandler) Get(w http.ResponseWriter, r *http.Request) {
	m, err := h.S.restore(r)
	if err != nil {
		h.S.writeError(w, r, err)
		return
	}
	defer m.Close()

	st := m.Snapshot()
	if st.Phase != session.Authenticated {
		h.S.writeError(w, r, apperr.Consistency("schedule", "no account for this identity"))
		return
	}
	v := st.View()
	writeJSON(w, http.StatusOK, scheduleDTO{
		ScheduleID: v.ScheduleID,
		Sharing:    v.Sharing,
		Records:    activity.FilterByTag(v.Records, r.URL.Query().Get("tag")),
	})
}

type recordReq struct {
	Title     string    `json:"title"`
	Notes     string    `json:"notes"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// AppendRecord stores an activity the client timed itself.
func (h *ScheduleHandler) AppendRecord(w http.ResponseWriter, r *http.Request) {
	var req recordReq
	if !decode(w, r, &req) {
		return
	}

	m, err := h.S.restore(r)
	if err != nil {
		h.S.writeError(w, r, err)
		return
	}
	defer m.Close()

	rec, err := activity.New(m, h.S.Store, activity.WithLogger(h.S.Logger)).Record(r.Context(), validate.RecordInput{
		Title:     req.Title,
		Notes:     req.Notes,
		StartedAt: req.StartedAt,
		EndedAt:   req.EndedAt,
	})
	if err != nil {
		h.S.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h *ScheduleHandler) SetSharing(w http.ResponseWriter, r *http.Request) {
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

	if err := m.SetSharing(r.Context(), *req.Value); err != nil {
		h.S.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
