package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/adminsuite/reminderd/internal/models"
)

// scheduleRequest is the payload for entity create/update notifications.
type scheduleRequest struct {
	Entity  models.TrackedEntity `json:"entity"`
	Deleted bool                 `json:"deleted,omitempty"`
}

// rescheduleRequest is the payload for moving a pending reminder.
type rescheduleRequest struct {
	ScheduledAt time.Time `json:"scheduled_at"`
}

// testSendRequest is the payload for the preview/test-send path.
type testSendRequest struct {
	Kind      models.ReminderKind `json:"kind"`
	Channel   models.Channel      `json:"channel"`
	Recipient string              `json:"recipient"`
	Template  string              `json:"template,omitempty"`
}

func (s *Server) scheduleHandler(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, Error("invalid request body"))
		return
	}
	if req.Deleted {
		result, err := s.service.Unschedule(r.Context(), req.Entity.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, Success(result))
		return
	}
	result, err := s.service.Schedule(r.Context(), req.Entity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Success(result))
}

func (s *Server) rescheduleHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, Error("invalid request body"))
		return
	}
	if req.ScheduledAt.IsZero() {
		writeJSON(w, http.StatusBadRequest, Error("scheduled_at is required"))
		return
	}
	updated, err := s.service.Reschedule(r.Context(), id, req.ScheduledAt)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Success(updated))
}

func (s *Server) cancelHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	updated, err := s.service.Cancel(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Success(updated))
}

func (s *Server) sendNowHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.service.SendNow(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Success(nil))
}

func (s *Server) testSendHandler(w http.ResponseWriter, r *http.Request) {
	var req testSendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, Error("invalid request body"))
		return
	}
	if err := s.service.TestSend(r.Context(), req.Kind, req.Channel, req.Recipient, req.Template); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Success(nil))
}

func (s *Server) listRemindersHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.ReminderFilter{
		SubjectID: q.Get("subject"),
		Kind:      models.ReminderKind(q.Get("kind")),
		Status:    models.ReminderStatus(q.Get("status")),
		Channel:   models.Channel(q.Get("channel")),
	}
	if filter.Status != "" && !models.IsValidStatus(filter.Status) {
		writeJSON(w, http.StatusBadRequest, Error("invalid status filter"))
		return
	}
	reminders, err := s.service.ListReminders(filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Success(reminders))
}

func (s *Server) listLogHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.LogFilter{
		SubjectID: q.Get("subject"),
		Channel:   models.Channel(q.Get("channel")),
		Outcome:   models.LogOutcome(q.Get("outcome")),
	}
	entries, err := s.service.ListLog(filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Success(entries))
}

func (s *Server) getPolicyHandler(w http.ResponseWriter, r *http.Request) {
	kind := models.ReminderKind(mux.Vars(r)["kind"])
	policy, err := s.service.GetPolicy(kind)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Success(policy))
}

func (s *Server) updatePolicyHandler(w http.ResponseWriter, r *http.Request) {
	kind := models.ReminderKind(mux.Vars(r)["kind"])
	var policy models.ReminderPolicy
	if err := json.NewDecoder(r.Body).Decode(&policy); err != nil {
		writeJSON(w, http.StatusBadRequest, Error("invalid request body"))
		return
	}
	policy.Kind = kind
	if err := s.service.UpdatePolicy(policy); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Success(policy))
}
