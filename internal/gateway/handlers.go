package gateway

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dohr-michael/mask/internal/config"
	"github.com/dohr-michael/mask/internal/events"
	"github.com/dohr-michael/mask/internal/sessions"
	"github.com/dohr-michael/mask/internal/skills"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= 500 {
		slog.Error("gateway request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"skills": s.Skills().Registry().Len(),
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, fmt.Errorf("%w: invalid limit %q", errBadRequest, v))
			return
		}
		limit = n
	}
	history := s.bus.History(limit)
	if history == nil {
		history = []events.Event{}
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.Reload(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "reloaded", "skills": s.Skills().Registry().Names()})
}

func (s *Server) handleListSkills(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Skills().Registry().Summary())
}

// SkillDetail is a skill summary plus its instructions.
type SkillDetail struct {
	skills.Summary
	Instructions string `json:"instructions"`
}

func (s *Server) handleGetSkill(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	reg := s.Skills().Registry()
	for _, sum := range reg.Summary() {
		if sum.Name != name {
			continue
		}
		instr, err := reg.SkillInstructions(name)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, SkillDetail{Summary: sum, Instructions: instr})
		return
	}
	writeError(w, fmt.Errorf("%w: %s", skills.ErrSkillNotFound, name))
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if list == nil {
		list = []*sessions.Session{}
	}
	writeJSON(w, http.StatusOK, list)
}

type createSessionRequest struct {
	Title  string          `json:"title"`
	UserID string          `json:"user_id"`
	Model  string          `json:"model"`
	Skills []string        `json:"skills"`
	TTL    config.Duration `json:"ttl"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
			return
		}
	}

	reg := s.Skills().Registry()
	for _, name := range req.Skills {
		if !reg.Enabled(name) {
			writeError(w, fmt.Errorf("%w: %s", skills.ErrSkillNotFound, name))
			return
		}
	}

	sess, err := s.store.Create(r.Context(),
		sessions.WithTitle(req.Title),
		sessions.WithUserID(req.UserID),
		sessions.WithModel(req.Model),
		sessions.WithTTL(req.TTL.Duration()),
		sessions.WithSkills(req.Skills...),
	)
	if err != nil {
		writeError(w, err)
		return
	}
	s.bus.Publish(events.NewTypedEventWithSession(events.SourceGateway,
		events.SessionCreatedPayload{UserID: sess.UserID}, sess.ID))
	writeJSON(w, http.StatusCreated, sess)
}

type sessionResponse struct {
	Session  *sessions.Session  `json:"session"`
	Messages []sessions.Message `json:"messages"`
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := s.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	msgs, err := s.store.LoadMessages(r.Context(), id, limit, 0)
	if err != nil {
		writeError(w, err)
		return
	}
	if msgs == nil {
		msgs = []sessions.Message{}
	}
	writeJSON(w, http.StatusOK, sessionResponse{Session: sess, Messages: msgs})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	s.tracker.Forget(id)
	s.bus.Publish(events.NewTypedEventWithSession(events.SourceGateway, events.SessionDeletedPayload{}, id))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSessionTools(w http.ResponseWriter, r *http.Request) {
	out, err := s.sessionTools(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSessionPrompt(w http.ResponseWriter, r *http.Request) {
	out, err := s.sessionPrompt(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleActivateSkill(w http.ResponseWriter, r *http.Request) {
	out, err := s.activateSkill(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDeactivateSkill(w http.ResponseWriter, r *http.Request) {
	out, err := s.deactivateSkill(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	res, err := s.sendMessage(r.Context(), chi.URLParam(r, "id"), req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
