// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/jeranaias/chatstream/internal/export"
	"github.com/jeranaias/chatstream/internal/model"
	"github.com/jeranaias/chatstream/internal/orchestrator"
	"github.com/jeranaias/chatstream/internal/prompt"
	"github.com/jeranaias/chatstream/internal/session"
	"github.com/jeranaias/chatstream/internal/tokens"
)

// ============================================================================
// PAGE
// ============================================================================

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	page, err := staticFiles.ReadFile("static/index.html")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "page not available")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}

// ============================================================================
// SUBMIT (SERVER-SENT EVENTS)
// ============================================================================

// SubmitRequest is the body of POST /api/submit.
type SubmitRequest struct {
	Message string `json:"message"`

	// APIKey is sent only when the credential field was edited.
	APIKey *string `json:"api_key,omitempty"`

	Model        string  `json:"model,omitempty"`
	Temperature  float64 `json:"temperature,omitempty"`
	MaxTokens    int     `json:"max_tokens,omitempty"`
	Prompt       string  `json:"prompt,omitempty"`
	CustomPrompt string  `json:"custom_prompt,omitempty"`
}

// TranscriptEvent is one SSE data frame of a turn.
type TranscriptEvent struct {
	Transcript []model.Message `json:"transcript"`
}

// DoneEvent is the final SSE frame of a turn.
type DoneEvent struct {
	State   orchestrator.TurnState `json:"state"`
	Status  string                 `json:"status"`
	History int                    `json:"history"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "invalid_request_error", "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_request_error", "invalid JSON: "+err.Error())
		return
	}

	st, err := s.session(w, r)
	if err != nil {
		log.Printf("SESSION_OPEN_FAILED | error=%v", err)
		writeError(w, http.StatusServiceUnavailable, "session_error", "session unavailable")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", "streaming not supported")
		return
	}

	// Headers are only committed by the first event, so a rejected turn
	// can still answer with a JSON error.
	started := false
	observe := func(transcript []model.Message) {
		if !started {
			h := w.Header()
			h.Set("Content-Type", "text/event-stream")
			h.Set("Connection", "keep-alive")
			h.Set("X-Accel-Buffering", "no")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		writeEvent(w, flusher, "", TranscriptEvent{Transcript: transcript})
	}

	res, err := s.orch.Submit(r.Context(), st, orchestrator.Submission{
		Message:      req.Message,
		Credential:   req.APIKey,
		Model:        req.Model,
		Temperature:  req.Temperature,
		MaxTokens:    req.MaxTokens,
		PromptChoice: req.Prompt,
		CustomPrompt: req.CustomPrompt,
	}, observe)
	if errors.Is(err, session.ErrTurnInProgress) {
		writeError(w, http.StatusConflict, "turn_in_progress", "a response is still streaming for this session")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	if !started {
		observe(res.Transcript)
	}

	writeEvent(w, flusher, "done", DoneEvent{
		State:   res.State,
		Status:  orchestrator.StatusLine(st, s.now()),
		History: st.HistoryLen(),
	})
}

// writeEvent writes one SSE frame and flushes it.
func writeEvent(w http.ResponseWriter, flusher http.Flusher, event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("SSE_ENCODE_FAILED | error=%v", err)
		return
	}
	if event != "" {
		fmt.Fprintf(w, "event: %s\n", event)
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}

// ============================================================================
// CLEAR AND EXPORT
// ============================================================================

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	st, err := s.session(w, r)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "session_error", "session unavailable")
		return
	}
	if err := s.orch.Clear(r.Context(), st); err != nil {
		if errors.Is(err, session.ErrTurnInProgress) {
			writeError(w, http.StatusConflict, "turn_in_progress", "a response is still streaming for this session")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, TranscriptEvent{Transcript: st.Transcript()})
}

// ExportResponse is the body returned by POST /api/export.
type ExportResponse struct {
	OK       bool   `json:"ok"`
	Filename string `json:"filename,omitempty"`
	URL      string `json:"url,omitempty"`
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	exporter, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_error", err.Error())
		return
	}
	st, err := s.session(w, r)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "session_error", "session unavailable")
		return
	}

	name, ok, err := s.exportWriter(st).WithExporter(exporter).
		Export(st.Transcript(), st.Params().Model, st.SystemPrompt())
	if err != nil {
		log.Printf("EXPORT_FAILED | session=%s error=%v", st.ID(), err)
		writeError(w, http.StatusInternalServerError, "export_error", "export failed")
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, ExportResponse{OK: false})
		return
	}
	writeJSON(w, http.StatusOK, ExportResponse{OK: true, Filename: name, URL: "/api/export/" + name})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	st, err := s.session(w, r)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "session_error", "session unavailable")
		return
	}

	name := r.PathValue("name")
	path, err := s.exportWriter(st).Path(name)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_error", err.Error())
		return
	}

	f, err := os.Open(path)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "export not found")
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "export unreadable")
		return
	}

	w.Header().Set("Content-Type", export.MimeTypeFor(name))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

// ============================================================================
// STATUS AND SESSION
// ============================================================================

// StatusResponse describes a session's current settings.
type StatusResponse struct {
	Status        string  `json:"status"`
	Model         string  `json:"model"`
	ModelInfo     string  `json:"model_info"`
	Temperature   float64 `json:"temperature"`
	MaxTokens     int     `json:"max_tokens"`
	Prompt        string  `json:"prompt"`
	History       int     `json:"history"`
	ContextTokens int     `json:"context_tokens"`
	HasCredential bool    `json:"has_credential"`
}

func (s *Server) statusOf(st *session.State) StatusResponse {
	p := st.Params()
	history := st.History()
	return StatusResponse{
		Status:        orchestrator.StatusLine(st, s.now()),
		Model:         p.Model.String(),
		ModelInfo:     p.Model.Info(),
		Temperature:   p.Temperature,
		MaxTokens:     p.MaxTokens,
		Prompt:        st.Selection().Label(),
		History:       len(history),
		ContextTokens: tokens.Count(history),
		HasCredential: st.HasCredential(),
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.session(w, r)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "session_error", "session unavailable")
		return
	}
	writeJSON(w, http.StatusOK, s.statusOf(st))
}

// SessionResponse restores the page after a reload.
type SessionResponse struct {
	StatusResponse
	Transcript   []model.Message `json:"transcript"`
	CustomPrompt string          `json:"custom_prompt"`
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	st, err := s.session(w, r)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "session_error", "session unavailable")
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{
		StatusResponse: s.statusOf(st),
		Transcript:     st.Transcript(),
		CustomPrompt:   st.Selection().CustomText,
	})
}

func (s *Server) handleSessionDelete(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(SessionCookie)
	if err != nil || c.Value == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err := s.sessions.Close(r.Context(), c.Value); err != nil && !errors.Is(err, session.ErrSessionNotFound) {
		log.Printf("SESSION_CLOSE_FAILED | session=%s error=%v", c.Value, err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

// ============================================================================
// CATALOGS
// ============================================================================

// ModelInfo describes one selectable model.
type ModelInfo struct {
	ID      string `json:"id"`
	Info    string `json:"info"`
	Default bool   `json:"default"`
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	def := s.sessions.Defaults().Model
	models := make([]ModelInfo, 0, len(model.ChatModels()))
	for _, m := range model.ChatModels() {
		models = append(models, ModelInfo{ID: m.String(), Info: m.Info(), Default: m == def})
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": models})
}

// PromptInfo describes one persona choice.
type PromptInfo struct {
	Name string `json:"name"`
	Text string `json:"text,omitempty"`
}

func (s *Server) handlePrompts(w http.ResponseWriter, r *http.Request) {
	personas := prompt.Personas()
	prompts := make([]PromptInfo, 0, len(personas)+1)
	for _, p := range personas {
		prompts = append(prompts, PromptInfo{Name: p.String(), Text: p.Text()})
	}
	prompts = append(prompts, PromptInfo{Name: prompt.CustomChoice})
	writeJSON(w, http.StatusOK, map[string]any{"prompts": prompts})
}

// ============================================================================
// HEALTH
// ============================================================================

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Sessions int    `json:"sessions"`
	Uptime   string `json:"uptime"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:   "ok",
		Version:  Version,
		Sessions: s.sessions.Len(),
		Uptime:   time.Since(s.startTime).Round(time.Second).String(),
	})
}
