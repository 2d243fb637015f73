package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/lumenai/conduit/internal/mcpregistry"
	"github.com/lumenai/conduit/internal/observability"
	"github.com/lumenai/conduit/internal/orchestrator"
	"github.com/lumenai/conduit/pkg/models"
)

// handleChats dispatches requests under /v1/chats/{id} and
// /v1/chats/{id}/messages to the appropriate sub-handler.
func (s *Server) handleChats(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/chats/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	chatID := parts[0]

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		s.handleGetMessages(w, r, chatID)
	case len(parts) == 2 && parts[1] == "messages" && r.Method == http.MethodPost:
		s.handlePostMessage(w, r, chatID)
	case len(parts) == 2 && parts[1] == "read" && r.Method == http.MethodPost:
		s.handleMarkRead(w, r, chatID)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request, chatID string) {
	msgs, err := s.cfg.Store.GetMessages(r.Context(), chatID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(msgs); err != nil {
		s.logger.Debug("get messages write failed", "error", err)
	}
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request, chatID string) {
	if err := s.cfg.Store.MarkRead(r.Context(), chatID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// postMessageRequest is the request body for POST .../messages: the new
// user message plus the tool selection for this turn.
type postMessageRequest struct {
	Content     string   `json:"content"`
	EnableTools bool     `json:"enable_tools"`
	Tools       []string `json:"tools,omitempty"`
}

// ndjsonChunk is the wire shape of one streamed line: a text fragment or
// a terminal error, matching orchestrator.Chunk.
type ndjsonChunk struct {
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

// handlePostMessage appends the caller's message, then streams the
// assistant's reply as newline-delimited JSON chunks.
func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request, chatID string) {
	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		http.Error(w, "content must not be empty", http.StatusBadRequest)
		return
	}

	ctx := observability.AddSessionID(r.Context(), chatID)
	r = r.WithContext(ctx)
	s.reqLogger.WithContext(ctx).Info(ctx, "chat turn started", "chars", len(req.Content), "enable_tools", req.EnableTools)

	userMsg := models.ChatMessage{
		Role:        models.RoleUser,
		ContentType: models.ContentTypeText,
		Content:     req.Content,
	}
	if _, err := s.cfg.Store.Append(r.Context(), chatID, userMsg); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)

	sel := mcpregistry.ToolSelection{EnableTools: req.EnableTools}
	if len(req.Tools) > 0 {
		sel.Enabled = make(map[string]bool, len(req.Tools))
		for _, name := range req.Tools {
			sel.Enabled[name] = true
		}
	}

	if s.cfg.Metrics != nil {
		s.cfg.Metrics.TurnStarted()
		defer s.cfg.Metrics.TurnEnded(0)
	}

	err := s.cfg.Orchestrator.StreamAssistantTurn(r.Context(), chatID, s.cfg.Model, sel, func(c orchestrator.Chunk) {
		_ = enc.Encode(ndjsonChunk{Text: c.Text, Error: c.Error})
		if flusher != nil {
			flusher.Flush()
		}
	})
	if err != nil {
		s.reqLogger.WithContext(ctx).Error(ctx, "chat turn failed", "chat_id", observability.GetSessionID(ctx), "error", err)
		_ = enc.Encode(ndjsonChunk{Error: err.Error()})
		if flusher != nil {
			flusher.Flush()
		}
		return
	}
	s.reqLogger.WithContext(ctx).Info(ctx, "chat turn completed", "chat_id", observability.GetSessionID(ctx))
}
