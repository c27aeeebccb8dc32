// Package handler exposes the HTTP surface: turn creation, the SSE event
// stream, and interruption.
package handler

import (
	"log/slog"
	"net/http"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"sibyl/internal/domain/models/chat"
	"sibyl/internal/handler/sse"
	"sibyl/internal/httputil"
	chatservice "sibyl/internal/service/chat"
)

// ChatHandler serves the turn endpoints.
type ChatHandler struct {
	svc    *chatservice.Service
	logger *slog.Logger
	debug  bool
}

// NewChatHandler creates the chat handler.
func NewChatHandler(svc *chatservice.Service, logger *slog.Logger, debug bool) *ChatHandler {
	return &ChatHandler{svc: svc, logger: logger, debug: debug}
}

// CreateTurnRequest is the body of POST /api/chats/{chatID}/turns.
type CreateTurnRequest struct {
	Message    string `json:"message"`
	Model      string `json:"model,omitempty"`
	ShouldCite *bool  `json:"should_cite,omitempty"`
}

// Validate implements request validation.
func (r CreateTurnRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Message, validation.Required, validation.Length(1, 32000)),
		validation.Field(&r.Model, validation.Length(0, 100)),
	)
}

// CreateTurnResponse is the body returned on turn creation.
type CreateTurnResponse struct {
	TurnID    string `json:"turn_id"`
	ChatID    string `json:"chat_id"`
	Model     string `json:"model"`
	StreamURL string `json:"stream_url"`
}

// CreateTurn handles POST /api/chats/{chatID}/turns.
func (h *ChatHandler) CreateTurn(w http.ResponseWriter, r *http.Request) {
	chatID := r.PathValue("chatID")
	userID := httputil.GetUserID(r)

	var req CreateTurnRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	shouldCite := true
	if req.ShouldCite != nil {
		shouldCite = *req.ShouldCite
	}

	turn, err := h.svc.StartTurn(r.Context(), chatservice.StartTurnParams{
		ChatID:     chatID,
		UserID:     userID,
		Model:      req.Model,
		Message:    req.Message,
		ShouldCite: shouldCite,
	})
	if err != nil {
		respondDomainError(w, h.logger, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, CreateTurnResponse{
		TurnID:    turn.ID,
		ChatID:    turn.ChatID,
		Model:     turn.Model,
		StreamURL: "/api/turns/" + turn.ID + "/stream",
	})
}

// StreamTurn handles GET /api/turns/{turnID}/stream. It drains the turn's
// bridge into an SSE stream. Client disconnects abandon the producer; the
// turn finishes in the background.
func (h *ChatHandler) StreamTurn(w http.ResponseWriter, r *http.Request) {
	turnID := r.PathValue("turnID")
	userID := httputil.GetUserID(r)

	bridge, err := h.svc.Stream(turnID, userID)
	if err != nil {
		respondDomainError(w, h.logger, err)
		return
	}

	writer, err := sse.NewWriter(w, h.debug)
	if err != nil {
		httputil.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctx := r.Context()
	alive := func() bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		// The idle poll doubles as the keepalive tick; a failed write
		// means the client is gone.
		return writer.KeepAlive() == nil
	}

	runErr := bridge.Run(alive, writer.WriteEvent)
	h.svc.Release(turnID)

	if runErr != nil {
		h.logger.Warn("turn stream ended with error", "turn_id", turnID, "error", runErr)
		// Best effort: the client may already be gone.
		_ = writer.WriteEvent(chat.Exception{Err: runErr})
	}
}

// InterruptTurn handles POST /api/turns/{turnID}/interrupt.
func (h *ChatHandler) InterruptTurn(w http.ResponseWriter, r *http.Request) {
	turnID := r.PathValue("turnID")
	userID := httputil.GetUserID(r)

	if err := h.svc.Interrupt(turnID, userID); err != nil {
		respondDomainError(w, h.logger, err)
		return
	}
	httputil.RespondJSON(w, http.StatusAccepted, map[string]string{"status": "interrupting"})
}

// TurnResponse is the body of GET /api/turns/{turnID}.
type TurnResponse struct {
	ID          string  `json:"id"`
	ChatID      string  `json:"chat_id"`
	Model       string  `json:"model"`
	Status      string  `json:"status"`
	Error       *string `json:"error,omitempty"`
	CreatedAt   string  `json:"created_at"`
	CompletedAt *string `json:"completed_at,omitempty"`
}

// GetTurn handles GET /api/turns/{turnID}.
func (h *ChatHandler) GetTurn(w http.ResponseWriter, r *http.Request) {
	turnID := r.PathValue("turnID")
	userID := httputil.GetUserID(r)

	turn, err := h.svc.GetTurn(r.Context(), turnID, userID)
	if err != nil {
		respondDomainError(w, h.logger, err)
		return
	}

	resp := TurnResponse{
		ID:        turn.ID,
		ChatID:    turn.ChatID,
		Model:     turn.Model,
		Status:    string(turn.Status),
		Error:     turn.Error,
		CreatedAt: turn.CreatedAt.Format(time.RFC3339),
	}
	if turn.CompletedAt != nil {
		s := turn.CompletedAt.Format(time.RFC3339)
		resp.CompletedAt = &s
	}
	httputil.RespondJSON(w, http.StatusOK, resp)
}
