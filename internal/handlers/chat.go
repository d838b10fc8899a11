package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eldtechnologies/pricechat/internal/chat"
	"github.com/eldtechnologies/pricechat/internal/models"
)

// SendRequest is the body of POST /chat/send.
type SendRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// SendResponse carries the assistant reply. Data repeats the reply's payload.
type SendResponse struct {
	SessionID string         `json:"session_id"`
	Response  models.Message `json:"response"`
	Data      any            `json:"data"`
}

// HistoryResponse lists a session's messages.
type HistoryResponse struct {
	SessionID string           `json:"session_id"`
	Messages  []models.Message `json:"messages"`
	Welcome   string           `json:"welcome"`
}

// SendMessage handles POST /chat/send.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := decode(r, &req); err != nil {
		// Any body over the limit holds a message over the length limit.
		if tooLarge(err) {
			verr := models.NewValidationError("message", fmt.Sprintf("must be at most %d characters", chat.MaxMessageLength))
			h.Error(w, http.StatusUnprocessableEntity, verr.Error())
			return
		}
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	resp, err := h.chat.Send(r.Context(), req.SessionID, req.Message)
	if err != nil {
		h.chatError(w, r, err)
		return
	}

	h.JSON(w, http.StatusOK, SendResponse{
		SessionID: resp.SessionID,
		Response:  resp.Message,
		Data:      resp.Message.Data,
	})
}

// GetHistory handles GET /chat/history/{session_id}.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session_id")

	messages, err := h.chat.History(r.Context(), id)
	if err != nil {
		h.chatError(w, r, err)
		return
	}

	h.JSON(w, http.StatusOK, HistoryResponse{
		SessionID: id,
		Messages:  messages,
		Welcome:   h.chat.Welcome(),
	})
}

// DeleteHistory handles DELETE /chat/history/{session_id}.
func (h *Handler) DeleteHistory(w http.ResponseWriter, r *http.Request) {
	if err := h.chat.Reset(r.Context(), chi.URLParam(r, "session_id")); err != nil {
		h.chatError(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, map[string]string{"message": "session deleted"})
}

// chatError maps validation failures to 422 and anything else to 500.
func (h *Handler) chatError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		h.Error(w, http.StatusUnprocessableEntity, verr.Error())
		return
	}
	h.logger.Error().Err(err).Str("path", r.URL.Path).Msg("Chat request failed")
	h.Error(w, http.StatusInternalServerError, "internal error")
}
