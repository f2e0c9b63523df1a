package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/autoflowai/autoflow/internal/conversation"
	"github.com/autoflowai/autoflow/pkg/logging"
)

// ConversationAdminStore is the slice of the conversation store the admin
// endpoints need.
type ConversationAdminStore interface {
	Reactivate(ctx context.Context, profileID, id string) error
}

// AdminConversationsHandler serves the dashboard's conversation controls.
type AdminConversationsHandler struct {
	store  ConversationAdminStore
	logger *logging.Logger
}

// NewAdminConversationsHandler wires the admin conversation endpoints.
func NewAdminConversationsHandler(store ConversationAdminStore, logger *logging.Logger) *AdminConversationsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminConversationsHandler{store: store, logger: logger}
}

type reactivateRequest struct {
	ProfileID string `json:"profile_id"`
}

// Reactivate puts an escalated conversation back under AI control. This is
// the only path out of the escalated state.
func (h *AdminConversationsHandler) Reactivate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")

	var req reactivateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ProfileID == "" {
		writeJSONError(w, http.StatusBadRequest, "profile_id is required")
		return
	}

	if err := h.store.Reactivate(r.Context(), req.ProfileID, id); err != nil {
		if errors.Is(err, conversation.ErrConversationNotFound) {
			writeJSONError(w, http.StatusNotFound, "conversation not found")
			return
		}
		h.logger.Error("conversation reactivate failed", "error", err, "conversation_id", id)
		writeJSONError(w, http.StatusInternalServerError, "failed to reactivate conversation")
		return
	}

	h.logger.Info("conversation reactivated", "conversation_id", id, "profile_id", req.ProfileID)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
