package handlers

import (
	"context"
	"net/http"

	"github.com/autoflowai/autoflow/internal/followup"
	"github.com/autoflowai/autoflow/internal/reminders"
	"github.com/autoflowai/autoflow/pkg/logging"
)

// ReminderSweeper runs one reminder pass.
type ReminderSweeper interface {
	ProcessDue(ctx context.Context) (reminders.Result, error)
}

// FollowUpEngine runs one follow-up pass.
type FollowUpEngine interface {
	ProcessDue(ctx context.Context) (followup.Result, error)
}

// CronHandler exposes the scheduler trigger endpoints. Authentication is
// applied in the router, before these run.
type CronHandler struct {
	reminders ReminderSweeper
	followups FollowUpEngine
	logger    *logging.Logger
}

// NewCronHandler wires the cron endpoints.
func NewCronHandler(reminderSweeper ReminderSweeper, followUpEngine FollowUpEngine, logger *logging.Logger) *CronHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &CronHandler{
		reminders: reminderSweeper,
		followups: followUpEngine,
		logger:    logger,
	}
}

// RunReminders triggers a reminder sweep.
func (h *CronHandler) RunReminders(w http.ResponseWriter, r *http.Request) {
	res, err := h.reminders.ProcessDue(r.Context())
	if err != nil {
		h.logger.Error("reminder sweep failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "reminder sweep failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"sent_24h": res.Sent24h,
		"sent_2h":  res.Sent2h,
		"errors":   res.Errors,
	})
}

// RunFollowUps triggers a follow-up sweep.
func (h *CronHandler) RunFollowUps(w http.ResponseWriter, r *http.Request) {
	res, err := h.followups.ProcessDue(r.Context())
	if err != nil {
		h.logger.Error("follow-up sweep failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "follow-up sweep failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"processed": res.Processed,
		"sent":      res.Sent,
		"errors":    res.Errors,
	})
}
