package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/autoflowai/autoflow/internal/conversation"
	"github.com/autoflowai/autoflow/internal/leads"
	"github.com/autoflowai/autoflow/internal/profiles"
	"github.com/autoflowai/autoflow/pkg/logging"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Urgency decides how soon the first automated follow-up fires.
var followUpDelay = map[leads.Urgency]time.Duration{
	leads.UrgencyHot:  2 * time.Hour,
	leads.UrgencyWarm: 24 * time.Hour,
	leads.UrgencyCold: 48 * time.Hour,
}

// APIKeyResolver authenticates web-form submissions.
type APIKeyResolver interface {
	GetByAPIKey(ctx context.Context, apiKey string) (*profiles.Profile, error)
}

// LeadWriter is the slice of the leads store the web intake needs.
type LeadWriter interface {
	Create(ctx context.Context, req *leads.CreateLeadRequest) (*leads.Lead, error)
	SetAIResponseSent(ctx context.Context, id, response string) error
	AppendActivity(ctx context.Context, leadID, profileID string, kind leads.ActivityType, description string) error
}

// LeadAnalyzer classifies a fresh lead.
type LeadAnalyzer interface {
	AnalyzeLead(ctx context.Context, name, message string, profile *profiles.Profile) (conversation.LeadAnalysis, error)
}

// LeadMailer sends the auto-reply and the owner notification.
type LeadMailer interface {
	SendLeadEmail(ctx context.Context, profile *profiles.Profile, lead *leads.Lead, subject, body string) error
	NotifyNewLead(ctx context.Context, profile *profiles.Profile, lead *leads.Lead) error
}

// LeadWebhookHandler ingests website form submissions.
type LeadWebhookHandler struct {
	profiles APIKeyResolver
	leads    LeadWriter
	analyzer LeadAnalyzer
	mailer   LeadMailer
	logger   *logging.Logger

	now func() time.Time
}

// NewLeadWebhookHandler wires the web-form intake handler.
func NewLeadWebhookHandler(profileSrc APIKeyResolver, leadStore LeadWriter, analyzer LeadAnalyzer, mailer LeadMailer, logger *logging.Logger) *LeadWebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &LeadWebhookHandler{
		profiles: profileSrc,
		leads:    leadStore,
		analyzer: analyzer,
		mailer:   mailer,
		logger:   logger,
		now:      time.Now,
	}
}

type leadWebhookRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Message string `json:"message"`
	APIKey  string `json:"api_key"`
	Source  string `json:"source"`
}

type leadWebhookResponse struct {
	Success       bool   `json:"success"`
	LeadID        string `json:"lead_id"`
	Urgency       string `json:"urgency"`
	AutoReplySent bool   `json:"auto_reply_sent"`
}

// Handle processes one form submission.
func (h *LeadWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var req leadWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if strings.TrimSpace(req.Name) == "" || req.Email == "" || strings.TrimSpace(req.Message) == "" || req.APIKey == "" {
		writeJSONError(w, http.StatusBadRequest, "missing required fields: name, email, message, api_key")
		return
	}
	if !emailPattern.MatchString(req.Email) {
		writeJSONError(w, http.StatusBadRequest, "invalid email format")
		return
	}

	profile, err := h.profiles.GetByAPIKey(r.Context(), req.APIKey)
	if err != nil || profile == nil {
		writeJSONError(w, http.StatusUnauthorized, "invalid API key")
		return
	}

	analysis, err := h.analyzer.AnalyzeLead(r.Context(), req.Name, req.Message, profile)
	if err != nil {
		h.logger.Error("lead analysis failed, using defaults", "error", err)
		analysis = conversation.LeadAnalysis{Urgency: leads.UrgencyWarm, Category: "General Enquiry"}
	}

	nextFollowUp := h.now().Add(followUpDelay[analysis.Urgency])
	lead, err := h.leads.Create(r.Context(), &leads.CreateLeadRequest{
		ProfileID:      profile.ID,
		Name:           req.Name,
		Email:          req.Email,
		Phone:          req.Phone,
		Message:        req.Message,
		Source:         webhookSource(req.Source),
		Urgency:        analysis.Urgency,
		Category:       analysis.Category,
		AISummary:      analysis.Summary,
		NextFollowUpAt: &nextFollowUp,
	})
	if err != nil {
		h.logger.Error("lead insert failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to save lead")
		return
	}

	autoReplySent := false
	if profile.AutoReplyEnabled && analysis.SuggestedReply != "" {
		subject := fmt.Sprintf("Re: Your enquiry to %s", profile.DisplayName())
		if err := h.mailer.SendLeadEmail(r.Context(), profile, lead, subject, analysis.SuggestedReply); err != nil {
			h.logger.Error("auto-reply send failed", "error", err, "lead_id", lead.ID)
		} else {
			autoReplySent = true
			if err := h.leads.SetAIResponseSent(r.Context(), lead.ID, analysis.SuggestedReply); err != nil {
				h.logger.Error("auto-reply flag update failed", "error", err, "lead_id", lead.ID)
			}
			desc := fmt.Sprintf("AI auto-reply sent to %s", lead.Email)
			if err := h.leads.AppendActivity(r.Context(), lead.ID, profile.ID, leads.ActivityAutoReply, desc); err != nil {
				h.logger.Error("auto-reply activity append failed", "error", err, "lead_id", lead.ID)
			}
		}
	}

	if err := h.mailer.NotifyNewLead(r.Context(), profile, lead); err != nil {
		h.logger.Error("new-lead owner notification failed", "error", err, "lead_id", lead.ID)
	}

	h.logger.Info("web lead ingested", "lead_id", lead.ID, "urgency", string(lead.Urgency), "auto_reply", autoReplySent)
	writeJSON(w, http.StatusOK, leadWebhookResponse{
		Success:       true,
		LeadID:        lead.ID,
		Urgency:       string(lead.Urgency),
		AutoReplySent: autoReplySent,
	})
}

func webhookSource(s string) leads.Source {
	switch leads.Source(s) {
	case leads.SourceManual:
		return leads.SourceManual
	default:
		return leads.SourceWeb
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
