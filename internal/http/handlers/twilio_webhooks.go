package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/autoflowai/autoflow/internal/conversation"
	"github.com/autoflowai/autoflow/internal/messaging"
	"github.com/autoflowai/autoflow/internal/profiles"
	"github.com/autoflowai/autoflow/pkg/logging"
)

// ProfileResolver maps an inbound telephony number to its business.
type ProfileResolver interface {
	GetByTwilioNumber(ctx context.Context, number string) (*profiles.Profile, error)
}

// ConversationEngine is the SMS orchestrator entry point.
type ConversationEngine interface {
	HandleInbound(ctx context.Context, in conversation.InboundSMS) error
}

// IntakeService handles the telephony signals that precede any SMS.
type IntakeService interface {
	HandleMissedCall(ctx context.Context, profile *profiles.Profile, callerNumber, businessNumber string) error
	HandleVoicemail(ctx context.Context, profile *profiles.Profile, callerNumber, transcript string) error
}

// Deduper filters replayed provider deliveries.
type Deduper interface {
	FirstDelivery(ctx context.Context, providerMessageID string) (bool, error)
}

// WebhookMetrics observes webhook handling.
type WebhookMetrics interface {
	ObserveWebhookLatency(webhook string, seconds float64)
}

// TwilioWebhookHandler terminates the Twilio callbacks. Whatever goes wrong
// internally, the provider always gets a well-formed TwiML response: a
// failed acknowledgement would make Twilio redeliver an event that may be
// half-processed already.
type TwilioWebhookHandler struct {
	profiles  ProfileResolver
	engine    ConversationEngine
	intake    IntakeService
	deduper   Deduper
	metrics   WebhookMetrics
	logger    *logging.Logger
	authToken string
	baseURL   string // public URL Twilio signs against, e.g. https://api.example.com
}

// NewTwilioWebhookHandler wires the webhook handler. An empty authToken
// disables signature validation (local development).
func NewTwilioWebhookHandler(
	profileSrc ProfileResolver,
	engine ConversationEngine,
	intakeSvc IntakeService,
	deduper Deduper,
	metrics WebhookMetrics,
	authToken, baseURL string,
	logger *logging.Logger,
) *TwilioWebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &TwilioWebhookHandler{
		profiles:  profileSrc,
		engine:    engine,
		intake:    intakeSvc,
		deduper:   deduper,
		metrics:   metrics,
		logger:    logger,
		authToken: authToken,
		baseURL:   baseURL,
	}
}

const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// HandleSMS processes an inbound SMS callback.
func (h *TwilioWebhookHandler) HandleSMS(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer h.observe("sms", start)

	if !h.verifySignature(r) {
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}

	inbound, err := messaging.ParseInboundSMS(r)
	if err != nil {
		h.logger.Error("sms webhook parse failed", "error", err)
		writeTwiML(w, emptyTwiML)
		return
	}

	if h.deduper != nil {
		first, err := h.deduper.FirstDelivery(r.Context(), inbound.MessageSid)
		if err != nil {
			h.logger.Error("sms dedupe check failed, processing anyway", "error", err, "sid", inbound.MessageSid)
		} else if !first {
			h.logger.Info("duplicate sms delivery ignored", "sid", inbound.MessageSid)
			writeTwiML(w, emptyTwiML)
			return
		}
	}

	profile, err := h.profiles.GetByTwilioNumber(r.Context(), inbound.To)
	if err != nil || profile == nil {
		h.logger.Error("no profile for inbound number", "error", err, "to", inbound.To)
		writeTwiML(w, emptyTwiML)
		return
	}

	if err := h.engine.HandleInbound(r.Context(), conversation.InboundSMS{
		Profile:           profile,
		From:              inbound.From,
		To:                inbound.To,
		Body:              inbound.Body,
		ProviderMessageID: inbound.MessageSid,
	}); err != nil {
		h.logger.Error("inbound sms processing failed", "error", err, "from", inbound.From)
	}

	// Replies go out via the REST API, not TwiML.
	writeTwiML(w, emptyTwiML)
}

// HandleVoiceStatus processes a call completion callback: missed calls kick
// off the text-back path, and the caller is offered voicemail either way.
func (h *TwilioWebhookHandler) HandleVoiceStatus(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer h.observe("voice_status", start)

	if !h.verifySignature(r) {
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}

	status, err := messaging.ParseCallStatus(r)
	if err != nil {
		h.logger.Error("voice status parse failed", "error", err)
		writeTwiML(w, hangupTwiML("Sorry, we're experiencing technical difficulties."))
		return
	}

	profile, err := h.profiles.GetByTwilioNumber(r.Context(), status.To)
	if err != nil || profile == nil {
		h.logger.Error("no profile for called number", "error", err, "to", status.To)
		writeTwiML(w, hangupTwiML("Sorry, this number is not currently configured."))
		return
	}

	if status.Missed() {
		if err := h.intake.HandleMissedCall(r.Context(), profile, status.From, status.To); err != nil {
			h.logger.Error("missed-call intake failed", "error", err, "caller", status.From)
		}
	}

	writeTwiML(w, h.voicemailTwiML())
}

// HandleRecording processes the voicemail recording/transcription callback.
func (h *TwilioWebhookHandler) HandleRecording(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer h.observe("recording", start)

	if !h.verifySignature(r) {
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}

	rec, err := messaging.ParseRecording(r)
	if err != nil {
		h.logger.Error("recording webhook parse failed", "error", err)
		writeTwiML(w, `<?xml version="1.0" encoding="UTF-8"?><Response><Hangup/></Response>`)
		return
	}

	profile, err := h.profiles.GetByTwilioNumber(r.Context(), rec.To)
	if err != nil || profile == nil {
		h.logger.Error("no profile for recorded call", "error", err, "to", rec.To)
		writeTwiML(w, `<?xml version="1.0" encoding="UTF-8"?><Response><Hangup/></Response>`)
		return
	}

	if err := h.intake.HandleVoicemail(r.Context(), profile, rec.From, rec.TranscriptionText); err != nil {
		h.logger.Error("voicemail intake failed", "error", err, "caller", rec.From)
	}

	writeTwiML(w, `<?xml version="1.0" encoding="UTF-8"?><Response><Hangup/></Response>`)
}

func (h *TwilioWebhookHandler) verifySignature(r *http.Request) bool {
	if h.authToken == "" {
		return true
	}
	return messaging.ValidateTwilioSignature(r, h.authToken, h.baseURL+r.URL.Path)
}

func (h *TwilioWebhookHandler) voicemailTwiML() string {
	recordingURL := h.baseURL + "/webhooks/twilio/recording"
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<Response>
  <Say voice="alice">Sorry, we can't take your call right now. We've sent you a text message. You can also leave a voicemail after the tone.</Say>
  <Record maxLength="120" action="%s" transcribe="true" transcribeCallback="%s"/>
  <Say voice="alice">We didn't receive a recording. Goodbye.</Say>
</Response>`, recordingURL, recordingURL)
}

func (h *TwilioWebhookHandler) observe(webhook string, start time.Time) {
	if h.metrics != nil {
		h.metrics.ObserveWebhookLatency(webhook, time.Since(start).Seconds())
	}
}

func hangupTwiML(say string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?><Response><Say voice="alice">%s</Say><Hangup/></Response>`, say)
}

func writeTwiML(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}
