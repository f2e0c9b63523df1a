package intake

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/autoflowai/autoflow/internal/conversation"
	"github.com/autoflowai/autoflow/internal/leads"
	"github.com/autoflowai/autoflow/internal/profiles"
	"github.com/autoflowai/autoflow/pkg/logging"
)

// The missed-call status callback and the recording callback race each other.
// Any lead from the same caller inside this window counts as the same call.
const dedupeWindow = 5 * time.Minute

// LeadStore is the slice of the leads store the intake paths need.
type LeadStore interface {
	Create(ctx context.Context, req *leads.CreateLeadRequest) (*leads.Lead, error)
	FindRecentByPhone(ctx context.Context, profileID, phone string, since time.Time) (*leads.Lead, error)
	FindLatestBySource(ctx context.Context, profileID, phone string, source leads.Source) (*leads.Lead, error)
	ApplyFieldUpdates(ctx context.Context, id string, updates leads.FieldUpdates) error
	SetAIResponseSent(ctx context.Context, id, response string) error
	AppendActivity(ctx context.Context, leadID, profileID string, kind leads.ActivityType, description string) error
}

// ConversationStore opens threads and records turns.
type ConversationStore interface {
	Create(ctx context.Context, req conversation.CreateConversationRequest) (*conversation.Conversation, error)
	AppendMessage(ctx context.Context, msg conversation.Message) (string, error)
}

// SMSSender delivers the instant text-back.
type SMSSender interface {
	SendSMS(ctx context.Context, from, to, body string) (string, error)
}

// Notifier alerts the business owner about telephony events.
type Notifier interface {
	NotifyMissedCall(ctx context.Context, profile *profiles.Profile, lead *leads.Lead, textBackSent bool) error
	NotifyVoicemail(ctx context.Context, profile *profiles.Profile, lead *leads.Lead, transcript string) error
}

// Analyzer runs the one-shot lead classification for voicemail transcripts.
type Analyzer interface {
	AnalyzeLead(ctx context.Context, name, message string, profile *profiles.Profile) (conversation.LeadAnalysis, error)
}

// Metrics counts intake outcomes.
type Metrics interface {
	MissedCallHandled(textBackSent bool)
	VoicemailHandled()
}

// Service turns telephony signals into leads and conversations. Unlike the
// SMS orchestrator it never calls the conversational classifier: the
// text-back is a fixed template because there is no customer message yet.
type Service struct {
	leadStore LeadStore
	convStore ConversationStore
	sms       SMSSender
	notifier  Notifier
	analyzer  Analyzer
	metrics   Metrics
	logger    *logging.Logger

	now func() time.Time
}

// NewService wires an intake service.
func NewService(
	leadStore LeadStore,
	convStore ConversationStore,
	sms SMSSender,
	notifier Notifier,
	analyzer Analyzer,
	metrics Metrics,
	logger *logging.Logger,
) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		leadStore: leadStore,
		convStore: convStore,
		sms:       sms,
		notifier:  notifier,
		analyzer:  analyzer,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// TextBackMessage returns the templated missed-call reply for the profile's
// configured tone.
func TextBackMessage(profile *profiles.Profile) string {
	name := profile.DisplayName()
	switch profile.ResponseTone {
	case profiles.ToneProfessional:
		return fmt.Sprintf("Hi, Thanks for calling %s. We missed your call but want to help. Could you let us know what you need?", name)
	case profiles.ToneCasual:
		return fmt.Sprintf("Hey! Sorry we missed your call to %s. We're probably on a job right now. What can we help you with?", name)
	default:
		return fmt.Sprintf("Hi, Thanks for calling %s. Sorry we couldn't get to the phone - we're likely on a job. How can we help?", name)
	}
}

// HandleMissedCall processes an unanswered call: ensures a lead exists,
// sends the instant text-back, and opens the SMS conversation the customer's
// reply will land in.
func (s *Service) HandleMissedCall(ctx context.Context, profile *profiles.Profile, callerNumber, businessNumber string) error {
	lead, err := s.leadStore.FindRecentByPhone(ctx, profile.ID, callerNumber, s.now().Add(-dedupeWindow))
	if err != nil {
		return fmt.Errorf("intake: missed-call lead lookup: %w", err)
	}
	if lead != nil {
		s.logger.Info("missed call matched to recent lead", "lead_id", lead.ID, "caller", callerNumber)
	} else {
		lead, err = s.leadStore.Create(ctx, &leads.CreateLeadRequest{
			ProfileID: profile.ID,
			Name:      callerNumber,
			Phone:     callerNumber,
			Message:   fmt.Sprintf("Missed call from %s", callerNumber),
			Source:    leads.SourceMissedCall,
			Urgency:   leads.UrgencyHot,
			Category:  "Missed Call",
			AISummary: "Customer called but nobody answered. Automatic text-back sent.",
		})
		if err != nil {
			return fmt.Errorf("intake: create missed-call lead: %w", err)
		}
		s.logger.Info("missed-call lead created", "lead_id", lead.ID, "caller", callerNumber)
	}

	textBack := TextBackMessage(profile)
	sid, sendErr := s.sms.SendSMS(ctx, businessNumber, callerNumber, textBack)
	sent := sendErr == nil
	if sendErr != nil {
		s.logger.Error("text-back send failed", "error", sendErr, "caller", callerNumber, "lead_id", lead.ID)
	}

	// The conversation only exists once the text-back is out. A failed send
	// means there is no first turn for the customer to reply to.
	if sent {
		conv, err := s.convStore.Create(ctx, conversation.CreateConversationRequest{
			ProfileID:      profile.ID,
			LeadID:         lead.ID,
			CustomerNumber: callerNumber,
			BusinessNumber: businessNumber,
			Stage:          conversation.StageGreeting,
		})
		if err != nil {
			s.logger.Error("text-back conversation create failed", "error", err, "lead_id", lead.ID)
		} else {
			if _, err := s.convStore.AppendMessage(ctx, conversation.Message{
				ConversationID:    conv.ID,
				Direction:         conversation.DirectionOutbound,
				Sender:            conversation.SenderAI,
				Body:              textBack,
				ProviderMessageID: sid,
			}); err != nil {
				s.logger.Error("text-back message append failed", "error", err, "conversation_id", conv.ID)
			}
		}

		if err := s.leadStore.SetAIResponseSent(ctx, lead.ID, textBack); err != nil {
			s.logger.Error("text-back flag update failed", "error", err, "lead_id", lead.ID)
		}
	}

	activity := fmt.Sprintf("Missed call detected. Instant text-back sent: %q", truncate(textBack, 80))
	if !sent {
		activity = "Missed call detected. Instant text-back failed to send."
	}
	if err := s.leadStore.AppendActivity(ctx, lead.ID, profile.ID, leads.ActivityTextBack, activity); err != nil {
		s.logger.Error("missed-call activity append failed", "error", err, "lead_id", lead.ID)
	}

	if s.notifier != nil {
		if err := s.notifier.NotifyMissedCall(ctx, profile, lead, sent); err != nil {
			s.logger.Error("missed-call owner notification failed", "error", err, "lead_id", lead.ID)
		}
	}
	if s.metrics != nil {
		s.metrics.MissedCallHandled(sent)
	}
	return nil
}

// HandleVoicemail processes a transcription callback. A lead left behind by
// the missed-call path is upgraded in place; otherwise a fresh one is created
// from the transcript.
func (s *Service) HandleVoicemail(ctx context.Context, profile *profiles.Profile, callerNumber, transcript string) error {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		s.logger.Debug("voicemail callback without transcription, skipping", "caller", callerNumber)
		return nil
	}

	analysis, err := s.analyzer.AnalyzeLead(ctx, callerNumber, "[Voicemail transcription]: "+transcript, profile)
	if err != nil {
		s.logger.Error("voicemail analysis failed, using defaults", "error", err, "caller", callerNumber)
		analysis = conversation.LeadAnalysis{
			Urgency:  leads.UrgencyWarm,
			Category: "Voicemail",
		}
	}

	existing, err := s.leadStore.FindLatestBySource(ctx, profile.ID, callerNumber, leads.SourceMissedCall)
	if err != nil {
		return fmt.Errorf("intake: voicemail lead lookup: %w", err)
	}

	var lead *leads.Lead
	if existing != nil {
		source := leads.SourceVoicemail
		updates := leads.FieldUpdates{
			Source:    &source,
			Message:   &transcript,
			Urgency:   &analysis.Urgency,
			Category:  &analysis.Category,
			AISummary: &analysis.Summary,
		}
		if err := s.leadStore.ApplyFieldUpdates(ctx, existing.ID, updates); err != nil {
			return fmt.Errorf("intake: update lead from voicemail: %w", err)
		}
		existing.Source = leads.SourceVoicemail
		existing.Message = transcript
		existing.Urgency = analysis.Urgency
		existing.Category = analysis.Category
		existing.AISummary = analysis.Summary
		lead = existing

		desc := fmt.Sprintf("Voicemail received and transcribed: %q", truncate(transcript, 100))
		if err := s.leadStore.AppendActivity(ctx, lead.ID, profile.ID, leads.ActivityNote, desc); err != nil {
			s.logger.Error("voicemail activity append failed", "error", err, "lead_id", lead.ID)
		}
	} else {
		lead, err = s.leadStore.Create(ctx, &leads.CreateLeadRequest{
			ProfileID: profile.ID,
			Name:      callerNumber,
			Phone:     callerNumber,
			Message:   transcript,
			Source:    leads.SourceVoicemail,
			Urgency:   analysis.Urgency,
			Category:  analysis.Category,
			AISummary: analysis.Summary,
		})
		if err != nil {
			return fmt.Errorf("intake: create voicemail lead: %w", err)
		}
	}

	if analysis.SuggestedReply != "" {
		if err := s.leadStore.SetAIResponseSent(ctx, lead.ID, analysis.SuggestedReply); err != nil {
			s.logger.Error("voicemail suggested-reply update failed", "error", err, "lead_id", lead.ID)
		}
	}

	if s.notifier != nil {
		if err := s.notifier.NotifyVoicemail(ctx, profile, lead, transcript); err != nil {
			s.logger.Error("voicemail owner notification failed", "error", err, "lead_id", lead.ID)
		}
	}
	if s.metrics != nil {
		s.metrics.VoicemailHandled()
	}
	s.logger.Info("voicemail processed", "lead_id", lead.ID, "urgency", string(lead.Urgency))
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
