package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/autoflowai/autoflow/internal/leads"
	"github.com/autoflowai/autoflow/internal/profiles"
	"github.com/autoflowai/autoflow/pkg/logging"
)

// Service handles sending notifications to business owners and leads.
type Service struct {
	email  EmailSender
	logger *logging.Logger
}

// NewService creates a notification service.
func NewService(email EmailSender, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		email:  email,
		logger: logger,
	}
}

// NotifyEscalation emails the business owner when a conversation is handed off
// from the AI to a human.
func (s *Service) NotifyEscalation(ctx context.Context, profile *profiles.Profile, lead *leads.Lead, reason, lastMessage string) error {
	if !s.canEmailOwner(profile) {
		return nil
	}

	name := leadDisplayName(lead)
	subject := fmt.Sprintf("🚨 Conversation Needs Your Attention - %s", name)
	body := fmt.Sprintf(`The AI has handed a conversation over to you.

Customer: %s
Phone: %s
Reason: %s

Their last message:
"%s"

Reply to them directly by text. The AI will stay out of this thread until you re-enable it from the dashboard.

— %s AI`, name, lead.Phone, reason, lastMessage, profile.DisplayName())

	html := fmt.Sprintf(`<div style="font-family: sans-serif; max-width: 600px;">
<h2 style="color: #ef4444;">🚨 Conversation Needs Your Attention</h2>
<table style="border-collapse: collapse; margin: 20px 0;">
  %s%s%s
</table>
<blockquote style="background: #f9fafb; padding: 12px; border-radius: 8px; border-left: 4px solid #ef4444; margin: 0;">%s</blockquote>
<p>Reply to them directly by text. The AI will stay out of this thread until you re-enable it from the dashboard.</p>
<p style="color: #6b7280; font-size: 12px; margin-top: 20px;">— %s AI</p>
</div>`,
		detailRowHTML("Customer", name),
		phoneRowHTML(lead.Phone),
		detailRowHTML("Reason", reason),
		lastMessage, profile.DisplayName())

	return s.sendOwner(ctx, profile, subject, body, html, lead.ID)
}

// NotifyEscalatedReply emails the owner when a customer texts into a thread
// that is already escalated. The AI does not answer these, so the owner must.
func (s *Service) NotifyEscalatedReply(ctx context.Context, profile *profiles.Profile, lead *leads.Lead, message string) error {
	if !s.canEmailOwner(profile) {
		return nil
	}

	name := leadDisplayName(lead)
	subject := fmt.Sprintf("💬 New Reply From %s", name)
	body := fmt.Sprintf(`%s replied on a conversation you are handling.

Phone: %s

Their message:
"%s"

The AI is paused on this thread, so this is on you to answer.

— %s AI`, name, lead.Phone, message, profile.DisplayName())

	return s.sendOwner(ctx, profile, subject, body, "", lead.ID)
}

// NotifyMissedCall emails the owner after an unanswered call, noting whether
// the automatic text-back reached the caller.
func (s *Service) NotifyMissedCall(ctx context.Context, profile *profiles.Profile, lead *leads.Lead, textBackSent bool) error {
	if !s.canEmailOwner(profile) {
		return nil
	}

	name := leadDisplayName(lead)
	subject := fmt.Sprintf("📞 Missed Call - %s", name)
	textBackLine := "We texted them back right away, so keep an eye on the conversation."
	if !textBackSent {
		textBackLine = "The automatic text-back could not be sent. Please call them back."
	}
	body := fmt.Sprintf(`You missed a call from %s.

Phone: %s

%s

— %s AI`, name, lead.Phone, textBackLine, profile.DisplayName())

	return s.sendOwner(ctx, profile, subject, body, "", lead.ID)
}

// NotifyVoicemail emails the owner a voicemail transcription.
func (s *Service) NotifyVoicemail(ctx context.Context, profile *profiles.Profile, lead *leads.Lead, transcript string) error {
	if !s.canEmailOwner(profile) {
		return nil
	}

	name := leadDisplayName(lead)
	subject := fmt.Sprintf("🎙️ New Voicemail - %s", name)
	if strings.TrimSpace(transcript) == "" {
		transcript = "(no transcription available)"
	}
	body := fmt.Sprintf(`%s left you a voicemail.

Phone: %s

Transcription:
"%s"

— %s AI`, name, lead.Phone, transcript, profile.DisplayName())

	return s.sendOwner(ctx, profile, subject, body, "", lead.ID)
}

// NotifyNewLead emails the owner when a new lead comes in from the website.
func (s *Service) NotifyNewLead(ctx context.Context, profile *profiles.Profile, lead *leads.Lead) error {
	if !s.canEmailOwner(profile) {
		return nil
	}

	name := leadDisplayName(lead)
	subject := fmt.Sprintf("🆕 New Lead - %s", name)
	body := fmt.Sprintf(`A new lead has come in!

Name: %s
Phone: %s
Email: %s
Source: %s
Urgency: %s
Category: %s
Message: %s
%s
— %s AI`, name, lead.Phone, lead.Email, lead.Source, lead.Urgency, lead.Category, lead.Message, summaryLine(lead.AISummary), profile.DisplayName())

	html := fmt.Sprintf(`<div style="font-family: sans-serif; max-width: 600px;">
<h2 style="color: #10b981;">🆕 New Lead</h2>
<table style="border-collapse: collapse; margin: 20px 0;">
  %s%s%s%s%s%s
</table>
<blockquote style="background: #f9fafb; padding: 12px; border-radius: 8px; border-left: 4px solid #10b981; margin: 0;">%s</blockquote>
<p style="color: #6b7280; font-size: 12px; margin-top: 20px;">— %s AI</p>
</div>`,
		detailRowHTML("Name", name),
		phoneRowHTML(lead.Phone),
		detailRowHTML("Email", lead.Email),
		detailRowHTML("Source", string(lead.Source)),
		detailRowHTML("Urgency", string(lead.Urgency)),
		detailRowHTML("Category", lead.Category),
		lead.Message, profile.DisplayName())

	return s.sendOwner(ctx, profile, subject, body, html, lead.ID)
}

// SendLeadEmail sends an AI-written message to the lead on behalf of the
// business. Used for website auto-replies and email follow-ups.
func (s *Service) SendLeadEmail(ctx context.Context, profile *profiles.Profile, lead *leads.Lead, subject, body string) error {
	if s.email == nil {
		s.logger.Debug("notify: email sender not configured, skipping lead email")
		return nil
	}
	if lead.Email == "" {
		s.logger.Debug("notify: lead has no email address, skipping", "lead_id", lead.ID)
		return nil
	}

	msg := EmailMessage{
		To:      lead.Email,
		ToName:  lead.Name,
		Subject: subject,
		Body:    body,
	}
	if err := s.email.Send(ctx, msg); err != nil {
		s.logger.Error("notify: failed to email lead", "error", err, "lead_id", lead.ID)
		return fmt.Errorf("notify: send lead email: %w", err)
	}
	s.logger.Info("notify: lead email sent", "lead_id", lead.ID, "subject", subject)
	return nil
}

func (s *Service) canEmailOwner(profile *profiles.Profile) bool {
	if s.email == nil {
		s.logger.Debug("notify: email sender not configured, skipping owner notification")
		return false
	}
	if profile == nil || profile.Email == "" {
		s.logger.Debug("notify: profile has no owner email, skipping")
		return false
	}
	return true
}

func (s *Service) sendOwner(ctx context.Context, profile *profiles.Profile, subject, body, html, leadID string) error {
	msg := EmailMessage{
		To:      profile.Email,
		ToName:  profile.BusinessName,
		Subject: subject,
		Body:    body,
		HTML:    html,
	}
	if err := s.email.Send(ctx, msg); err != nil {
		s.logger.Error("notify: failed to email owner", "error", err, "to", profile.Email, "lead_id", leadID)
		return fmt.Errorf("notify: send owner email: %w", err)
	}
	s.logger.Info("notify: owner email sent", "to", profile.Email, "subject", subject, "lead_id", leadID)
	return nil
}

func leadDisplayName(lead *leads.Lead) string {
	if lead == nil || strings.TrimSpace(lead.Name) == "" {
		return "Unknown caller"
	}
	return lead.Name
}

func summaryLine(summary string) string {
	if summary == "" {
		return ""
	}
	return fmt.Sprintf("\nAI Summary: %s\n", summary)
}

func detailRowHTML(label, value string) string {
	if value == "" {
		return ""
	}
	return fmt.Sprintf(`<tr><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;"><strong>%s:</strong></td><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;">%s</td></tr>`, label, value)
}

func phoneRowHTML(phone string) string {
	if phone == "" {
		return ""
	}
	return fmt.Sprintf(`<tr><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;"><strong>Phone:</strong></td><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;"><a href="tel:%s">%s</a></td></tr>`, phone, phone)
}
