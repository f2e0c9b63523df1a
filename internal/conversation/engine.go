package conversation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/autoflowai/autoflow/internal/availability"
	"github.com/autoflowai/autoflow/internal/bookings"
	"github.com/autoflowai/autoflow/internal/leads"
	"github.com/autoflowai/autoflow/internal/profiles"
	"github.com/autoflowai/autoflow/pkg/logging"
)

// FallbackReply goes out when the classifier fails or returns garbage.
// The customer always gets an answer; the owner gets the thread.
const FallbackReply = "Thanks for your message! Let me get someone to help you - we'll be in touch shortly."

// bookingIntentKeywords trigger slot-context assembly even before the
// conversation reaches the booking stage.
var bookingIntentKeywords = []string{"book", "appointment", "schedule", "when", "available", "time"}

// ConversationStore is the persistence surface the engine needs.
type ConversationStore interface {
	FindLatest(ctx context.Context, profileID, customerNumber, businessNumber string) (*Conversation, error)
	Create(ctx context.Context, req CreateConversationRequest) (*Conversation, error)
	AppendMessage(ctx context.Context, msg Message) (string, error)
	RecentTranscript(ctx context.Context, conversationID string, limit int) ([]Message, error)
	SetStage(ctx context.Context, id string, stage Stage) error
	Escalate(ctx context.Context, id, reason string) error
	ClaimBooking(ctx context.Context, id, bookingID string) (bool, error)
	LinkLead(ctx context.Context, id, leadID string) error
}

// LeadStore is the lead persistence surface the engine needs.
type LeadStore interface {
	Create(ctx context.Context, req *leads.CreateLeadRequest) (*leads.Lead, error)
	GetByID(ctx context.Context, profileID, id string) (*leads.Lead, error)
	ApplyFieldUpdates(ctx context.Context, id string, updates leads.FieldUpdates) error
	SetUrgency(ctx context.Context, id string, urgency leads.Urgency) error
	TransitionStatus(ctx context.Context, id string, status leads.Status) error
	AppendActivity(ctx context.Context, leadID, profileID string, kind leads.ActivityType, description string) error
}

// BookingStore commits bookings with the slot-conflict re-check.
type BookingStore interface {
	CreateIfSlotFree(ctx context.Context, req bookings.CreateBookingRequest) (*bookings.Booking, error)
}

// SlotResolver produces open-slot context for the classifier.
type SlotResolver interface {
	Resolve(ctx context.Context, profileID string, now time.Time, loc *time.Location) ([]availability.DayOpenings, error)
}

// SMSSender delivers outbound text messages.
type SMSSender interface {
	SendSMS(ctx context.Context, from, to, body string) (string, error)
}

// OwnerNotifier alerts the business owner about threads needing a human.
type OwnerNotifier interface {
	NotifyEscalation(ctx context.Context, profile *profiles.Profile, lead *leads.Lead, reason, lastMessage string) error
	NotifyEscalatedReply(ctx context.Context, profile *profiles.Profile, lead *leads.Lead, message string) error
}

// EngineMetrics counts orchestrator outcomes. Implementations must accept
// concurrent calls.
type EngineMetrics interface {
	InboundProcessed()
	ClassifierFallback()
	EscalationRecorded(reason string)
	BookingCommitted()
	BookingConflict()
}

// Engine drives one conversational turn per inbound SMS: resolve the
// thread and lead, assemble context, classify, apply side effects, reply.
type Engine struct {
	conversations ConversationStore
	leadStore     LeadStore
	bookingStore  BookingStore
	resolver      SlotResolver
	classifier    Classifier
	sms           SMSSender
	notifier      OwnerNotifier
	metrics       EngineMetrics
	logger        *logging.Logger

	transcriptWindow int
	now              func() time.Time
}

// NewEngine wires the orchestrator.
func NewEngine(
	conversations ConversationStore,
	leadStore LeadStore,
	bookingStore BookingStore,
	resolver SlotResolver,
	classifier Classifier,
	sms SMSSender,
	notifier OwnerNotifier,
	metrics EngineMetrics,
	logger *logging.Logger,
) *Engine {
	return &Engine{
		conversations:    conversations,
		leadStore:        leadStore,
		bookingStore:     bookingStore,
		resolver:         resolver,
		classifier:       classifier,
		sms:              sms,
		notifier:         notifier,
		metrics:          metrics,
		logger:           logger,
		transcriptWindow: 20,
		now:              time.Now,
	}
}

// InboundSMS is one inbound customer text.
type InboundSMS struct {
	Profile           *profiles.Profile
	From              string // customer number
	To                string // business number
	Body              string
	ProviderMessageID string
}

// HandleInbound processes one inbound SMS end to end. Internal failures
// after the message is persisted degrade to the fallback path rather than
// propagate; the webhook boundary always acknowledges.
func (e *Engine) HandleInbound(ctx context.Context, in InboundSMS) error {
	if in.Profile == nil {
		return errors.New("conversation: inbound without profile")
	}
	if e.metrics != nil {
		e.metrics.InboundProcessed()
	}

	conv, lead, err := e.resolveThread(ctx, in)
	if err != nil {
		return err
	}

	if _, err := e.conversations.AppendMessage(ctx, Message{
		ConversationID:    conv.ID,
		Direction:         DirectionInbound,
		Sender:            SenderCustomer,
		Body:              in.Body,
		ProviderMessageID: in.ProviderMessageID,
	}); err != nil {
		return err
	}

	// Sticky escalation: a human owns this thread now. Log-and-notify
	// only, no AI call, no stage change.
	if conv.Escalated() {
		if e.notifier != nil {
			if err := e.notifier.NotifyEscalatedReply(ctx, in.Profile, lead, in.Body); err != nil {
				e.logger.Error("escalated-thread owner notification failed", "error", err, "conversation_id", conv.ID)
			}
		}
		return nil
	}

	decision, noAvailability := e.classify(ctx, in, conv)

	bookingID, conflict := e.maybeCommitBooking(ctx, in.Profile, conv, lead, &decision)
	if conflict {
		decision.ShouldEscalate = true
		if decision.Reason == "" {
			decision.Reason = "slot conflict"
		}
	}
	if noAvailability && !decision.ShouldEscalate {
		decision.ShouldEscalate = true
		decision.Reason = "no availability"
	}

	if decision.ShouldEscalate {
		e.escalate(ctx, in, conv, lead, decision.Reason)
	}

	if decision.NewStage != "" && decision.NewStage.Advances(conv.Stage) {
		if err := e.conversations.SetStage(ctx, conv.ID, decision.NewStage); err != nil {
			e.logger.Error("stage update failed", "error", err, "conversation_id", conv.ID)
		}
	}

	e.applyFieldUpdates(ctx, lead, decision.Fields)

	sid, sendErr := e.sms.SendSMS(ctx, in.To, in.From, decision.Reply)
	if sendErr != nil {
		// Transport failure: conversational state stays persisted, the
		// provider will not be asked to retry.
		e.logger.Error("outbound reply send failed", "error", sendErr, "conversation_id", conv.ID)
	}
	if _, err := e.conversations.AppendMessage(ctx, Message{
		ConversationID:    conv.ID,
		Direction:         DirectionOutbound,
		Sender:            SenderAI,
		Body:              decision.Reply,
		ProviderMessageID: sid,
	}); err != nil {
		e.logger.Error("outbound message append failed", "error", err, "conversation_id", conv.ID)
	}

	activity := "AI replied"
	if bookingID != "" {
		activity = "AI replied and committed booking " + bookingID
	}
	if err := e.leadStore.AppendActivity(ctx, lead.ID, in.Profile.ID, leads.ActivityAIReply, activity); err != nil {
		e.logger.Error("lead activity append failed", "error", err, "lead_id", lead.ID)
	}
	return nil
}

// resolveThread reuses the most recent conversation for the number pair
// or opens a new one with a fresh lead on first contact.
func (e *Engine) resolveThread(ctx context.Context, in InboundSMS) (*Conversation, *leads.Lead, error) {
	conv, err := e.conversations.FindLatest(ctx, in.Profile.ID, in.From, in.To)
	if err != nil {
		return nil, nil, err
	}

	if conv == nil {
		lead, err := e.leadStore.Create(ctx, &leads.CreateLeadRequest{
			ProfileID: in.Profile.ID,
			Phone:     in.From,
			Message:   in.Body,
			Source:    leads.SourceSMS,
		})
		if err != nil {
			return nil, nil, err
		}
		conv, err = e.conversations.Create(ctx, CreateConversationRequest{
			ProfileID:      in.Profile.ID,
			LeadID:         lead.ID,
			CustomerNumber: in.From,
			BusinessNumber: in.To,
			Stage:          StageGreeting,
		})
		if err != nil {
			return nil, nil, err
		}
		return conv, lead, nil
	}

	if conv.LeadID == "" {
		lead, err := e.leadStore.Create(ctx, &leads.CreateLeadRequest{
			ProfileID: in.Profile.ID,
			Phone:     in.From,
			Message:   in.Body,
			Source:    leads.SourceSMS,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := e.conversations.LinkLead(ctx, conv.ID, lead.ID); err != nil {
			return nil, nil, err
		}
		conv.LeadID = lead.ID
		return conv, lead, nil
	}

	lead, err := e.leadStore.GetByID(ctx, in.Profile.ID, conv.LeadID)
	if err != nil {
		return nil, nil, err
	}
	return conv, lead, nil
}

// classify assembles context and invokes the classifier. Any failure
// collapses into the safe fallback decision. The second return value
// signals that slot context was needed but none exists.
func (e *Engine) classify(ctx context.Context, in InboundSMS, conv *Conversation) (TurnDecision, bool) {
	transcript, err := e.conversations.RecentTranscript(ctx, conv.ID, e.transcriptWindow)
	if err != nil {
		e.logger.Error("transcript load failed", "error", err, "conversation_id", conv.ID)
		transcript = nil
	}
	// The inbound turn was already appended; it rides separately as the
	// current message.
	if n := len(transcript); n > 0 && transcript[n-1].Body == in.Body && transcript[n-1].Direction == DirectionInbound {
		transcript = transcript[:n-1]
	}

	var slots string
	var noAvailability bool
	if e.wantsSlotContext(conv.Stage, in.Body) {
		days, err := e.resolver.Resolve(ctx, in.Profile.ID, e.now(), in.Profile.Location(""))
		if err != nil {
			e.logger.Error("slot resolution failed", "error", err, "profile_id", in.Profile.ID)
		}
		if err != nil || len(days) == 0 {
			noAvailability = true
		}
		slots = availability.FormatOpenings(days)
	}

	decision, err := e.classifier.Converse(ctx, ConverseInput{
		Profile:        in.Profile,
		Stage:          conv.Stage,
		Transcript:     transcript,
		Message:        in.Body,
		AvailableSlots: slots,
	})
	if err != nil {
		e.logger.Error("classifier failed; using fallback", "error", err, "conversation_id", conv.ID)
		if e.metrics != nil {
			e.metrics.ClassifierFallback()
		}
		return TurnDecision{
			Reply:          FallbackReply,
			ShouldEscalate: true,
			Reason:         "classifier failure",
		}, noAvailability
	}
	return decision, noAvailability
}

func (e *Engine) wantsSlotContext(stage Stage, body string) bool {
	if stage == StageBooking || stage == StageDetails {
		return true
	}
	lower := strings.ToLower(body)
	for _, kw := range bookingIntentKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// maybeCommitBooking applies the booking gate: the classifier must ask
// for it, the lead must have name, email and address (stored or supplied
// this turn), and the conversation must not hold a booking yet. A
// race-lost slot returns conflict=true.
func (e *Engine) maybeCommitBooking(ctx context.Context, profile *profiles.Profile, conv *Conversation, lead *leads.Lead, decision *TurnDecision) (bookingID string, conflict bool) {
	req := decision.Booking
	if req == nil || !req.WantsToBook {
		return "", false
	}
	if conv.HasBooking() {
		// One booking per conversation; repeated confirmations no-op.
		return "", false
	}

	merged := *lead
	if decision.Fields.Name != "" {
		merged.Name = decision.Fields.Name
	}
	if decision.Fields.Email != "" {
		merged.Email = decision.Fields.Email
	}
	if !merged.HasBookingDetails(decision.Fields.Address) {
		// Missing details is not an error; the conversation keeps
		// collecting them.
		return "", false
	}

	date, err := time.ParseInLocation("2006-01-02", req.Date, profile.Location(""))
	if err != nil {
		e.logger.Warn("booking request has invalid date", "date", req.Date, "conversation_id", conv.ID)
		return "", false
	}
	start, err := bookings.ParseTimeOfDay(req.Time)
	if err != nil {
		e.logger.Warn("booking request has invalid time", "time", req.Time, "conversation_id", conv.ID)
		return "", false
	}

	address := decision.Fields.Address
	if address == "" {
		address = lead.Address
	}
	description := req.Description
	if description == "" {
		description = merged.Message
	}
	booking, err := e.bookingStore.CreateIfSlotFree(ctx, bookings.CreateBookingRequest{
		ProfileID:     profile.ID,
		LeadID:        lead.ID,
		CustomerName:  merged.Name,
		CustomerPhone: merged.Phone,
		CustomerEmail: merged.Email,
		Title:         "Job: " + merged.Name,
		Description:   description,
		BookingDate:   date,
		StartTime:     start,
		EndTime:       start + 60,
		Status:        bookings.StatusConfirmed,
		Source:        bookings.SourceAISMS,
		Notes:         address,
	})
	if err != nil {
		if errors.Is(err, bookings.ErrSlotTaken) {
			if e.metrics != nil {
				e.metrics.BookingConflict()
			}
			return "", true
		}
		e.logger.Error("booking commit failed", "error", err, "conversation_id", conv.ID)
		return "", true
	}

	if claimed, err := e.conversations.ClaimBooking(ctx, conv.ID, booking.ID); err != nil {
		e.logger.Error("booking link failed", "error", err, "conversation_id", conv.ID)
	} else if !claimed {
		e.logger.Warn("conversation already holds a booking", "conversation_id", conv.ID, "booking_id", booking.ID)
	}
	conv.BookingID = booking.ID

	if err := e.leadStore.TransitionStatus(ctx, lead.ID, leads.StatusConverted); err != nil {
		e.logger.Error("lead conversion failed", "error", err, "lead_id", lead.ID)
	}
	if e.metrics != nil {
		e.metrics.BookingCommitted()
	}
	e.logger.Info("booking committed",
		"conversation_id", conv.ID,
		"booking_id", booking.ID,
		"date", req.Date,
		"time", req.Time,
	)
	return booking.ID, false
}

func (e *Engine) escalate(ctx context.Context, in InboundSMS, conv *Conversation, lead *leads.Lead, reason string) {
	if reason == "" {
		reason = "needs human attention"
	}
	if err := e.conversations.Escalate(ctx, conv.ID, reason); err != nil {
		e.logger.Error("escalation write failed", "error", err, "conversation_id", conv.ID)
		return
	}
	conv.Status = StatusEscalated
	conv.EscalatedReason = reason

	if err := e.leadStore.SetUrgency(ctx, lead.ID, leads.UrgencyHot); err != nil {
		e.logger.Error("urgency bump failed", "error", err, "lead_id", lead.ID)
	}
	if e.notifier != nil {
		if err := e.notifier.NotifyEscalation(ctx, in.Profile, lead, reason, in.Body); err != nil {
			e.logger.Error("escalation notification failed", "error", err, "conversation_id", conv.ID)
		}
	}
	if e.metrics != nil {
		e.metrics.EscalationRecorded(reason)
	}
	e.logger.Info("conversation escalated", "conversation_id", conv.ID, "reason", reason)
}

// applyFieldUpdates merges classifier-extracted fields into the lead,
// writing only what was actually returned.
func (e *Engine) applyFieldUpdates(ctx context.Context, lead *leads.Lead, fields ExtractedFields) {
	if fields.Empty() {
		return
	}
	var updates leads.FieldUpdates
	if v := strings.TrimSpace(fields.Name); v != "" {
		updates.Name = &v
	}
	if v := strings.TrimSpace(fields.Email); v != "" {
		updates.Email = &v
	}
	if v := strings.TrimSpace(fields.Address); v != "" {
		updates.Address = &v
	}
	if v := strings.TrimSpace(fields.Needs); v != "" {
		updates.Category = &v
	}
	if updates.Empty() {
		return
	}
	if err := e.leadStore.ApplyFieldUpdates(ctx, lead.ID, updates); err != nil {
		e.logger.Error("lead field update failed", "error", err, "lead_id", lead.ID)
		return
	}
	if updates.Name != nil {
		lead.Name = *updates.Name
	}
	if updates.Email != nil {
		lead.Email = *updates.Email
	}
	if updates.Address != nil {
		lead.Address = *updates.Address
	}
}
