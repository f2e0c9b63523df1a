package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/autoflowai/autoflow/internal/leads"
	"github.com/autoflowai/autoflow/internal/profiles"
)

// MaxReplyLength caps outbound SMS replies. Longer classifier output is
// truncated with an ellipsis, never dropped.
const MaxReplyLength = 320

// ErrMalformedDecision indicates classifier output that failed schema
// validation. Callers fall back to a safe reply and escalate.
var ErrMalformedDecision = errors.New("conversation: malformed classifier output")

// ExtractedFields are lead attributes the classifier pulled out of the
// customer's messages. Empty fields were not extracted this turn.
type ExtractedFields struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Needs   string `json:"needs,omitempty"`
	Address string `json:"address,omitempty"`
}

// Empty reports whether nothing was extracted.
func (f ExtractedFields) Empty() bool {
	return f.Name == "" && f.Email == "" && f.Needs == "" && f.Address == ""
}

// BookingRequest is the classifier's proposal to commit a booking.
type BookingRequest struct {
	WantsToBook bool   `json:"wants_to_book"`
	Date        string `json:"date,omitempty"` // YYYY-MM-DD
	Time        string `json:"time,omitempty"` // HH:MM
	Description string `json:"description,omitempty"`
}

// TurnDecision is the validated outcome of one conversational turn.
type TurnDecision struct {
	Reply          string
	ShouldEscalate bool
	Reason         string
	NewStage       Stage
	Fields         ExtractedFields
	Booking        *BookingRequest
}

// LeadAnalysis is the one-shot classification of a fresh lead.
type LeadAnalysis struct {
	Urgency        leads.Urgency
	Category       string
	Summary        string
	SuggestedReply string
}

// ConverseInput carries the assembled context for a conversational turn.
type ConverseInput struct {
	Profile        *profiles.Profile
	Stage          Stage
	Transcript     []Message
	Message        string
	AvailableSlots string // empty when slot context was not requested
}

// Classifier turns raw lead text and conversation context into structured
// decisions. Implementations call a remote model and must reject output
// that does not match the schema.
type Classifier interface {
	AnalyzeLead(ctx context.Context, name, message string, profile *profiles.Profile) (LeadAnalysis, error)
	Converse(ctx context.Context, in ConverseInput) (TurnDecision, error)
	FollowUp(ctx context.Context, lead *leads.Lead, profile *profiles.Profile) (string, error)
}

// LLMClassifier implements Classifier on top of a raw LLM client.
type LLMClassifier struct {
	llm   LLMClient
	model string
}

var _ Classifier = (*LLMClassifier)(nil)

// NewLLMClassifier wires a classifier over the given completion client.
func NewLLMClassifier(llm LLMClient, model string) *LLMClassifier {
	return &LLMClassifier{llm: llm, model: model}
}

// turnDecisionWire is the strict JSON schema the model must emit for a
// conversational turn. Unknown fields are rejected.
type turnDecisionWire struct {
	Reply          string          `json:"reply"`
	ShouldEscalate bool            `json:"should_escalate"`
	Reason         string          `json:"reason,omitempty"`
	NewStage       string          `json:"new_stage,omitempty"`
	Extracted      ExtractedFields `json:"extracted_fields,omitempty"`
	Booking        *BookingRequest `json:"booking_request,omitempty"`
}

type leadAnalysisWire struct {
	Urgency        string `json:"urgency"`
	Category       string `json:"category"`
	Summary        string `json:"summary"`
	SuggestedReply string `json:"suggested_reply,omitempty"`
}

// AnalyzeLead classifies a fresh lead message into urgency, category,
// and a one-line summary.
func (c *LLMClassifier) AnalyzeLead(ctx context.Context, name, message string, profile *profiles.Profile) (LeadAnalysis, error) {
	system := fmt.Sprintf(`You analyze incoming leads for %s, a %s business.
Business description: %s
Services: %s

Reply with a single JSON object, no markdown, no prose:
{"urgency": "hot"|"warm"|"cold", "category": "<short category>", "summary": "<one sentence>", "suggested_reply": "<short reply>"}
Urgency guide: hot = wants service now or emergency; warm = interested, flexible timing; cold = browsing or vague.`,
		profile.BusinessName, profile.Industry, profile.BusinessDescription, profile.BusinessServices)

	resp, err := c.llm.Complete(ctx, LLMRequest{
		Model:       c.model,
		System:      []string{system},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: fmt.Sprintf("Lead name: %s\nMessage: %s", name, message)}},
		MaxTokens:   512,
		Temperature: 0.2,
	})
	if err != nil {
		return LeadAnalysis{}, fmt.Errorf("conversation: analyze lead: %w", err)
	}

	var wire leadAnalysisWire
	if err := decodeStrict(resp.Text, &wire); err != nil {
		return LeadAnalysis{}, err
	}
	if wire.Category == "" || wire.Summary == "" {
		return LeadAnalysis{}, fmt.Errorf("%w: missing category or summary", ErrMalformedDecision)
	}
	return LeadAnalysis{
		Urgency:        leads.NormalizeUrgency(wire.Urgency),
		Category:       wire.Category,
		Summary:        wire.Summary,
		SuggestedReply: TruncateReply(wire.SuggestedReply),
	}, nil
}

// Converse runs one conversational turn. The transcript rides along as
// chat history; the decision schema is enforced strictly and any
// violation surfaces as ErrMalformedDecision.
func (c *LLMClassifier) Converse(ctx context.Context, in ConverseInput) (TurnDecision, error) {
	system := c.conversePrompt(in)

	messages := make([]ChatMessage, 0, len(in.Transcript)+1)
	for _, m := range in.Transcript {
		role := ChatRoleUser
		if m.Direction == DirectionOutbound {
			role = ChatRoleAssistant
		}
		messages = append(messages, ChatMessage{Role: role, Content: m.Body})
	}
	messages = append(messages, ChatMessage{Role: ChatRoleUser, Content: in.Message})

	resp, err := c.llm.Complete(ctx, LLMRequest{
		Model:       c.model,
		System:      []string{system},
		Messages:    messages,
		MaxTokens:   1024,
		Temperature: 0.4,
	})
	if err != nil {
		return TurnDecision{}, fmt.Errorf("conversation: converse: %w", err)
	}

	var wire turnDecisionWire
	if err := decodeStrict(resp.Text, &wire); err != nil {
		return TurnDecision{}, err
	}
	if strings.TrimSpace(wire.Reply) == "" {
		return TurnDecision{}, fmt.Errorf("%w: empty reply", ErrMalformedDecision)
	}

	decision := TurnDecision{
		Reply:          TruncateReply(strings.TrimSpace(wire.Reply)),
		ShouldEscalate: wire.ShouldEscalate,
		Reason:         wire.Reason,
		Fields:         wire.Extracted,
		Booking:        wire.Booking,
	}
	if wire.NewStage != "" {
		stage, ok := ValidStage(wire.NewStage)
		if !ok {
			return TurnDecision{}, fmt.Errorf("%w: unknown stage %q", ErrMalformedDecision, wire.NewStage)
		}
		decision.NewStage = stage
	}
	return decision, nil
}

func (c *LLMClassifier) conversePrompt(in ConverseInput) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, `You are the SMS assistant for %s, a %s business. Respond as %s.
Business description: %s
Services: %s
Tone: %s
Current conversation stage: %s

Your job: greet, qualify the customer's need, collect their name, email and address, then offer appointment times and confirm a booking.
Keep replies under 320 characters, friendly and concise. Never invent availability.
`,
		in.Profile.BusinessName, in.Profile.Industry, in.Profile.DisplayName(),
		in.Profile.BusinessDescription, in.Profile.BusinessServices,
		in.Profile.ResponseTone, in.Stage)

	if in.AvailableSlots != "" {
		fmt.Fprintf(&sb, "\nOpen appointment slots:\n%s\n", in.AvailableSlots)
	}

	sb.WriteString(`
Reply with a single JSON object, no markdown, no prose:
{"reply": "<text to send>", "should_escalate": false, "reason": "", "new_stage": "greeting"|"qualifying"|"details"|"booking"|"complete", "extracted_fields": {"name": "", "email": "", "needs": "", "address": ""}, "booking_request": {"wants_to_book": false, "date": "YYYY-MM-DD", "time": "HH:MM", "description": ""}}
Escalate (should_escalate=true with a reason) when the customer is angry, asks for a human, or you cannot help.
Set booking_request.wants_to_book=true only when the customer has clearly confirmed a specific listed slot.`)
	return sb.String()
}

// FollowUp drafts a short re-engagement message for a lead that has gone
// quiet.
func (c *LLMClassifier) FollowUp(ctx context.Context, lead *leads.Lead, profile *profiles.Profile) (string, error) {
	system := fmt.Sprintf(`You write short follow-up messages for %s, a %s business.
Tone: %s. Keep it under 320 characters, one friendly nudge, no pressure, no markdown.
Reply with the message text only.`,
		profile.BusinessName, profile.Industry, profile.ResponseTone)

	prompt := fmt.Sprintf("Lead: %s\nOriginal enquiry: %s\nThis is follow-up number %d. Draft the message.",
		lead.FirstName(), lead.Message, lead.FollowUpCount+1)

	resp, err := c.llm.Complete(ctx, LLMRequest{
		Model:       c.model,
		System:      []string{system},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: prompt}},
		MaxTokens:   256,
		Temperature: 0.6,
	})
	if err != nil {
		return "", fmt.Errorf("conversation: follow up: %w", err)
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", fmt.Errorf("%w: empty follow-up", ErrMalformedDecision)
	}
	return TruncateReply(text), nil
}

// TruncateReply enforces the SMS reply cap, appending an ellipsis when
// the text had to be cut.
func TruncateReply(s string) string {
	runes := []rune(s)
	if len(runes) <= MaxReplyLength {
		return s
	}
	return string(runes[:MaxReplyLength-3]) + "..."
}

// decodeStrict extracts the JSON object from model output and decodes it
// rejecting unknown fields. Models occasionally wrap JSON in code fences
// or prose; anything outside the outermost object is discarded.
func decodeStrict(text string, out any) error {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return fmt.Errorf("%w: no JSON object found", ErrMalformedDecision)
	}
	dec := json.NewDecoder(strings.NewReader(text[start : end+1]))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedDecision, err)
	}
	return nil
}
