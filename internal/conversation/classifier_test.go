package conversation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autoflowai/autoflow/internal/leads"
)

type stubLLM struct {
	text string
	err  error
	req  LLMRequest
}

func (s *stubLLM) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	s.req = req
	if s.err != nil {
		return LLMResponse{}, s.err
	}
	return LLMResponse{Text: s.text}, nil
}

func classifierWith(text string) (*LLMClassifier, *stubLLM) {
	llm := &stubLLM{text: text}
	return NewLLMClassifier(llm, "gemini-2.5-flash"), llm
}

func converseInput() ConverseInput {
	return ConverseInput{
		Profile: testProfile(),
		Stage:   StageQualifying,
		Message: "can you come monday?",
	}
}

func TestConverse_ParsesDecision(t *testing.T) {
	c, _ := classifierWith(`{"reply": "Monday 9am works!", "should_escalate": false, "new_stage": "booking", "extracted_fields": {"name": "Sam"}, "booking_request": {"wants_to_book": false}}`)

	decision, err := c.Converse(context.Background(), converseInput())
	require.NoError(t, err)
	assert.Equal(t, "Monday 9am works!", decision.Reply)
	assert.Equal(t, StageBooking, decision.NewStage)
	assert.Equal(t, "Sam", decision.Fields.Name)
	require.NotNil(t, decision.Booking)
	assert.False(t, decision.Booking.WantsToBook)
}

func TestConverse_StripsCodeFences(t *testing.T) {
	c, _ := classifierWith("```json\n{\"reply\": \"Sure thing\", \"should_escalate\": false}\n```")

	decision, err := c.Converse(context.Background(), converseInput())
	require.NoError(t, err)
	assert.Equal(t, "Sure thing", decision.Reply)
}

func TestConverse_RejectsUnknownFields(t *testing.T) {
	c, _ := classifierWith(`{"reply": "hi", "confidence": 0.9}`)

	_, err := c.Converse(context.Background(), converseInput())
	assert.ErrorIs(t, err, ErrMalformedDecision)
}

func TestConverse_RejectsEmptyReply(t *testing.T) {
	c, _ := classifierWith(`{"reply": "  ", "should_escalate": false}`)

	_, err := c.Converse(context.Background(), converseInput())
	assert.ErrorIs(t, err, ErrMalformedDecision)
}

func TestConverse_RejectsUnknownStage(t *testing.T) {
	c, _ := classifierWith(`{"reply": "ok", "new_stage": "negotiating"}`)

	_, err := c.Converse(context.Background(), converseInput())
	assert.ErrorIs(t, err, ErrMalformedDecision)
}

func TestConverse_RejectsNonJSON(t *testing.T) {
	c, _ := classifierWith("I'd be happy to help with that!")

	_, err := c.Converse(context.Background(), converseInput())
	assert.ErrorIs(t, err, ErrMalformedDecision)
}

func TestConverse_PropagatesTransportError(t *testing.T) {
	llm := &stubLLM{err: errors.New("deadline exceeded")}
	c := NewLLMClassifier(llm, "gemini-2.5-flash")

	_, err := c.Converse(context.Background(), converseInput())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMalformedDecision)
}

func TestConverse_TranscriptBecomesHistory(t *testing.T) {
	c, llm := classifierWith(`{"reply": "ok"}`)

	in := converseInput()
	in.Transcript = []Message{
		{Direction: DirectionInbound, Body: "hi"},
		{Direction: DirectionOutbound, Body: "hello! how can we help?"},
	}
	in.AvailableSlots = "Monday Mar 9: 9am"
	_, err := c.Converse(context.Background(), in)
	require.NoError(t, err)

	require.Len(t, llm.req.Messages, 3)
	assert.Equal(t, ChatRoleUser, llm.req.Messages[0].Role)
	assert.Equal(t, ChatRoleAssistant, llm.req.Messages[1].Role)
	assert.Equal(t, "can you come monday?", llm.req.Messages[2].Content)
	require.Len(t, llm.req.System, 1)
	assert.Contains(t, llm.req.System[0], "Monday Mar 9: 9am")
	assert.Contains(t, llm.req.System[0], "Adelaide Plumbing Co")
}

func TestConverse_TruncatesLongReply(t *testing.T) {
	long := `{"reply": "` + strings.Repeat("x", 500) + `"}`
	c, _ := classifierWith(long)

	decision, err := c.Converse(context.Background(), converseInput())
	require.NoError(t, err)
	assert.Len(t, []rune(decision.Reply), MaxReplyLength)
}

func TestAnalyzeLead_NormalizesUrgency(t *testing.T) {
	c, _ := classifierWith(`{"urgency": "HOT", "category": "Emergency Plumbing", "summary": "Burst pipe flooding the kitchen.", "suggested_reply": "We can be there within the hour."}`)

	analysis, err := c.AnalyzeLead(context.Background(), "Sam", "my pipe burst!!", testProfile())
	require.NoError(t, err)
	assert.Equal(t, leads.UrgencyHot, analysis.Urgency)
	assert.Equal(t, "Emergency Plumbing", analysis.Category)
}

func TestAnalyzeLead_RejectsMissingSummary(t *testing.T) {
	c, _ := classifierWith(`{"urgency": "warm", "category": "General"}`)

	_, err := c.AnalyzeLead(context.Background(), "Sam", "hi", testProfile())
	assert.ErrorIs(t, err, ErrMalformedDecision)
}

func TestFollowUp_ReturnsPlainText(t *testing.T) {
	c, llm := classifierWith("Hi Sam, just checking in about that blocked drain - still happy to help!")

	lead := &leads.Lead{Name: "Sam Carter", Message: "blocked drain", FollowUpCount: 1}
	msg, err := c.FollowUp(context.Background(), lead, testProfile())
	require.NoError(t, err)
	assert.Contains(t, msg, "Sam")
	assert.Contains(t, llm.req.Messages[0].Content, "follow-up number 2")
}

func TestFollowUp_RejectsEmpty(t *testing.T) {
	c, _ := classifierWith("   ")

	_, err := c.FollowUp(context.Background(), &leads.Lead{}, testProfile())
	assert.ErrorIs(t, err, ErrMalformedDecision)
}
