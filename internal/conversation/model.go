package conversation

import "time"

// Status marks whether the conversation still receives automated replies.
// Escalated is sticky: once set, every later inbound message is routed to
// the business owner until a human reactivates the thread.
type Status string

const (
	StatusActive    Status = "active"
	StatusEscalated Status = "escalated"
)

// Stage tracks progress through the booking funnel.
type Stage string

const (
	StageGreeting   Stage = "greeting"
	StageQualifying Stage = "qualifying"
	StageDetails    Stage = "details"
	StageBooking    Stage = "booking"
	StageComplete   Stage = "complete"
)

// stageOrder defines forward progression. Classifier output proposing an
// earlier stage is advisory only and gets ignored.
var stageOrder = map[Stage]int{
	StageGreeting:   0,
	StageQualifying: 1,
	StageDetails:    2,
	StageBooking:    3,
	StageComplete:   4,
}

// ValidStage reports whether s names a known stage.
func ValidStage(s string) (Stage, bool) {
	_, ok := stageOrder[Stage(s)]
	return Stage(s), ok
}

// Advances reports whether moving from current to next is forward movement.
func (next Stage) Advances(current Stage) bool {
	return stageOrder[next] > stageOrder[current]
}

// Direction of a conversation turn.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Sender identifies who produced a turn.
type Sender string

const (
	SenderCustomer Sender = "customer"
	SenderAI       Sender = "ai"
	SenderOwner    Sender = "business_owner"
)

// Conversation is an SMS thread between one customer number and one
// business number. At most one active conversation exists per pair.
type Conversation struct {
	ID              string
	ProfileID       string
	LeadID          string
	CustomerNumber  string
	BusinessNumber  string
	Status          Status
	Stage           Stage
	MessageCount    int
	BookingID       string
	EscalatedReason string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Escalated reports whether automated replies are suspended.
func (c *Conversation) Escalated() bool {
	return c.Status == StatusEscalated
}

// HasBooking reports whether a booking was already committed on this
// thread. Further booking requests are ignored once true.
func (c *Conversation) HasBooking() bool {
	return c.BookingID != ""
}

// Message is one turn of a conversation. Append-only; creation order is
// the transcript order the classifier sees.
type Message struct {
	ID                string
	ConversationID    string
	Direction         Direction
	Sender            Sender
	Body              string
	ProviderMessageID string
	CreatedAt         time.Time
}
