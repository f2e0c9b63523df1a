package leads

import (
	"strings"
	"time"
)

// Source identifies the channel a lead arrived through.
type Source string

const (
	SourceWeb        Source = "web"
	SourceMissedCall Source = "missed_call"
	SourceSMS        Source = "sms"
	SourceVoicemail  Source = "voicemail"
	SourceManual     Source = "manual"
)

// Urgency is the hot/warm/cold triage label.
type Urgency string

const (
	UrgencyHot  Urgency = "hot"
	UrgencyWarm Urgency = "warm"
	UrgencyCold Urgency = "cold"
)

// NormalizeUrgency maps unknown classifier output to warm.
func NormalizeUrgency(s string) Urgency {
	switch Urgency(strings.ToLower(strings.TrimSpace(s))) {
	case UrgencyHot:
		return UrgencyHot
	case UrgencyCold:
		return UrgencyCold
	default:
		return UrgencyWarm
	}
}

// Status is the lead lifecycle state.
type Status string

const (
	StatusNew       Status = "new"
	StatusContacted Status = "contacted"
	StatusQualified Status = "qualified"
	StatusConverted Status = "converted"
	StatusLost      Status = "lost"
)

// Terminal reports whether the status ends the lead lifecycle.
// Terminal statuses clear any pending follow-up.
func (s Status) Terminal() bool {
	return s == StatusConverted || s == StatusLost
}

// ValidStatus rejects values outside the closed status set.
func ValidStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusNew, StatusContacted, StatusQualified, StatusConverted, StatusLost:
		return Status(s), true
	}
	return "", false
}

// MaxFollowUps caps automated follow-up emails per lead.
const MaxFollowUps = 3

// Lead is a captured expression of customer interest from any channel.
type Lead struct {
	ID             string
	ProfileID      string
	Name           string
	Email          string
	Phone          string
	Address        string
	Message        string
	Source         Source
	Urgency        Urgency
	Category       string
	AISummary      string
	AIResponseSent string
	Status         Status
	FollowUpCount  int
	NextFollowUpAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// FirstName returns the lead's first name for message templating.
func (l *Lead) FirstName() string {
	name := strings.TrimSpace(l.Name)
	if name == "" || name == l.Phone {
		return "there"
	}
	if idx := strings.IndexByte(name, ' '); idx > 0 {
		return name[:idx]
	}
	return name
}

// HasBookingDetails reports whether the lead carries everything the booking
// commit step requires: name, email and address on file.
func (l *Lead) HasBookingDetails(address string) bool {
	if strings.TrimSpace(address) == "" {
		address = l.Address
	}
	if strings.TrimSpace(l.Email) == "" {
		return false
	}
	if strings.TrimSpace(address) == "" {
		return false
	}
	name := strings.TrimSpace(l.Name)
	return name != "" && name != l.Phone
}

// CreateLeadRequest carries the fields for inserting a new lead.
type CreateLeadRequest struct {
	ProfileID      string
	Name           string
	Email          string
	Phone          string
	Message        string
	Source         Source
	Urgency        Urgency
	Category       string
	AISummary      string
	Status         Status
	NextFollowUpAt *time.Time
}

// Validate enforces the minimum contactability contract.
func (r *CreateLeadRequest) Validate() error {
	if strings.TrimSpace(r.ProfileID) == "" {
		return ErrMissingProfileID
	}
	if r.Email == "" && r.Phone == "" {
		return ErrMissingContact
	}
	return nil
}

// FieldUpdates is a non-destructive merge of classifier-extracted fields.
// Only non-nil fields are written.
type FieldUpdates struct {
	Name      *string
	Email     *string
	Address   *string
	AISummary *string
	Urgency   *Urgency
	Category  *string
	Message   *string
	Source    *Source
}

// Empty reports whether the update would write nothing.
func (u FieldUpdates) Empty() bool {
	return u.Name == nil && u.Email == nil && u.Address == nil && u.AISummary == nil &&
		u.Urgency == nil && u.Category == nil && u.Message == nil && u.Source == nil
}

// ActivityType labels entries in the lead activity log.
type ActivityType string

const (
	ActivityAutoReply    ActivityType = "auto_reply"
	ActivityAIReply      ActivityType = "ai_reply"
	ActivityFollowUp     ActivityType = "follow_up"
	ActivityNote         ActivityType = "note"
	ActivityStatusChange ActivityType = "status_change"
	ActivityEmailSent    ActivityType = "email_sent"
	ActivityTextBack     ActivityType = "text_back"
)

// Activity is an append-only audit record of automated actions on a lead.
type Activity struct {
	ID          string
	LeadID      string
	ProfileID   string
	Type        ActivityType
	Description string
	CreatedAt   time.Time
}
