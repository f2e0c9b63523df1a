package profiles

import (
	"time"
)

// Tone controls the wording of templated outbound messages.
type Tone string

const (
	ToneProfessional Tone = "professional"
	ToneFriendly     Tone = "friendly"
	ToneCasual       Tone = "casual"
)

// NormalizeTone maps unknown tone values to the friendly default.
func NormalizeTone(s string) Tone {
	switch Tone(s) {
	case ToneProfessional, ToneCasual:
		return Tone(s)
	default:
		return ToneFriendly
	}
}

// Profile is the business account that owns leads, conversations and bookings.
type Profile struct {
	ID                  string
	Email               string
	BusinessName        string
	Industry            string
	BusinessDescription string
	BusinessServices    string
	BusinessPhone       string
	BusinessAddress     string
	ResponseTone        Tone
	AutoReplyEnabled    bool
	Timezone            string
	TwilioPhoneNumber   string
	APIKey              string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Location resolves the profile timezone, falling back to the given default.
func (p *Profile) Location(fallback string) *time.Location {
	tz := p.Timezone
	if tz == "" {
		tz = fallback
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DisplayName returns the business name or a generic placeholder.
func (p *Profile) DisplayName() string {
	if p.BusinessName == "" {
		return "us"
	}
	return p.BusinessName
}
