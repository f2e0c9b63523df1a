package leads

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeUrgency(t *testing.T) {
	assert.Equal(t, UrgencyHot, NormalizeUrgency("hot"))
	assert.Equal(t, UrgencyHot, NormalizeUrgency(" HOT "))
	assert.Equal(t, UrgencyCold, NormalizeUrgency("cold"))
	assert.Equal(t, UrgencyWarm, NormalizeUrgency("warm"))
	assert.Equal(t, UrgencyWarm, NormalizeUrgency("lukewarm"))
	assert.Equal(t, UrgencyWarm, NormalizeUrgency(""))
}

func TestStatusTerminal(t *testing.T) {
	assert.True(t, StatusConverted.Terminal())
	assert.True(t, StatusLost.Terminal())
	assert.False(t, StatusNew.Terminal())
	assert.False(t, StatusContacted.Terminal())
	assert.False(t, StatusQualified.Terminal())
}

func TestValidStatus(t *testing.T) {
	for _, valid := range []string{"new", "contacted", "qualified", "converted", "lost"} {
		_, ok := ValidStatus(valid)
		assert.True(t, ok, valid)
	}
	_, ok := ValidStatus("archived")
	assert.False(t, ok)
}

func TestFirstName(t *testing.T) {
	lead := &Lead{Name: "Sam Taylor", Phone: "+1555"}
	assert.Equal(t, "Sam", lead.FirstName())

	lead.Name = "Sam"
	assert.Equal(t, "Sam", lead.FirstName())

	// Leads seeded from a phone channel carry the number as a placeholder name.
	lead.Name = "+1555"
	assert.Equal(t, "there", lead.FirstName())

	lead.Name = ""
	assert.Equal(t, "there", lead.FirstName())
}

func TestHasBookingDetails(t *testing.T) {
	lead := &Lead{Name: "Sam Taylor", Email: "sam@example.com", Phone: "+1555"}
	assert.True(t, lead.HasBookingDetails("12 Pirie St"))
	assert.False(t, lead.HasBookingDetails(""))

	// An address already stored on the lead satisfies the gate.
	lead.Address = "12 Pirie St"
	assert.True(t, lead.HasBookingDetails(""))
	lead.Address = ""

	lead.Email = ""
	assert.False(t, lead.HasBookingDetails("12 Pirie St"))

	lead.Email = "sam@example.com"
	lead.Name = "+1555"
	assert.False(t, lead.HasBookingDetails("12 Pirie St"))
}

func TestCreateLeadRequestValidate(t *testing.T) {
	req := &CreateLeadRequest{ProfileID: "prof_1", Phone: "+1555"}
	assert.NoError(t, req.Validate())

	req = &CreateLeadRequest{Phone: "+1555"}
	assert.ErrorIs(t, req.Validate(), ErrMissingProfileID)

	req = &CreateLeadRequest{ProfileID: "prof_1"}
	assert.ErrorIs(t, req.Validate(), ErrMissingContact)
}

func TestFieldUpdatesEmpty(t *testing.T) {
	assert.True(t, FieldUpdates{}.Empty())
	name := "Sam"
	assert.False(t, FieldUpdates{Name: &name}.Empty())
}
