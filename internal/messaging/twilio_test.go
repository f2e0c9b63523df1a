package messaging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autoflowai/autoflow/pkg/logging"
)

func signedRequest(t *testing.T, webhookURL, authToken string, form url.Values) *http.Request {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, webhookURL, strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.Header.Set("X-Twilio-Signature", computeSignature(buildSignaturePayload(webhookURL, form), authToken))
	return r
}

func TestValidateTwilioSignature(t *testing.T) {
	const webhookURL = "https://example.com/webhooks/twilio/sms"
	const authToken = "secret-token"

	form := url.Values{}
	form.Set("From", "+15550001111")
	form.Set("To", "+15559998888")
	form.Set("Body", "hello")

	r := signedRequest(t, webhookURL, authToken, form)
	assert.True(t, ValidateTwilioSignature(r, authToken, webhookURL))

	// Wrong token fails.
	r = signedRequest(t, webhookURL, "other-token", form)
	assert.False(t, ValidateTwilioSignature(r, authToken, webhookURL))

	// Missing header fails.
	r = httptest.NewRequest(http.MethodPost, webhookURL, strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	assert.False(t, ValidateTwilioSignature(r, authToken, webhookURL))
}

func formRequest(form url.Values) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r
}

func TestParseInboundSMS(t *testing.T) {
	form := url.Values{}
	form.Set("MessageSid", "SM123")
	form.Set("From", "+15550001111")
	form.Set("To", "+15559998888")
	form.Set("Body", "can you come monday?")

	parsed, err := ParseInboundSMS(formRequest(form))
	require.NoError(t, err)
	assert.Equal(t, "SM123", parsed.MessageSid)
	assert.Equal(t, "+15550001111", parsed.From)
	assert.Equal(t, "can you come monday?", parsed.Body)
}

func TestCallStatusMissed(t *testing.T) {
	for _, status := range []string{"no-answer", "busy", "failed", "canceled", "No-Answer"} {
		form := url.Values{}
		form.Set("CallSid", "CA123")
		form.Set("CallStatus", status)
		parsed, err := ParseCallStatus(formRequest(form))
		require.NoError(t, err)
		assert.True(t, parsed.Missed(), status)
	}

	form := url.Values{}
	form.Set("CallStatus", "completed")
	parsed, err := ParseCallStatus(formRequest(form))
	require.NoError(t, err)
	assert.False(t, parsed.Missed())
}

func TestParseRecording(t *testing.T) {
	form := url.Values{}
	form.Set("CallSid", "CA123")
	form.Set("From", "+15550001111")
	form.Set("RecordingUrl", "https://api.twilio.com/recording/RE1")
	form.Set("TranscriptionText", "hi, my hot water is broken, call me back")

	parsed, err := ParseRecording(formRequest(form))
	require.NoError(t, err)
	assert.Equal(t, "https://api.twilio.com/recording/RE1", parsed.RecordingURL)
	assert.Contains(t, parsed.TranscriptionText, "hot water")
}

func TestSendSMS_ReturnsProviderID(t *testing.T) {
	var gotForm url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid": "SM999", "status": "queued"}`))
	}))
	defer srv.Close()

	sender := NewTwilioSender("AC123", "token", "+15559998888", logging.New("error"))
	sender.baseURL = srv.URL

	sid, err := sender.SendSMS(context.Background(), "", "+15550001111", "hello")
	require.NoError(t, err)
	assert.Equal(t, "SM999", sid)
	assert.Equal(t, "+15550001111", gotForm.Get("To"))
	assert.Equal(t, "+15559998888", gotForm.Get("From"), "default from applies")
}

func TestSendSMS_NoRetryOnBadRequest(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code": 21211, "message": "Invalid 'To' phone number", "status": 400}`))
	}))
	defer srv.Close()

	sender := NewTwilioSender("AC123", "token", "+15559998888", logging.New("error"))
	sender.baseURL = srv.URL

	_, err := sender.SendSMS(context.Background(), "", "not-a-number", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "21211")
	assert.Equal(t, 1, calls, "4xx must not be retried")
}

func TestSendSMS_RetriesServerErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid": "SM777"}`))
	}))
	defer srv.Close()

	sender := NewTwilioSender("AC123", "token", "+15559998888", logging.New("error"))
	sender.baseURL = srv.URL

	sid, err := sender.SendSMS(context.Background(), "", "+15550001111", "hello")
	require.NoError(t, err)
	assert.Equal(t, "SM777", sid)
	assert.Equal(t, 3, calls)
}

func TestSendSMS_ValidatesInput(t *testing.T) {
	sender := NewTwilioSender("AC123", "token", "", logging.New("error"))

	_, err := sender.SendSMS(context.Background(), "", "+15550001111", "hi")
	assert.Error(t, err, "no from anywhere")

	_, err = sender.SendSMS(context.Background(), "+15559998888", "", "hi")
	assert.Error(t, err, "to required")

	_, err = sender.SendSMS(context.Background(), "+15559998888", "+15550001111", "  ")
	assert.Error(t, err, "body required")
}
