package messaging

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// ValidateTwilioSignature validates that a request came from Twilio
func ValidateTwilioSignature(r *http.Request, authToken, webhookURL string) bool {
	signature := r.Header.Get("X-Twilio-Signature")
	if signature == "" {
		return false
	}

	if err := r.ParseForm(); err != nil {
		return false
	}

	payload := buildSignaturePayload(webhookURL, r.PostForm)
	expected := computeSignature(payload, authToken)

	return hmac.Equal([]byte(signature), []byte(expected))
}

// buildSignaturePayload creates the payload string for signature
// verification: the full URL followed by the POST params in key order.
func buildSignaturePayload(url string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var payload strings.Builder
	payload.WriteString(url)
	for _, key := range keys {
		for _, value := range params[key] {
			payload.WriteString(key)
			payload.WriteString(value)
		}
	}
	return payload.String()
}

// computeSignature computes the HMAC-SHA1 signature
func computeSignature(data, key string) string {
	h := hmac.New(sha1.New, []byte(key))
	h.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// InboundSMSWebhook is an incoming Twilio SMS webhook.
type InboundSMSWebhook struct {
	MessageSid string
	AccountSid string
	From       string
	To         string
	Body       string
}

// ParseInboundSMS parses a Twilio SMS webhook request.
func ParseInboundSMS(r *http.Request) (*InboundSMSWebhook, error) {
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("messaging: parse sms webhook form: %w", err)
	}
	return &InboundSMSWebhook{
		MessageSid: r.FormValue("MessageSid"),
		AccountSid: r.FormValue("AccountSid"),
		From:       r.FormValue("From"),
		To:         r.FormValue("To"),
		Body:       r.FormValue("Body"),
	}, nil
}

// CallStatusWebhook is a Twilio call-status callback.
type CallStatusWebhook struct {
	CallSid    string
	CallStatus string
	From       string
	To         string
	Direction  string
}

// missedStatuses are the call outcomes that trigger the text-back flow.
var missedStatuses = map[string]bool{
	"no-answer": true,
	"busy":      true,
	"failed":    true,
	"canceled":  true,
	"cancelled": true,
}

// Missed reports whether the call never connected.
func (w *CallStatusWebhook) Missed() bool {
	return missedStatuses[strings.ToLower(w.CallStatus)]
}

// ParseCallStatus parses a Twilio voice status callback.
func ParseCallStatus(r *http.Request) (*CallStatusWebhook, error) {
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("messaging: parse call status form: %w", err)
	}
	return &CallStatusWebhook{
		CallSid:    r.FormValue("CallSid"),
		CallStatus: r.FormValue("CallStatus"),
		From:       r.FormValue("From"),
		To:         r.FormValue("To"),
		Direction:  r.FormValue("Direction"),
	}, nil
}

// RecordingWebhook is a Twilio recording/transcription callback.
type RecordingWebhook struct {
	CallSid           string
	From              string
	To                string
	RecordingURL      string
	TranscriptionText string
}

// ParseRecording parses a Twilio recording or transcription callback.
func ParseRecording(r *http.Request) (*RecordingWebhook, error) {
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("messaging: parse recording form: %w", err)
	}
	return &RecordingWebhook{
		CallSid:           r.FormValue("CallSid"),
		From:              r.FormValue("From"),
		To:                r.FormValue("To"),
		RecordingURL:      r.FormValue("RecordingUrl"),
		TranscriptionText: r.FormValue("TranscriptionText"),
	}, nil
}
