package metrics

import "github.com/prometheus/client_golang/prometheus"

// EngineMetrics exposes counters/histograms for the conversation and
// automation flows.
type EngineMetrics struct {
	inboundTotal       *prometheus.CounterVec
	classifierFallback prometheus.Counter
	escalationTotal    *prometheus.CounterVec
	bookingTotal       *prometheus.CounterVec
	missedCallTotal    *prometheus.CounterVec
	voicemailTotal     prometheus.Counter
	reminderTotal      *prometheus.CounterVec
	followUpTotal      *prometheus.CounterVec
	webhookLatency     *prometheus.HistogramVec
}

func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	m := &EngineMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autoflow",
			Subsystem: "conversation",
			Name:      "inbound_total",
			Help:      "Total inbound SMS turns processed",
		}, []string{"status"}),
		classifierFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "autoflow",
			Subsystem: "conversation",
			Name:      "classifier_fallback_total",
			Help:      "Turns answered with the fallback reply after a classifier failure",
		}),
		escalationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autoflow",
			Subsystem: "conversation",
			Name:      "escalation_total",
			Help:      "Conversations escalated to a human",
		}, []string{"reason"}),
		bookingTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autoflow",
			Subsystem: "booking",
			Name:      "commit_total",
			Help:      "Booking commit attempts by outcome",
		}, []string{"outcome"}),
		missedCallTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autoflow",
			Subsystem: "intake",
			Name:      "missed_call_total",
			Help:      "Missed calls processed, by text-back delivery",
		}, []string{"text_back"}),
		voicemailTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "autoflow",
			Subsystem: "intake",
			Name:      "voicemail_total",
			Help:      "Voicemail transcriptions processed",
		}),
		reminderTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autoflow",
			Subsystem: "reminders",
			Name:      "sent_total",
			Help:      "Booking reminders by window and outcome",
		}, []string{"window", "outcome"}),
		followUpTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autoflow",
			Subsystem: "followup",
			Name:      "sent_total",
			Help:      "Follow-up emails by outcome",
		}, []string{"outcome"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "autoflow",
			Subsystem: "http",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of Twilio webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"webhook"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.inboundTotal, m.classifierFallback, m.escalationTotal, m.bookingTotal,
		m.missedCallTotal, m.voicemailTotal, m.reminderTotal, m.followUpTotal,
		m.webhookLatency,
	)
	return m
}

func (m *EngineMetrics) InboundProcessed() {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues("processed").Inc()
}

func (m *EngineMetrics) ClassifierFallback() {
	if m == nil {
		return
	}
	m.classifierFallback.Inc()
}

func (m *EngineMetrics) EscalationRecorded(reason string) {
	if m == nil {
		return
	}
	m.escalationTotal.WithLabelValues(reason).Inc()
}

func (m *EngineMetrics) BookingCommitted() {
	if m == nil {
		return
	}
	m.bookingTotal.WithLabelValues("committed").Inc()
}

func (m *EngineMetrics) BookingConflict() {
	if m == nil {
		return
	}
	m.bookingTotal.WithLabelValues("conflict").Inc()
}

func (m *EngineMetrics) MissedCallHandled(textBackSent bool) {
	if m == nil {
		return
	}
	label := "sent"
	if !textBackSent {
		label = "failed"
	}
	m.missedCallTotal.WithLabelValues(label).Inc()
}

func (m *EngineMetrics) VoicemailHandled() {
	if m == nil {
		return
	}
	m.voicemailTotal.Inc()
}

func (m *EngineMetrics) ReminderSent(window string) {
	if m == nil {
		return
	}
	m.reminderTotal.WithLabelValues(window, "sent").Inc()
}

func (m *EngineMetrics) ReminderFailed() {
	if m == nil {
		return
	}
	m.reminderTotal.WithLabelValues("unknown", "failed").Inc()
}

func (m *EngineMetrics) FollowUpSent() {
	if m == nil {
		return
	}
	m.followUpTotal.WithLabelValues("sent").Inc()
}

func (m *EngineMetrics) FollowUpFailed() {
	if m == nil {
		return
	}
	m.followUpTotal.WithLabelValues("failed").Inc()
}

func (m *EngineMetrics) ObserveWebhookLatency(webhook string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(webhook).Observe(seconds)
}
