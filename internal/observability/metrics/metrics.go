package metrics

import "github.com/prometheus/client_golang/prometheus"

// MessagingMetrics exposes counters/histograms for the WhatsApp flows.
type MessagingMetrics struct {
	inboundTotal        *prometheus.CounterVec
	outboundTotal       *prometheus.CounterVec
	webhookLatency      *prometheus.HistogramVec
	toolCallsTotal      *prometheus.CounterVec
	transcriptionsTotal *prometheus.CounterVec
}

func NewMessagingMetrics(reg prometheus.Registerer) *MessagingMetrics {
	m := &MessagingMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicbot",
			Subsystem: "whatsapp",
			Name:      "inbound_messages_total",
			Help:      "Inbound WhatsApp messages by type and processing outcome",
		}, []string{"type", "status"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicbot",
			Subsystem: "whatsapp",
			Name:      "outbound_messages_total",
			Help:      "Outbound Cloud API sends by message kind",
		}, []string{"kind", "status"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinicbot",
			Subsystem: "whatsapp",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of webhook processing, end to end",
			Buckets:   prometheus.DefBuckets,
		}, []string{"object"}),
		toolCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicbot",
			Subsystem: "agent",
			Name:      "tool_calls_total",
			Help:      "send_message tool invocations by kind",
		}, []string{"kind", "status"}),
		transcriptionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicbot",
			Subsystem: "agent",
			Name:      "transcriptions_total",
			Help:      "Voice note transcriptions",
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.outboundTotal, m.webhookLatency, m.toolCallsTotal, m.transcriptionsTotal)
	return m
}

func (m *MessagingMetrics) ObserveInbound(messageType, status string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(messageType, status).Inc()
}

func (m *MessagingMetrics) ObserveOutbound(kind string, err error) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(kind, statusLabel(err)).Inc()
}

func (m *MessagingMetrics) ObserveWebhookLatency(object string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(object).Observe(seconds)
}

func (m *MessagingMetrics) ObserveToolCall(kind string, err error) {
	if m == nil {
		return
	}
	m.toolCallsTotal.WithLabelValues(kind, statusLabel(err)).Inc()
}

func (m *MessagingMetrics) ObserveTranscription(err error) {
	if m == nil {
		return
	}
	m.transcriptionsTotal.WithLabelValues(statusLabel(err)).Inc()
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
