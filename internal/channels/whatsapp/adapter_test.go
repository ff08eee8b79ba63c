package whatsapp

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-whatsapp-agent/internal/observability/metrics"
)

type sentText struct {
	To   string
	Body string
}

type fakeSender struct {
	sent []sentText
	err  error
}

func (f *fakeSender) SendText(_ context.Context, to, body string) (*SendResponse, error) {
	f.sent = append(f.sent, sentText{To: to, Body: body})
	if f.err != nil {
		return nil, f.err
	}
	return &SendResponse{Messages: []ResponseMessage{{ID: "wamid.fake"}}}, nil
}

type fakeResponder struct {
	replies []sentText
	err     error
}

func (f *fakeResponder) Reply(_ context.Context, phone, text string) error {
	f.replies = append(f.replies, sentText{To: phone, Body: text})
	return f.err
}

type fakeTranscriber struct {
	text string
	err  error
	ids  []string
}

func (f *fakeTranscriber) Transcribe(_ context.Context, mediaID string) (string, error) {
	f.ids = append(f.ids, mediaID)
	return f.text, f.err
}

func newTestAdapter(sender *fakeSender, responder Responder, transcriber Transcriber, m *metrics.MessagingMetrics) *Adapter {
	cfg := AdapterConfig{
		VerifyToken: "token",
		Sender:      sender,
		Responder:   responder,
		Logger:      testLogger(),
		Metrics:     m,
	}
	if transcriber != nil {
		cfg.Transcriber = transcriber
	}
	return NewAdapter(cfg)
}

func TestDispatchText(t *testing.T) {
	sender := &fakeSender{}
	responder := &fakeResponder{}
	a := newTestAdapter(sender, responder, nil, nil)

	a.Dispatch(context.Background(), InboundMessage{
		MessageID: "m1", Type: MessageTypeText, WaID: "554284285525", Phone: "5542984285525", Text: "Oi",
	})

	require.Len(t, responder.replies, 1)
	assert.Equal(t, sentText{To: "5542984285525", Body: "Oi"}, responder.replies[0])
	assert.Empty(t, sender.sent)
}

func TestDispatchInteractiveReplyUsesTitle(t *testing.T) {
	responder := &fakeResponder{}
	a := newTestAdapter(&fakeSender{}, responder, nil, nil)

	a.Dispatch(context.Background(), InboundMessage{
		MessageID: "m1", Type: MessageTypeInteractive, Phone: "5542984285525", Text: "Procedimentos", ReplyID: "btn_procedimentos",
	})

	require.Len(t, responder.replies, 1)
	assert.Equal(t, "Procedimentos", responder.replies[0].Body)
}

func TestDispatchSkipsUnknownSender(t *testing.T) {
	responder := &fakeResponder{}
	reg := prometheus.NewRegistry()
	m := metrics.NewMessagingMetrics(reg)
	a := newTestAdapter(&fakeSender{}, responder, nil, m)

	a.Dispatch(context.Background(), InboundMessage{MessageID: "m1", Type: MessageTypeText, WaID: UnknownWaID, Text: "Oi"})

	assert.Empty(t, responder.replies)
	families, err := reg.Gather()
	require.NoError(t, err)
	var inbound *dto.MetricFamily
	for _, f := range families {
		if f.GetName() == "clinicbot_whatsapp_inbound_messages_total" {
			inbound = f
		}
	}
	require.NotNil(t, inbound)
	require.Len(t, inbound.GetMetric(), 1)
	labels := map[string]string{}
	for _, l := range inbound.GetMetric()[0].GetLabel() {
		labels[l.GetName()] = l.GetValue()
	}
	assert.Equal(t, "skipped", labels["status"])
}

func TestDispatchIgnoresUnsupportedTypes(t *testing.T) {
	sender := &fakeSender{}
	responder := &fakeResponder{}
	a := newTestAdapter(sender, responder, nil, nil)

	a.Dispatch(context.Background(), InboundMessage{MessageID: "m1", Type: MessageTypeImage, Phone: "5542984285525"})
	a.Dispatch(context.Background(), InboundMessage{MessageID: "m2", Type: "sticker", Phone: "5542984285525"})

	assert.Empty(t, responder.replies)
	assert.Empty(t, sender.sent)
}

func TestDispatchAudio(t *testing.T) {
	t.Run("missing media id", func(t *testing.T) {
		sender := &fakeSender{}
		transcriber := &fakeTranscriber{text: "unused"}
		a := newTestAdapter(sender, &fakeResponder{}, transcriber, nil)

		a.Dispatch(context.Background(), InboundMessage{MessageID: "m1", Type: MessageTypeAudio, Phone: "5542984285525"})

		require.Len(t, sender.sent, 1)
		assert.Equal(t, AudioMissingText, sender.sent[0].Body)
		assert.Empty(t, transcriber.ids)
	})

	t.Run("transcript goes to responder", func(t *testing.T) {
		sender := &fakeSender{}
		responder := &fakeResponder{}
		transcriber := &fakeTranscriber{text: "Quero agendar um horário"}
		a := newTestAdapter(sender, responder, transcriber, nil)

		a.Dispatch(context.Background(), InboundMessage{MessageID: "m1", Type: MessageTypeAudio, Phone: "5542984285525", AudioID: "audio_1"})

		assert.Equal(t, []string{"audio_1"}, transcriber.ids)
		require.Len(t, responder.replies, 1)
		assert.Equal(t, "Quero agendar um horário", responder.replies[0].Body)
		assert.Empty(t, sender.sent)
	})

	t.Run("transcription failure", func(t *testing.T) {
		sender := &fakeSender{}
		responder := &fakeResponder{}
		transcriber := &fakeTranscriber{err: errors.New("ffmpeg exploded")}
		a := newTestAdapter(sender, responder, transcriber, nil)

		a.Dispatch(context.Background(), InboundMessage{MessageID: "m1", Type: MessageTypeAudio, Phone: "5542984285525", AudioID: "audio_1"})

		require.Len(t, sender.sent, 1)
		assert.Equal(t, AudioFailedText, sender.sent[0].Body)
		assert.Empty(t, responder.replies)
	})

	t.Run("transcription disabled", func(t *testing.T) {
		sender := &fakeSender{}
		a := newTestAdapter(sender, &fakeResponder{}, nil, nil)

		a.Dispatch(context.Background(), InboundMessage{MessageID: "m1", Type: MessageTypeAudio, Phone: "5542984285525", AudioID: "audio_1"})

		require.Len(t, sender.sent, 1)
		assert.Equal(t, AudioFailedText, sender.sent[0].Body)
	})
}

func TestAckResponderWhenNoAgent(t *testing.T) {
	sender := &fakeSender{}
	a := NewAdapter(AdapterConfig{Sender: sender, Logger: testLogger()})

	a.Dispatch(context.Background(), InboundMessage{MessageID: "m1", Type: MessageTypeText, Phone: "5542984285525", Text: "Oi"})

	require.Len(t, sender.sent, 1)
	assert.Equal(t, sentText{To: "5542984285525", Body: AckText}, sender.sent[0])
}

func TestResponderErrorDoesNotChangeStatus(t *testing.T) {
	responder := &fakeResponder{err: errors.New("gemini down")}
	a := newTestAdapter(&fakeSender{}, responder, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(textEventJSON))
	w := httptest.NewRecorder()
	a.HandleWebhook(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "EVENT_RECEIVED", w.Body.String())
	require.Len(t, responder.replies, 1)
	assert.Equal(t, "5542984285525", responder.replies[0].To)
}
