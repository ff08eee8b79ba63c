package whatsapp

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-whatsapp-agent/internal/observability/metrics"
	"github.com/wolfman30/clinic-whatsapp-agent/pkg/logging"
)

func testLogger() *logging.Logger {
	return logging.NewWithWriter(io.Discard, "debug")
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

const textEventJSON = `{
  "object": "whatsapp_business_account",
  "entry": [{
    "id": "WABA_1",
    "changes": [{
      "field": "messages",
      "value": {
        "messaging_product": "whatsapp",
        "metadata": {"display_phone_number": "554899999999", "phone_number_id": "12345"},
        "contacts": [{"wa_id": "554284285525", "profile": {"name": "Maria"}}],
        "messages": [{"id": "wamid.1", "from": "554284285525", "timestamp": "1700000000", "type": "text", "text": {"body": "Oi"}}]
      }
    }]
  }]
}`

func TestVerifySignature(t *testing.T) {
	secret := "test_app_secret"
	body := []byte(`{"object":"whatsapp_business_account","entry":[]}`)
	validSig := sign(secret, body)

	tests := []struct {
		name      string
		secret    string
		body      []byte
		signature string
		want      bool
	}{
		{"valid signature", secret, body, validSig, true},
		{"wrong signature", secret, body, "sha256=0000000000000000000000000000000000000000000000000000000000000000", false},
		{"empty signature", secret, body, "", false},
		{"empty secret", "", body, validSig, false},
		{"missing prefix", secret, body, validSig[len("sha256="):], false},
		{"tampered body", secret, []byte(`tampered`), validSig, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VerifySignature(tt.secret, tt.body, tt.signature); got != tt.want {
				t.Errorf("VerifySignature() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHandleVerification(t *testing.T) {
	h := NewWebhookHandler("my_verify_token", "", nil, testLogger(), nil)

	tests := []struct {
		name     string
		query    string
		wantCode int
		wantBody string
	}{
		{"valid challenge", "hub.mode=subscribe&hub.verify_token=my_verify_token&hub.challenge=CHALLENGE_123", http.StatusOK, "CHALLENGE_123"},
		{"wrong token", "hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=x", http.StatusForbidden, "Falha na verificação\n"},
		{"wrong mode", "hub.mode=unsubscribe&hub.verify_token=my_verify_token&hub.challenge=x", http.StatusForbidden, "Falha na verificação\n"},
		{"missing token", "hub.mode=subscribe&hub.challenge=x", http.StatusBadRequest, "Parâmetros inválidos\n"},
		{"missing everything", "", http.StatusBadRequest, "Parâmetros inválidos\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/webhook?"+tt.query, nil)
			w := httptest.NewRecorder()
			h.HandleVerification(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantBody, w.Body.String())
		})
	}
}

func TestHandleInbound(t *testing.T) {
	var got []InboundMessage
	h := NewWebhookHandler("token", "", func(_ context.Context, msg InboundMessage) {
		got = append(got, msg)
	}, testLogger(), nil)

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(textEventJSON))
	w := httptest.NewRecorder()
	h.HandleInbound(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "EVENT_RECEIVED", w.Body.String())
	require.Len(t, got, 1)
	assert.Equal(t, "554284285525", got[0].WaID)
	assert.Equal(t, "5542984285525", got[0].Phone)
	assert.Equal(t, "Oi", got[0].Text)
	assert.Equal(t, "Maria", got[0].ProfileName)
	assert.Equal(t, "12345", got[0].PhoneNumberID)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), got[0].Timestamp)
}

func TestHandleInboundUnknownObject(t *testing.T) {
	called := false
	h := NewWebhookHandler("token", "", func(context.Context, InboundMessage) { called = true }, testLogger(), nil)

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(`{"object":"instagram","entry":[]}`))
	w := httptest.NewRecorder()
	h.HandleInbound(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Objeto não reconhecido\n", w.Body.String())
	assert.False(t, called)
}

func TestHandleInboundMalformedIsAcknowledged(t *testing.T) {
	h := NewWebhookHandler("token", "", nil, testLogger(), nil)

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(`{not json`))
	w := httptest.NewRecorder()
	h.HandleInbound(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "EVENT_RECEIVED", w.Body.String())
}

func TestHandleInboundObservesLatencyOnEveryOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := NewWebhookHandler("token", "", nil, testLogger(), metrics.NewMessagingMetrics(reg))

	for _, body := range []string{textEventJSON, `{"object":"instagram","entry":[]}`, `{not json`} {
		req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(body))
		h.HandleInbound(httptest.NewRecorder(), req)
	}

	families, err := reg.Gather()
	require.NoError(t, err)
	counts := map[string]uint64{}
	for _, f := range families {
		if f.GetName() != "clinicbot_whatsapp_webhook_latency_seconds" {
			continue
		}
		for _, metric := range f.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "object" {
					counts[label.GetValue()] = metric.GetHistogram().GetSampleCount()
				}
			}
		}
	}
	assert.Equal(t, map[string]uint64{
		ObjectBusinessAccount: 1,
		"unrecognized":        1,
		"malformed":           1,
	}, counts)
}

func TestHandleInboundSignature(t *testing.T) {
	const secret = "app_secret"
	calls := 0
	h := NewWebhookHandler("token", secret, func(context.Context, InboundMessage) { calls++ }, testLogger(), nil)

	t.Run("rejects bad signature", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(textEventJSON))
		req.Header.Set("X-Hub-Signature-256", "sha256=deadbeef")
		w := httptest.NewRecorder()
		h.HandleInbound(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Zero(t, calls)
	})

	t.Run("accepts valid signature", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(textEventJSON))
		req.Header.Set("X-Hub-Signature-256", sign(secret, []byte(textEventJSON)))
		w := httptest.NewRecorder()
		h.HandleInbound(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 1, calls)
	})
}

func TestParseWebhookEvent(t *testing.T) {
	event := WebhookEvent{
		Object: ObjectBusinessAccount,
		Entry: []Entry{{
			ID: "WABA_1",
			Changes: []Change{
				{
					Field: "messages",
					Value: ChangeValue{
						Metadata: Metadata{PhoneNumberID: "12345"},
						Contacts: []Contact{{WaID: "5542984285525"}},
						Messages: []Message{
							{ID: "m1", Type: MessageTypeAudio, Audio: &InboundMedia{ID: "audio_1", MIMEType: "audio/ogg; codecs=opus"}},
							{ID: "m2", Type: MessageTypeInteractive, Interactive: &InteractiveReply{
								Type:        "button_reply",
								ButtonReply: &ReplyItem{ID: "btn_endereco", Title: "Endereço"},
							}},
							{ID: "m3", Type: MessageTypeInteractive, Interactive: &InteractiveReply{
								Type:      "list_reply",
								ListReply: &ReplyItem{ID: "botox", Title: "Botox"},
							}},
							{ID: "m4", Type: MessageTypeButton, Button: &QuickReply{Text: "Quero agendar", Payload: "agendar"}},
							{ID: "m5", Type: MessageTypeImage, Image: &InboundMedia{ID: "img_1"}},
						},
					},
				},
				{
					Field: "message_template_status_update",
					Value: ChangeValue{Statuses: []json.RawMessage{json.RawMessage(`{"id":"wamid.S","status":"delivered"}`)}},
				},
				{
					Field: "account_update",
					Value: ChangeValue{Messages: []Message{{ID: "ignored", Type: MessageTypeText, Text: &TextBody{Body: "x"}}}},
				},
			},
		}},
	}

	messages := ParseWebhookEvent(event)
	require.Len(t, messages, 5)

	assert.Equal(t, "audio_1", messages[0].AudioID)
	assert.Equal(t, "audio/ogg; codecs=opus", messages[0].AudioMIMEType)
	assert.Equal(t, "Endereço", messages[1].Text)
	assert.Equal(t, "btn_endereco", messages[1].ReplyID)
	assert.Equal(t, "Botox", messages[2].Text)
	assert.Equal(t, "Quero agendar", messages[3].Text)
	assert.Equal(t, "agendar", messages[3].ReplyID)
	assert.Equal(t, MessageTypeImage, messages[4].Type)
	assert.Empty(t, messages[4].Text)
	for _, m := range messages {
		assert.Equal(t, "5542984285525", m.Phone)
	}
}

func TestParseWebhookEventMissingContact(t *testing.T) {
	var event WebhookEvent
	require.NoError(t, json.Unmarshal([]byte(`{
	  "object": "whatsapp_business_account",
	  "entry": [{"changes": [{"field": "messages", "value": {
	    "contacts": [{"profile": {"name": "Sem número"}}],
	    "messages": [{"id": "m1", "type": "text", "text": {"body": "Oi"}}]
	  }}]}]
	}`), &event))

	messages := ParseWebhookEvent(event)
	require.Len(t, messages, 1)
	assert.Equal(t, UnknownWaID, messages[0].WaID)
	assert.Empty(t, messages[0].Phone)
	assert.Equal(t, "Sem número", messages[0].ProfileName)
}
