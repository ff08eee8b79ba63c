package whatsapp

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-whatsapp-agent/internal/observability/metrics"
	"github.com/wolfman30/clinic-whatsapp-agent/internal/phone"
	"github.com/wolfman30/clinic-whatsapp-agent/pkg/logging"
)

const (
	// UnknownWaID stands in for a sender whose contact carried no wa_id.
	UnknownWaID = "desconhecido"

	signatureHeader = "X-Hub-Signature-256"
	maxWebhookBytes = 1 << 20

	verificationFailedText = "Falha na verificação"
	invalidParamsText      = "Parâmetros inválidos"
	unknownObjectText      = "Objeto não reconhecido"
	eventReceivedText      = "EVENT_RECEIVED"
)

// WebhookHandler handles WhatsApp webhook verification and inbound events.
type WebhookHandler struct {
	verifyToken string
	appSecret   string
	onMessage   func(ctx context.Context, msg InboundMessage)
	logger      *logging.Logger
	metrics     *metrics.MessagingMetrics
}

// NewWebhookHandler creates a new webhook handler. onMessage is called
// synchronously for every parsed message before the event is acknowledged.
// Signatures are only checked when appSecret is set.
func NewWebhookHandler(verifyToken, appSecret string, onMessage func(context.Context, InboundMessage), logger *logging.Logger, m *metrics.MessagingMetrics) *WebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{
		verifyToken: verifyToken,
		appSecret:   appSecret,
		onMessage:   onMessage,
		logger:      logger,
		metrics:     m,
	}
}

// HandleVerification answers Meta's GET subscription challenge.
func (h *WebhookHandler) HandleVerification(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode == "" || token == "" {
		http.Error(w, invalidParamsText, http.StatusBadRequest)
		return
	}
	if mode == "subscribe" && token == h.verifyToken {
		h.logger.Info("whatsapp webhook verified")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, challenge)
		return
	}

	h.logger.Warn("whatsapp webhook verification failed", "mode", mode)
	http.Error(w, verificationFailedText, http.StatusForbidden)
}

// HandleInbound handles POST webhook events.
func (h *WebhookHandler) HandleInbound(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, span := whatsappTracer.Start(r.Context(), "whatsapp.webhook")
	defer span.End()

	object := "unparsed"
	defer func() {
		h.metrics.ObserveWebhookLatency(object, time.Since(start).Seconds())
	}()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	if h.appSecret != "" && !VerifySignature(h.appSecret, body, r.Header.Get(signatureHeader)) {
		h.logger.Warn("whatsapp webhook signature rejected", "remote_addr", r.RemoteAddr)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		// Meta retries anything that is not a 2xx, so malformed bodies are acknowledged.
		span.RecordError(err)
		h.logger.Error("whatsapp webhook body malformed", "error", err, "bytes", len(body))
		object = "malformed"
		writeEventReceived(w)
		return
	}
	object = event.Object
	span.SetAttributes(attribute.String("whatsapp.object", event.Object))

	if event.Object != ObjectBusinessAccount {
		h.logger.Warn("whatsapp webhook object not recognized", "object", event.Object)
		object = "unrecognized"
		http.Error(w, unknownObjectText, http.StatusNotFound)
		return
	}

	messages := ParseWebhookEvent(event)
	span.SetAttributes(attribute.Int("whatsapp.messages", len(messages)))
	for _, msg := range messages {
		if h.onMessage != nil {
			h.onMessage(ctx, msg)
		}
	}

	writeEventReceived(w)
}

func writeEventReceived(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, eventReceivedText)
}

// ParseWebhookEvent extracts InboundMessages from every "messages" change of
// the event. The sender comes from the first contact of the change; Phone is
// its canonical form, left empty when the contact has no wa_id.
func ParseWebhookEvent(event WebhookEvent) []InboundMessage {
	var messages []InboundMessage

	for _, entry := range event.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}
			value := change.Value

			waID, profileName := UnknownWaID, ""
			if len(value.Contacts) > 0 {
				profileName = value.Contacts[0].Profile.Name
				if value.Contacts[0].WaID != "" {
					waID = value.Contacts[0].WaID
				}
			}
			canonical := ""
			if waID != UnknownWaID {
				canonical = phone.Normalize(waID)
			}

			for _, m := range value.Messages {
				parsed := InboundMessage{
					MessageID:     m.ID,
					Type:          m.Type,
					Timestamp:     parseTimestamp(m.Timestamp),
					WaID:          waID,
					Phone:         canonical,
					ProfileName:   profileName,
					PhoneNumberID: value.Metadata.PhoneNumberID,
				}

				switch m.Type {
				case MessageTypeText:
					if m.Text != nil {
						parsed.Text = m.Text.Body
					}
				case MessageTypeAudio:
					if m.Audio != nil {
						parsed.AudioID = m.Audio.ID
						parsed.AudioMIMEType = m.Audio.MIMEType
					}
				case MessageTypeInteractive:
					if m.Interactive != nil {
						reply := m.Interactive.ButtonReply
						if reply == nil {
							reply = m.Interactive.ListReply
						}
						if reply != nil {
							parsed.Text = reply.Title
							parsed.ReplyID = reply.ID
						}
					}
				case MessageTypeButton:
					if m.Button != nil {
						parsed.Text = m.Button.Text
						parsed.ReplyID = m.Button.Payload
					}
				}

				messages = append(messages, parsed)
			}
		}
	}

	return messages
}

func parseTimestamp(raw string) time.Time {
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}

// VerifySignature verifies the X-Hub-Signature-256 header.
func VerifySignature(appSecret string, body []byte, signature string) bool {
	if appSecret == "" || signature == "" {
		return false
	}

	// Signature format: "sha256=<hex>"
	const prefix = "sha256="
	if len(signature) <= len(prefix) || signature[:len(prefix)] != prefix {
		return false
	}
	sigHex := signature[len(prefix):]

	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(sigHex))
}
