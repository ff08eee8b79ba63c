package whatsapp

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-whatsapp-agent/internal/observability/metrics"
	"github.com/wolfman30/clinic-whatsapp-agent/pkg/logging"
)

// Replies sent directly by the dispatcher.
const (
	AckText          = "Ok, mensagem de texto recebida e processada"
	AudioMissingText = "Não foi possível processar o áudio. Por favor, tente novamente."
	AudioFailedText  = "Ocorreu um erro ao processar o áudio. Por favor, tente novamente mais tarde."
)

// TextSender is the subset of Client the dispatcher needs.
type TextSender interface {
	SendText(ctx context.Context, to, body string) (*SendResponse, error)
}

// Responder produces and sends the reply to a patient's text.
type Responder interface {
	Reply(ctx context.Context, phone, text string) error
}

// Transcriber turns an inbound voice note into text.
type Transcriber interface {
	Transcribe(ctx context.Context, mediaID string) (string, error)
}

// AckResponder answers every text with a fixed acknowledgement. It is used
// when no agent is configured.
type AckResponder struct {
	Sender TextSender
}

func (a AckResponder) Reply(ctx context.Context, phone, _ string) error {
	_, err := a.Sender.SendText(ctx, phone, AckText)
	return err
}

// AdapterConfig wires the dispatcher.
type AdapterConfig struct {
	VerifyToken string
	AppSecret   string
	Sender      TextSender
	Responder   Responder
	// Transcriber is optional; voice notes are answered with AudioFailedText without it.
	Transcriber Transcriber
	Logger      *logging.Logger
	Metrics     *metrics.MessagingMetrics
}

// Adapter is the WhatsApp channel adapter. It verifies and parses webhooks
// and routes each inbound message to the responder.
type Adapter struct {
	sender      TextSender
	responder   Responder
	transcriber Transcriber
	webhook     *WebhookHandler
	logger      *logging.Logger
	metrics     *metrics.MessagingMetrics
}

// NewAdapter creates a new WhatsApp adapter. A nil Responder falls back to AckResponder.
func NewAdapter(cfg AdapterConfig) *Adapter {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Responder == nil {
		cfg.Responder = AckResponder{Sender: cfg.Sender}
	}
	a := &Adapter{
		sender:      cfg.Sender,
		responder:   cfg.Responder,
		transcriber: cfg.Transcriber,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
	}
	a.webhook = NewWebhookHandler(cfg.VerifyToken, cfg.AppSecret, a.Dispatch, cfg.Logger, cfg.Metrics)
	return a
}

// HandleVerification handles GET /webhook (Meta challenge).
func (a *Adapter) HandleVerification(w http.ResponseWriter, r *http.Request) {
	a.webhook.HandleVerification(w, r)
}

// HandleWebhook handles POST /webhook (inbound messages).
func (a *Adapter) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	a.webhook.HandleInbound(w, r)
}

// Dispatch processes one inbound message. Failures are logged and counted,
// never returned: the webhook is acknowledged regardless.
func (a *Adapter) Dispatch(ctx context.Context, msg InboundMessage) {
	ctx, span := whatsappTracer.Start(ctx, "whatsapp.dispatch")
	defer span.End()
	span.SetAttributes(
		attribute.String("whatsapp.message_id", msg.MessageID),
		attribute.String("whatsapp.message_type", msg.Type),
	)

	log := a.logger.WithTrace(ctx).With("wa_id", msg.WaID, "message_id", msg.MessageID, "type", msg.Type)

	if msg.Phone == "" {
		log.Warn("whatsapp message without sender, skipping")
		a.metrics.ObserveInbound(msg.Type, "skipped")
		return
	}

	var err error
	switch msg.Type {
	case MessageTypeText, MessageTypeInteractive, MessageTypeButton:
		if msg.Text == "" {
			log.Warn("whatsapp message has no text, ignoring")
			a.metrics.ObserveInbound(msg.Type, "ignored")
			return
		}
		log.Info("whatsapp message received", "profile_name", msg.ProfileName)
		err = a.responder.Reply(ctx, msg.Phone, msg.Text)
	case MessageTypeAudio:
		err = a.handleAudio(ctx, log, msg)
	default:
		log.Info("whatsapp message type not handled")
		a.metrics.ObserveInbound(msg.Type, "ignored")
		return
	}

	if err != nil {
		span.RecordError(err)
		log.Error("whatsapp message processing failed", "error", err)
		a.metrics.ObserveInbound(msg.Type, "error")
		return
	}
	a.metrics.ObserveInbound(msg.Type, "ok")
}

func (a *Adapter) handleAudio(ctx context.Context, log *logging.Logger, msg InboundMessage) error {
	if msg.AudioID == "" {
		log.Warn("whatsapp audio without media id")
		_, err := a.sender.SendText(ctx, msg.Phone, AudioMissingText)
		return err
	}
	if a.transcriber == nil {
		log.Warn("whatsapp audio received but transcription is disabled", "audio_id", msg.AudioID)
		_, err := a.sender.SendText(ctx, msg.Phone, AudioFailedText)
		return err
	}

	transcript, err := a.transcriber.Transcribe(ctx, msg.AudioID)
	if err != nil {
		log.Error("whatsapp audio transcription failed", "audio_id", msg.AudioID, "error", err)
		if _, sendErr := a.sender.SendText(ctx, msg.Phone, AudioFailedText); sendErr != nil {
			return sendErr
		}
		return err
	}

	log.Info("whatsapp audio transcribed", "audio_id", msg.AudioID, "chars", len(transcript))
	return a.responder.Reply(ctx, msg.Phone, transcript)
}
