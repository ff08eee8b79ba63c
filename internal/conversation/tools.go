package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/clinic-whatsapp-agent/internal/channels/whatsapp"
	"github.com/wolfman30/clinic-whatsapp-agent/internal/observability/metrics"
	"github.com/wolfman30/clinic-whatsapp-agent/internal/phone"
	"github.com/wolfman30/clinic-whatsapp-agent/pkg/logging"
)

// SendMessageTool is the only function exposed to the model.
const SendMessageTool = "send_message"

// MessageKind selects what send_message delivers.
type MessageKind string

const (
	KindText       MessageKind = "text"
	KindImage      MessageKind = "image"
	KindWelcome    MessageKind = "welcome"
	KindFallback   MessageKind = "fallback"
	KindProcedures MessageKind = "procedures"
	KindAddress    MessageKind = "address"
	KindCalendar   MessageKind = "calendar"
	KindClosing    MessageKind = "closing"
	KindEscalate   MessageKind = "escalate"
)

var kindAliases = map[string]MessageKind{
	"text":          KindText,
	"image":         KindImage,
	"welcome":       KindWelcome,
	"fallback":      KindFallback,
	"procedures":    KindProcedures,
	"procedimentos": KindProcedures,
	"procedimento":  KindProcedures,
	"address":       KindAddress,
	"endereco":      KindAddress,
	"endereço":      KindAddress,
	"calendar":      KindCalendar,
	"calendario":    KindCalendar,
	"calendário":    KindCalendar,
	"closing":       KindClosing,
	"encerramento":  KindClosing,
	"escalate":      KindEscalate,
}

var (
	ErrUnknownKind     = errors.New("conversation: unknown message type")
	ErrMissingArgument = errors.New("conversation: missing tool argument")
)

// ParseKind resolves a tool "type" argument, ignoring case and accepting the
// Portuguese names.
func ParseKind(raw string) (MessageKind, bool) {
	kind, ok := kindAliases[strings.ToLower(strings.TrimSpace(raw))]
	return kind, ok
}

// SendInstruction is a decoded send_message call.
type SendInstruction struct {
	To       string
	Kind     MessageKind
	Message  string
	ImageURL string
}

// ParseSendInstruction validates the arguments of a send_message call.
func ParseSendInstruction(args map[string]any) (SendInstruction, error) {
	to := stringArg(args, "to")
	rawKind := stringArg(args, "type")
	if to == "" {
		return SendInstruction{}, fmt.Errorf("%w: to", ErrMissingArgument)
	}
	if rawKind == "" {
		return SendInstruction{}, fmt.Errorf("%w: type", ErrMissingArgument)
	}
	kind, ok := ParseKind(rawKind)
	if !ok {
		return SendInstruction{}, fmt.Errorf("%w: %q", ErrUnknownKind, rawKind)
	}
	return SendInstruction{
		To:       to,
		Kind:     kind,
		Message:  stringArg(args, "message"),
		ImageURL: stringArg(args, "image_url"),
	}, nil
}

func stringArg(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// SendMessageDefinition declares send_message for the model.
func SendMessageDefinition() ToolDefinition {
	return ToolDefinition{
		Name:        SendMessageTool,
		Description: "Envia mensagens para o paciente.",
		Parameters: map[string]ToolParameter{
			"to": {
				Type:        "string",
				Description: "Número do telefone do paciente",
			},
			"type": {
				Type:        "string",
				Description: "Tipo da mensagem: text, image, welcome, fallback, procedures, address, calendar, closing ou escalate",
			},
			"message": {
				Type:        "string",
				Description: "Texto a ser enviado ao paciente (type text ou image).",
			},
			"image_url": {
				Type:        "string",
				Description: "URL da imagem a ser enviada ao paciente (type image).",
			},
		},
		Required: []string{"to", "type"},
	}
}

// Messenger is the part of the WhatsApp gateway the agent uses.
type Messenger interface {
	SendText(ctx context.Context, to, body string) (*whatsapp.SendResponse, error)
	SendImage(ctx context.Context, to, link, caption string) (*whatsapp.SendResponse, error)
	SendButtons(ctx context.Context, to, body string, buttons []whatsapp.ReplyButton) (*whatsapp.SendResponse, error)
	SendList(ctx context.Context, to, body, buttonText string, sections []whatsapp.ListSection) (*whatsapp.SendResponse, error)
	SendLocation(ctx context.Context, to string, loc whatsapp.Location) (*whatsapp.SendResponse, error)
}

// ToolExecutor turns send_message calls into gateway sends.
type ToolExecutor struct {
	messenger Messenger
	knowledge *Knowledge
	logger    *logging.Logger
	metrics   *metrics.MessagingMetrics
}

func NewToolExecutor(messenger Messenger, knowledge *Knowledge, logger *logging.Logger, m *metrics.MessagingMetrics) *ToolExecutor {
	if logger == nil {
		logger = logging.Default()
	}
	return &ToolExecutor{messenger: messenger, knowledge: knowledge, logger: logger, metrics: m}
}

// Execute delivers the instruction to caller, the canonical phone of the
// patient being answered. A different "to" chosen by the model is ignored.
func (e *ToolExecutor) Execute(ctx context.Context, caller string, in SendInstruction) (resp *whatsapp.SendResponse, err error) {
	defer func() { e.metrics.ObserveToolCall(string(in.Kind), err) }()

	log := e.logger.WithTrace(ctx).With("kind", in.Kind, "to", caller)
	if target := phone.Normalize(in.To); target != caller {
		log.Warn("send_message recipient differs from caller, sending to caller", "requested_to", in.To)
	}

	k := e.knowledge
	switch in.Kind {
	case KindText:
		if in.Message == "" {
			return nil, fmt.Errorf("%w: message", ErrMissingArgument)
		}
		return e.messenger.SendText(ctx, caller, in.Message)
	case KindImage:
		if in.ImageURL == "" {
			if in.Message == "" {
				return nil, fmt.Errorf("%w: image_url", ErrMissingArgument)
			}
			log.Info("image requested without url, sending text")
			return e.messenger.SendText(ctx, caller, in.Message)
		}
		return e.messenger.SendImage(ctx, caller, in.ImageURL, in.Message)
	case KindWelcome:
		return e.messenger.SendButtons(ctx, caller, k.Replies.Welcome.Text, k.Replies.Welcome.Buttons)
	case KindFallback:
		return e.messenger.SendButtons(ctx, caller, k.Replies.Fallback.Text, k.Replies.Fallback.Buttons)
	case KindProcedures:
		return e.messenger.SendList(ctx, caller, k.Replies.Procedures.Body, k.Replies.Procedures.Button, k.ProcedureSections())
	case KindAddress:
		return e.messenger.SendLocation(ctx, caller, k.Location())
	case KindCalendar:
		return e.messenger.SendText(ctx, caller, k.CalendarText())
	case KindClosing:
		return e.messenger.SendText(ctx, caller, k.Replies.Closing)
	case KindEscalate:
		log.Warn("escalation requested")
		return e.messenger.SendText(ctx, caller, k.Replies.Escalation)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, in.Kind)
	}
}
