package conversation

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-whatsapp-agent/pkg/logging"
)

const (
	defaultMaxToolRounds = 5
	agentMaxTokens       = 8192
	agentTemperature     = 0
	agentTopP            = 0.95
)

var conversationTracer = otel.Tracer("clinicbot.internal.conversation")

// AgentConfig wires an Agent.
type AgentConfig struct {
	LLM           LLMClient
	Executor      *ToolExecutor
	Knowledge     *Knowledge
	Model         string
	MaxToolRounds int
	Logger        *logging.Logger
}

// Agent answers one patient message at a time. It keeps no history: every
// call starts a fresh exchange with the model.
type Agent struct {
	llm           LLMClient
	executor      *ToolExecutor
	knowledge     *Knowledge
	model         string
	maxToolRounds int
	logger        *logging.Logger
}

// SentMessage records one delivered reply.
type SentMessage struct {
	Kind      MessageKind
	MessageID string
}

// Result summarizes a Respond call.
type Result struct {
	Rounds int
	Sent   []SentMessage
	Text   string
}

func NewAgent(cfg AgentConfig) (*Agent, error) {
	if cfg.LLM == nil {
		return nil, errors.New("conversation: llm client is required")
	}
	if cfg.Executor == nil {
		return nil, errors.New("conversation: tool executor is required")
	}
	if cfg.Knowledge == nil {
		return nil, errors.New("conversation: knowledge is required")
	}
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = defaultMaxToolRounds
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Agent{
		llm:           cfg.LLM,
		executor:      cfg.Executor,
		knowledge:     cfg.Knowledge,
		model:         cfg.Model,
		maxToolRounds: cfg.MaxToolRounds,
		logger:        cfg.Logger,
	}, nil
}

// Reply satisfies whatsapp.Responder.
func (a *Agent) Reply(ctx context.Context, phone, text string) error {
	_, err := a.Respond(ctx, phone, text)
	return err
}

// Respond runs the tool loop for one inbound text from phone (canonical form).
func (a *Agent) Respond(ctx context.Context, phone, text string) (Result, error) {
	ctx, span := conversationTracer.Start(ctx, "conversation.respond")
	defer span.End()

	log := a.logger.WithTrace(ctx).With("phone", phone)

	system, err := a.knowledge.SystemPrompt(phone)
	if err != nil {
		return Result{}, err
	}

	req := LLMRequest{
		Model:       a.model,
		System:      []string{system},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: text}},
		Tools:       []ToolDefinition{SendMessageDefinition()},
		MaxTokens:   agentMaxTokens,
		Temperature: agentTemperature,
		TopP:        agentTopP,
	}

	var result Result
	defer func() {
		span.SetAttributes(
			attribute.Int("conversation.rounds", result.Rounds),
			attribute.Int("conversation.sent", len(result.Sent)),
		)
	}()

	for result.Rounds < a.maxToolRounds {
		result.Rounds++
		resp, err := a.llm.Complete(ctx, req)
		if err != nil {
			span.RecordError(err)
			if len(result.Sent) > 0 {
				log.Warn("llm failed after reply was sent", "error", err, "round", result.Rounds, "sent", len(result.Sent))
				return result, nil
			}
			return result, err
		}
		result.Text = resp.Text

		if len(resp.ToolCalls) == 0 {
			if len(result.Sent) > 0 {
				return result, nil
			}
			return result, a.sendDirect(ctx, phone, resp.Text, &result)
		}

		req.Messages = append(req.Messages, ChatMessage{
			Role:      ChatRoleAssistant,
			Content:   resp.Text,
			ToolCalls: resp.ToolCalls,
		})
		results := make([]ToolResult, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			results = append(results, a.runTool(ctx, log, phone, call, &result))
		}
		req.Messages = append(req.Messages, ChatMessage{Role: ChatRoleTool, ToolResults: results})
	}

	log.Warn("agent stopped after max tool rounds", "rounds", result.Rounds, "sent", len(result.Sent))
	if len(result.Sent) == 0 {
		return result, a.sendDirect(ctx, phone, "", &result)
	}
	return result, nil
}

// sendDirect guarantees the patient a reply when the model never used the
// tool: its text if it produced any, the fallback buttons otherwise.
func (a *Agent) sendDirect(ctx context.Context, phone, text string, result *Result) error {
	in := SendInstruction{To: phone, Kind: KindFallback}
	if text != "" {
		in = SendInstruction{To: phone, Kind: KindText, Message: text}
	}
	resp, err := a.executor.Execute(ctx, phone, in)
	if err != nil {
		return fmt.Errorf("conversation: send direct reply: %w", err)
	}
	result.Sent = append(result.Sent, SentMessage{Kind: in.Kind, MessageID: resp.MessageID()})
	return nil
}

func (a *Agent) runTool(ctx context.Context, log *logging.Logger, phone string, call ToolCall, result *Result) ToolResult {
	out := ToolResult{CallID: call.ID, Name: call.Name}

	if call.Name != SendMessageTool {
		log.Warn("model called unknown tool", "tool", call.Name)
		out.Response = map[string]any{"status": "error", "error": fmt.Sprintf("unknown tool %q", call.Name)}
		return out
	}

	in, err := ParseSendInstruction(call.Args)
	if err != nil {
		log.Warn("send_message arguments rejected", "error", err)
		out.Response = map[string]any{"status": "error", "error": err.Error()}
		return out
	}

	resp, err := a.executor.Execute(ctx, phone, in)
	if err != nil {
		log.Error("send_message failed", "kind", in.Kind, "error", err)
		out.Response = map[string]any{"status": "error", "error": err.Error()}
		return out
	}

	result.Sent = append(result.Sent, SentMessage{Kind: in.Kind, MessageID: resp.MessageID()})
	out.Response = map[string]any{"status": "sent", "message_id": resp.MessageID()}
	return out
}
