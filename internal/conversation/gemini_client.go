package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const defaultGeminiModel = "gemini-2.0-flash"

var geminiSafetySettings = []*genai.SafetySetting{
	{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockLowAndAbove},
	{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockLowAndAbove},
	{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockLowAndAbove},
	{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockLowAndAbove},
}

// GeminiLLMClient implements LLMClient using Google's Gemini API.
type GeminiLLMClient struct {
	client  *genai.Client
	modelID string
}

// NewGeminiLLMClient creates a new Gemini LLM client.
func NewGeminiLLMClient(ctx context.Context, apiKey, modelID string) (*GeminiLLMClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("conversation: gemini api key is required")
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = defaultGeminiModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("conversation: failed to create gemini client: %w", err)
	}

	return &GeminiLLMClient{
		client:  client,
		modelID: modelID,
	}, nil
}

// Complete sends a completion request to Gemini and returns the response.
func (c *GeminiLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	modelID := c.modelID
	if req.Model != "" {
		modelID = req.Model
	}
	model := c.client.GenerativeModel(modelID)

	if req.Temperature >= 0 {
		model.SetTemperature(req.Temperature)
	}
	if req.TopP > 0 {
		model.SetTopP(req.TopP)
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(req.MaxTokens)
	}
	model.SafetySettings = geminiSafetySettings

	if len(req.System) > 0 {
		systemText := strings.Join(req.System, "\n\n")
		if strings.TrimSpace(systemText) != "" {
			model.SystemInstruction = genai.NewUserContent(genai.Text(systemText))
		}
	}
	if len(req.Tools) > 0 {
		model.Tools = []*genai.Tool{geminiTool(req.Tools)}
	}

	if len(req.Messages) == 0 {
		return LLMResponse{}, errors.New("conversation: gemini requires at least one message")
	}

	cs := model.StartChat()
	for _, msg := range req.Messages[:len(req.Messages)-1] {
		if msg.Role == ChatRoleSystem {
			continue
		}
		parts := geminiParts(msg)
		if len(parts) == 0 {
			continue
		}
		cs.History = append(cs.History, &genai.Content{Role: geminiRole(msg.Role), Parts: parts})
	}

	last := geminiParts(req.Messages[len(req.Messages)-1])
	if len(last) == 0 {
		return LLMResponse{}, errors.New("conversation: gemini last message is empty")
	}
	resp, err := cs.SendMessage(ctx, last...)
	if err != nil {
		return LLMResponse{}, fmt.Errorf("conversation: gemini completion failed: %w", err)
	}

	if len(resp.Candidates) == 0 {
		return LLMResponse{}, errors.New("conversation: gemini returned no candidates")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return LLMResponse{}, fmt.Errorf("conversation: gemini returned empty content (finish reason %s)", candidate.FinishReason)
	}

	var (
		responseText strings.Builder
		calls        []ToolCall
	)
	for _, part := range candidate.Content.Parts {
		switch p := part.(type) {
		case genai.Text:
			responseText.WriteString(string(p))
		case genai.FunctionCall:
			calls = append(calls, ToolCall{
				ID:   fmt.Sprintf("call_%d", len(calls)),
				Name: p.Name,
				Args: p.Args,
			})
		}
	}

	result := LLMResponse{
		Text:       strings.TrimSpace(responseText.String()),
		ToolCalls:  calls,
		StopReason: candidate.FinishReason.String(),
	}

	if resp.UsageMetadata != nil {
		result.Usage = TokenUsage{
			InputTokens:  resp.UsageMetadata.PromptTokenCount,
			OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:  resp.UsageMetadata.TotalTokenCount,
		}
	}

	return result, nil
}

// Close releases resources held by the Gemini client.
func (c *GeminiLLMClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func geminiRole(role string) string {
	if role == ChatRoleAssistant {
		return "model"
	}
	return "user"
}

func geminiParts(msg ChatMessage) []genai.Part {
	var parts []genai.Part
	if content := strings.TrimSpace(msg.Content); content != "" {
		parts = append(parts, genai.Text(content))
	}
	for _, call := range msg.ToolCalls {
		parts = append(parts, genai.FunctionCall{Name: call.Name, Args: call.Args})
	}
	for _, result := range msg.ToolResults {
		parts = append(parts, genai.FunctionResponse{Name: result.Name, Response: result.Response})
	}
	return parts
}

func geminiTool(defs []ToolDefinition) *genai.Tool {
	tool := &genai.Tool{}
	for _, def := range defs {
		props := make(map[string]*genai.Schema, len(def.Parameters))
		for name, param := range def.Parameters {
			props[name] = &genai.Schema{
				Type:        geminiType(param.Type),
				Description: param.Description,
				Enum:        param.Enum,
			}
		}
		tool.FunctionDeclarations = append(tool.FunctionDeclarations, &genai.FunctionDeclaration{
			Name:        def.Name,
			Description: def.Description,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: props,
				Required:   def.Required,
			},
		})
	}
	return tool
}

func geminiType(t string) genai.Type {
	switch strings.ToLower(t) {
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}
