package conversation

import (
	"context"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeminiToolDeclaresSendMessage(t *testing.T) {
	tool := geminiTool([]ToolDefinition{SendMessageDefinition()})

	require.Len(t, tool.FunctionDeclarations, 1)
	decl := tool.FunctionDeclarations[0]
	assert.Equal(t, SendMessageTool, decl.Name)
	assert.Equal(t, genai.TypeObject, decl.Parameters.Type)
	assert.ElementsMatch(t, []string{"to", "type"}, decl.Parameters.Required)
	for _, name := range []string{"to", "type", "message", "image_url"} {
		require.Contains(t, decl.Parameters.Properties, name)
		assert.Equal(t, genai.TypeString, decl.Parameters.Properties[name].Type)
	}
}

func TestGeminiPartsAndRoles(t *testing.T) {
	assistant := ChatMessage{
		Role:      ChatRoleAssistant,
		Content:   "  ",
		ToolCalls: []ToolCall{{ID: "call_0", Name: SendMessageTool, Args: map[string]any{"type": "welcome"}}},
	}
	parts := geminiParts(assistant)
	require.Len(t, parts, 1)
	assert.Equal(t, genai.FunctionCall{Name: SendMessageTool, Args: map[string]any{"type": "welcome"}}, parts[0])
	assert.Equal(t, "model", geminiRole(assistant.Role))

	tool := ChatMessage{
		Role:        ChatRoleTool,
		ToolResults: []ToolResult{{CallID: "call_0", Name: SendMessageTool, Response: map[string]any{"status": "sent"}}},
	}
	parts = geminiParts(tool)
	require.Len(t, parts, 1)
	assert.Equal(t, genai.FunctionResponse{Name: SendMessageTool, Response: map[string]any{"status": "sent"}}, parts[0])
	assert.Equal(t, "user", geminiRole(tool.Role))

	parts = geminiParts(ChatMessage{Role: ChatRoleUser, Content: " Oi "})
	assert.Equal(t, []genai.Part{genai.Text("Oi")}, parts)
}

func TestGeminiType(t *testing.T) {
	assert.Equal(t, genai.TypeNumber, geminiType("number"))
	assert.Equal(t, genai.TypeBoolean, geminiType("BOOLEAN"))
	assert.Equal(t, genai.TypeString, geminiType(""))
}

func TestNewGeminiLLMClientRequiresKey(t *testing.T) {
	_, err := NewGeminiLLMClient(context.Background(), " ", "")
	assert.Error(t, err)
}
