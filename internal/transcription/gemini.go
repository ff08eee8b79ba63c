package transcription

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const (
	defaultTranscriptionModel = "gemini-1.5-flash"
	transcriptionPrompt       = "Por favor, transcreva o seguinte áudio em texto. O áudio está em português do Brasil."
)

// GeminiTranscriber transcribes audio with a Gemini multimodal model.
type GeminiTranscriber struct {
	client  *genai.Client
	modelID string
}

func NewGeminiTranscriber(ctx context.Context, apiKey, modelID string) (*GeminiTranscriber, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("transcription: gemini api key is required")
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = defaultTranscriptionModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("transcription: failed to create gemini client: %w", err)
	}
	return &GeminiTranscriber{client: client, modelID: modelID}, nil
}

func (g *GeminiTranscriber) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if mimeType == "" {
		mimeType = MIMETypeMP3
	}
	model := g.client.GenerativeModel(g.modelID)
	resp, err := model.GenerateContent(ctx, genai.Text(transcriptionPrompt), genai.Blob{MIMEType: mimeType, Data: audio})
	if err != nil {
		return "", fmt.Errorf("transcription: gemini request failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ErrEmptyTranscript
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	return strings.TrimSpace(text.String()), nil
}

func (g *GeminiTranscriber) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}
