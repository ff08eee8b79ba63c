package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "ENV", "LOG_LEVEL", "WHATSAPP_API_VERSION", "WHATSAPP_GRAPH_BASE_URL",
		"WHATSAPP_HTTP_TIMEOUT", "GEMINI_API_KEY", "GEMINI_AGENT_MODEL", "TRANSCRIPTION_ENABLED", "AGENT_MAX_TOOL_ROUNDS"} {
		t.Setenv(key, "")
	}
	cfg := Load()
	if cfg.Port != "5000" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.WhatsAppAPIVersion != "v22.0" {
		t.Fatalf("expected default api version, got %s", cfg.WhatsAppAPIVersion)
	}
	if cfg.WhatsAppGraphBaseURL != "https://graph.facebook.com" {
		t.Fatalf("unexpected graph base %s", cfg.WhatsAppGraphBaseURL)
	}
	if cfg.WhatsAppHTTPTimeout != 30*time.Second {
		t.Fatalf("expected 30s timeout, got %s", cfg.WhatsAppHTTPTimeout)
	}
	if cfg.GeminiAgentModel != "gemini-2.0-flash" {
		t.Fatalf("unexpected agent model %s", cfg.GeminiAgentModel)
	}
	if !cfg.TranscriptionEnabled {
		t.Fatal("expected transcription enabled by default")
	}
	if cfg.AgentEnabled() || cfg.TranscriptionAvailable() {
		t.Fatal("agent must be disabled without a gemini key")
	}
	if cfg.AgentMaxToolRounds != 5 {
		t.Fatalf("expected 5 tool rounds, got %d", cfg.AgentMaxToolRounds)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("WHATSAPP_PHONE_NUMBER_ID", " 123456 ")
	t.Setenv("WHATSAPP_ACCESS_TOKEN", "token")
	t.Setenv("WHATSAPP_GRAPH_BASE_URL", "http://localhost:9999/")
	t.Setenv("WHATSAPP_HTTP_TIMEOUT", "5s")
	t.Setenv("GEMINI_API_KEY", "key")
	t.Setenv("TRANSCRIPTION_ENABLED", "false")
	t.Setenv("AGENT_MAX_TOOL_ROUNDS", "3")
	cfg := Load()
	if cfg.Port != "9090" || cfg.Env != "production" {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
	if cfg.WhatsAppPhoneNumberID != "123456" {
		t.Fatalf("expected trimmed phone number id, got %q", cfg.WhatsAppPhoneNumberID)
	}
	if cfg.WhatsAppGraphBaseURL != "http://localhost:9999" {
		t.Fatalf("expected trailing slash trimmed, got %s", cfg.WhatsAppGraphBaseURL)
	}
	if cfg.WhatsAppHTTPTimeout != 5*time.Second {
		t.Fatalf("expected 5s, got %s", cfg.WhatsAppHTTPTimeout)
	}
	if !cfg.AgentEnabled() {
		t.Fatal("expected agent enabled")
	}
	if cfg.TranscriptionAvailable() {
		t.Fatal("transcription disabled explicitly")
	}
	if cfg.AgentMaxToolRounds != 3 {
		t.Fatalf("expected 3, got %d", cfg.AgentMaxToolRounds)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidateRequiresWhatsAppCredentials(t *testing.T) {
	cfg := &Config{AgentMaxToolRounds: 5}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing credentials")
	}
	cfg.WhatsAppPhoneNumberID = "123"
	cfg.WhatsAppAccessToken = "token"
	cfg.AgentMaxToolRounds = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero tool rounds")
	}
}

func TestInvalidValuesFallBackToDefaults(t *testing.T) {
	t.Setenv("WHATSAPP_HTTP_TIMEOUT", "soon")
	t.Setenv("AGENT_MAX_TOOL_ROUNDS", "many")
	t.Setenv("TRANSCRIPTION_ENABLED", "maybe")
	cfg := Load()
	if cfg.WhatsAppHTTPTimeout != 30*time.Second || cfg.AgentMaxToolRounds != 5 || !cfg.TranscriptionEnabled {
		t.Fatalf("expected defaults for invalid values, got %+v", cfg)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("CLINIC_DOTENV_PROBE=loaded\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CLINIC_DOTENV_PROBE", "")
	os.Unsetenv("CLINIC_DOTENV_PROBE")

	if err := LoadDotEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("missing file should be ignored: %v", err)
	}
	if err := LoadDotEnv(path); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("CLINIC_DOTENV_PROBE"); got != "loaded" {
		t.Fatalf("expected value from dotenv, got %q", got)
	}
}
