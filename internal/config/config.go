package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// WhatsApp Cloud API
	VerifyToken           string
	WhatsAppPhoneNumberID string
	WhatsAppAccessToken   string
	WhatsAppAPIVersion    string
	WhatsAppGraphBaseURL  string
	WhatsAppAppSecret     string
	WhatsAppHTTPTimeout   time.Duration

	// Gemini agent and transcription
	GeminiAPIKey             string
	GeminiAgentModel         string
	GeminiTranscriptionModel string
	TranscriptionEnabled     bool
	FFmpegPath               string
	ClinicKnowledgePath      string
	AgentMaxToolRounds       int

	AdminJWTSecret      string
	AdminRateLimitRPS   float64
	AdminRateLimitBurst int
}

// LoadDotEnv loads a .env file into the process environment when one exists.
// Variables already set in the environment win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	existing := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "5000"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		VerifyToken:           getEnv("VERIFY_TOKEN", ""),
		WhatsAppPhoneNumberID: strings.TrimSpace(getEnv("WHATSAPP_PHONE_NUMBER_ID", "")),
		WhatsAppAccessToken:   strings.TrimSpace(getEnv("WHATSAPP_ACCESS_TOKEN", "")),
		WhatsAppAPIVersion:    getEnv("WHATSAPP_API_VERSION", "v22.0"),
		WhatsAppGraphBaseURL:  strings.TrimRight(getEnv("WHATSAPP_GRAPH_BASE_URL", "https://graph.facebook.com"), "/"),
		WhatsAppAppSecret:     getEnv("WHATSAPP_APP_SECRET", ""),
		WhatsAppHTTPTimeout:   getEnvAsDuration("WHATSAPP_HTTP_TIMEOUT", 30*time.Second),

		GeminiAPIKey:             getEnv("GEMINI_API_KEY", ""),
		GeminiAgentModel:         getEnv("GEMINI_AGENT_MODEL", "gemini-2.0-flash"),
		GeminiTranscriptionModel: getEnv("GEMINI_TRANSCRIPTION_MODEL", "gemini-1.5-flash"),
		TranscriptionEnabled:     getEnvAsBool("TRANSCRIPTION_ENABLED", true),
		FFmpegPath:               getEnv("FFMPEG_PATH", "ffmpeg"),
		ClinicKnowledgePath:      getEnv("CLINIC_KNOWLEDGE_PATH", ""),
		AgentMaxToolRounds:       getEnvAsInt("AGENT_MAX_TOOL_ROUNDS", 5),

		AdminJWTSecret:      getEnv("ADMIN_JWT_SECRET", ""),
		AdminRateLimitRPS:   getEnvAsFloat("ADMIN_RATE_LIMIT_RPS", 1),
		AdminRateLimitBurst: getEnvAsInt("ADMIN_RATE_LIMIT_BURST", 5),
	}
}

// Validate reports settings the server cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if c.WhatsAppPhoneNumberID == "" {
		errs = append(errs, errors.New("config: WHATSAPP_PHONE_NUMBER_ID is required"))
	}
	if c.WhatsAppAccessToken == "" {
		errs = append(errs, errors.New("config: WHATSAPP_ACCESS_TOKEN is required"))
	}
	if c.AgentMaxToolRounds < 1 {
		errs = append(errs, errors.New("config: AGENT_MAX_TOOL_ROUNDS must be at least 1"))
	}
	return errors.Join(errs...)
}

// AgentEnabled reports whether inbound text should go to the Gemini agent.
func (c *Config) AgentEnabled() bool {
	return strings.TrimSpace(c.GeminiAPIKey) != ""
}

// TranscriptionAvailable reports whether voice notes can be transcribed.
func (c *Config) TranscriptionAvailable() bool {
	return c.TranscriptionEnabled && c.AgentEnabled()
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
