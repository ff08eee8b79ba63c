package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/clinic-whatsapp-agent/internal/api/router"
	"github.com/wolfman30/clinic-whatsapp-agent/internal/channels/whatsapp"
	appconfig "github.com/wolfman30/clinic-whatsapp-agent/internal/config"
	"github.com/wolfman30/clinic-whatsapp-agent/internal/conversation"
	"github.com/wolfman30/clinic-whatsapp-agent/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/clinic-whatsapp-agent/internal/http/middleware"
	"github.com/wolfman30/clinic-whatsapp-agent/internal/observability/metrics"
	"github.com/wolfman30/clinic-whatsapp-agent/internal/transcription"
	"github.com/wolfman30/clinic-whatsapp-agent/pkg/logging"
)

func main() {
	if err := appconfig.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic whatsapp agent",
		"env", cfg.Env,
		"port", cfg.Port,
	)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	metricsHandler, messagingMetrics := setupMessagingMetrics()
	client := newWhatsAppClient(cfg, logger, messagingMetrics)

	responder, closeAgent, err := setupAgent(ctx, cfg, client, logger, messagingMetrics)
	if err != nil {
		logger.Error("failed to initialize agent", "error", err)
		os.Exit(1)
	}
	defer closeAgent()

	transcriber, closeTranscriber, err := setupTranscription(ctx, cfg, client, logger, messagingMetrics)
	if err != nil {
		logger.Error("failed to initialize transcription", "error", err)
		os.Exit(1)
	}
	defer closeTranscriber()

	adapter := whatsapp.NewAdapter(whatsapp.AdapterConfig{
		VerifyToken: cfg.VerifyToken,
		AppSecret:   cfg.WhatsAppAppSecret,
		Sender:      client,
		Responder:   responder,
		Transcriber: transcriber,
		Logger:      logger,
		Metrics:     messagingMetrics,
	})
	if cfg.WhatsAppAppSecret == "" {
		logger.Warn("WHATSAPP_APP_SECRET not set; webhook signatures are not verified")
	}

	routerCfg := &router.Config{
		Logger:          logger,
		WhatsApp:        adapter,
		AdminMessaging:  handlers.NewAdminMessagingHandler(handlers.AdminMessagingConfig{Gateway: client, Logger: logger}),
		AdminAuthSecret: cfg.AdminJWTSecret,
		MetricsHandler:  metricsHandler,
		Components: map[string]bool{
			"agent":         responder != nil,
			"transcription": transcriber != nil,
			"admin":         cfg.AdminJWTSecret != "",
		},
	}
	if cfg.AdminJWTSecret != "" {
		routerCfg.AdminRateLimiter = httpmiddleware.NewRateLimiter(ctx, cfg.AdminRateLimitRPS, cfg.AdminRateLimitBurst)
	}
	r := router.New(routerCfg)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute, // the agent loop plus transcription run inside the webhook request
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func setupMessagingMetrics() (http.Handler, *metrics.MessagingMetrics) {
	reg := prometheus.NewRegistry()
	m := metrics.NewMessagingMetrics(reg)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), m
}

func newWhatsAppClient(cfg *appconfig.Config, logger *logging.Logger, m *metrics.MessagingMetrics) *whatsapp.Client {
	return whatsapp.NewClient(whatsapp.ClientConfig{
		AccessToken:   cfg.WhatsAppAccessToken,
		PhoneNumberID: cfg.WhatsAppPhoneNumberID,
		APIVersion:    cfg.WhatsAppAPIVersion,
		GraphAPIBase:  cfg.WhatsAppGraphBaseURL,
		Timeout:       cfg.WhatsAppHTTPTimeout,
		Logger:        logger,
		Metrics:       m,
	})
}

func noopClose() {}

// setupAgent returns a nil responder when no Gemini key is configured, which
// makes the adapter fall back to the fixed acknowledgement.
func setupAgent(ctx context.Context, cfg *appconfig.Config, client *whatsapp.Client, logger *logging.Logger, m *metrics.MessagingMetrics) (whatsapp.Responder, func(), error) {
	if !cfg.AgentEnabled() {
		logger.Warn("GEMINI_API_KEY not set; replying with acknowledgements only")
		return nil, noopClose, nil
	}

	knowledge, err := conversation.LoadKnowledge(cfg.ClinicKnowledgePath)
	if err != nil {
		return nil, noopClose, err
	}
	llm, err := conversation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiAgentModel)
	if err != nil {
		return nil, noopClose, err
	}
	agent, err := conversation.NewAgent(conversation.AgentConfig{
		LLM:           llm,
		Executor:      conversation.NewToolExecutor(client, knowledge, logger, m),
		Knowledge:     knowledge,
		Model:         cfg.GeminiAgentModel,
		MaxToolRounds: cfg.AgentMaxToolRounds,
		Logger:        logger,
	})
	if err != nil {
		_ = llm.Close()
		return nil, noopClose, err
	}

	logger.Info("gemini agent enabled", "model", cfg.GeminiAgentModel, "clinic", knowledge.Clinic.Name)
	return agent, func() { _ = llm.Close() }, nil
}

func setupTranscription(ctx context.Context, cfg *appconfig.Config, client *whatsapp.Client, logger *logging.Logger, m *metrics.MessagingMetrics) (whatsapp.Transcriber, func(), error) {
	if !cfg.TranscriptionAvailable() {
		logger.Info("voice note transcription disabled")
		return nil, noopClose, nil
	}

	gemini, err := transcription.NewGeminiTranscriber(ctx, cfg.GeminiAPIKey, cfg.GeminiTranscriptionModel)
	if err != nil {
		return nil, noopClose, err
	}
	svc := transcription.NewService(client, transcription.NewFFmpegConverter(cfg.FFmpegPath), gemini, logger, m)

	logger.Info("voice note transcription enabled", "model", cfg.GeminiTranscriptionModel, "ffmpeg", cfg.FFmpegPath)
	return svc, func() { _ = gemini.Close() }, nil
}
