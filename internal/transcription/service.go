// Package transcription turns WhatsApp voice notes into text.
package transcription

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-whatsapp-agent/internal/channels/whatsapp"
	"github.com/wolfman30/clinic-whatsapp-agent/internal/observability/metrics"
	"github.com/wolfman30/clinic-whatsapp-agent/pkg/logging"
)

// MIMETypeMP3 is the format handed to the speech model.
const MIMETypeMP3 = "audio/mpeg"

var ErrEmptyTranscript = errors.New("transcription: empty transcript")

var tracer = otel.Tracer("clinicbot.internal.transcription")

// MediaDownloader fetches inbound media by id.
type MediaDownloader interface {
	DownloadMedia(ctx context.Context, mediaID string) (whatsapp.Media, error)
}

// Converter re-encodes audio into format ("mp3", "flac" or "wav").
type Converter interface {
	Convert(ctx context.Context, audio []byte, format string) ([]byte, error)
}

// Transcriber turns encoded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// Service downloads a voice note, converts it to MP3 and transcribes it.
type Service struct {
	downloader  MediaDownloader
	converter   Converter
	transcriber Transcriber
	logger      *logging.Logger
	metrics     *metrics.MessagingMetrics
}

func NewService(downloader MediaDownloader, converter Converter, transcriber Transcriber, logger *logging.Logger, m *metrics.MessagingMetrics) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		downloader:  downloader,
		converter:   converter,
		transcriber: transcriber,
		logger:      logger,
		metrics:     m,
	}
}

// Transcribe returns the text spoken in the media identified by mediaID.
func (s *Service) Transcribe(ctx context.Context, mediaID string) (text string, err error) {
	ctx, span := tracer.Start(ctx, "transcription.transcribe")
	defer span.End()
	span.SetAttributes(attribute.String("whatsapp.media_id", mediaID))

	start := time.Now()
	defer func() {
		s.metrics.ObserveTranscription(err)
		if err != nil {
			span.RecordError(err)
		}
	}()

	media, err := s.downloader.DownloadMedia(ctx, mediaID)
	if err != nil {
		return "", fmt.Errorf("transcription: download: %w", err)
	}
	if len(media.Data) == 0 {
		return "", fmt.Errorf("transcription: media %s is empty", mediaID)
	}

	audio := media.Data
	if !strings.HasPrefix(strings.ToLower(media.ContentType), MIMETypeMP3) {
		audio, err = s.converter.Convert(ctx, media.Data, "mp3")
		if err != nil {
			return "", fmt.Errorf("transcription: convert: %w", err)
		}
	}

	text, err = s.transcriber.Transcribe(ctx, audio, MIMETypeMP3)
	if err != nil {
		return "", fmt.Errorf("transcription: transcribe: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyTranscript
	}

	s.logger.WithTrace(ctx).Info("voice note transcribed",
		"media_id", mediaID,
		"content_type", media.ContentType,
		"bytes", len(media.Data),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}
