package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/clinic-whatsapp-agent/internal/observability/metrics"
	"github.com/wolfman30/clinic-whatsapp-agent/pkg/logging"
)

const (
	defaultGraphAPIBase = "https://graph.facebook.com"
	defaultAPIVersion   = "v22.0"
	defaultHTTPTimeout  = 30 * time.Second
	defaultLanguage     = "pt_BR"

	// MaxReplyButtons is the Cloud API limit for interactive reply buttons.
	MaxReplyButtons = 3

	maxResponseBytes = 1 << 20
	maxMediaBytes    = 25 << 20
)

var whatsappTracer = otel.Tracer("clinicbot.internal.channels.whatsapp")

var (
	ErrRecipientRequired = errors.New("whatsapp: recipient required")
	ErrInvalidButtons    = fmt.Errorf("whatsapp: interactive buttons must number between 1 and %d", MaxReplyButtons)
	ErrInvalidSections   = errors.New("whatsapp: list sections required")
	ErrMediaURLMissing   = errors.New("whatsapp: media url missing from response")
)

// ClientConfig configures a Cloud API client.
type ClientConfig struct {
	AccessToken   string
	PhoneNumberID string
	APIVersion    string
	GraphAPIBase  string
	Timeout       time.Duration
	HTTPClient    *http.Client
	Logger        *logging.Logger
	Metrics       *metrics.MessagingMetrics
}

// Client sends messages and fetches media via the WhatsApp Cloud API.
type Client struct {
	accessToken   string
	phoneNumberID string
	apiVersion    string
	graphAPIBase  string
	httpClient    *http.Client
	logger        *logging.Logger
	metrics       *metrics.MessagingMetrics
}

// NewClient creates a new Cloud API client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.APIVersion == "" {
		cfg.APIVersion = defaultAPIVersion
	}
	if cfg.GraphAPIBase == "" {
		cfg.GraphAPIBase = defaultGraphAPIBase
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultHTTPTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Client{
		accessToken:   cfg.AccessToken,
		phoneNumberID: cfg.PhoneNumberID,
		apiVersion:    cfg.APIVersion,
		graphAPIBase:  strings.TrimRight(cfg.GraphAPIBase, "/"),
		httpClient:    cfg.HTTPClient,
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
	}
}

// SetGraphAPIBase overrides the Graph API base URL (useful for testing).
func (c *Client) SetGraphAPIBase(base string) {
	c.graphAPIBase = strings.TrimRight(base, "/")
}

// SendText sends a plain text message.
func (c *Client) SendText(ctx context.Context, to, body string) (*SendResponse, error) {
	return c.send(ctx, "text", outboundMessage{
		To:   to,
		Type: "text",
		Text: &TextBody{Body: body},
	})
}

// SendImage sends an image by URL with an optional caption.
func (c *Client) SendImage(ctx context.Context, to, link, caption string) (*SendResponse, error) {
	return c.send(ctx, "image", outboundMessage{
		To:    to,
		Type:  "image",
		Image: &MediaLink{Link: link, Caption: caption},
	})
}

// SendButtons sends an interactive message with up to three reply buttons.
func (c *Client) SendButtons(ctx context.Context, to, body string, buttons []ReplyButton) (*SendResponse, error) {
	if len(buttons) == 0 || len(buttons) > MaxReplyButtons {
		return nil, ErrInvalidButtons
	}
	formatted := make([]interactiveButton, 0, len(buttons))
	for _, b := range buttons {
		formatted = append(formatted, interactiveButton{Type: "reply", Reply: b})
	}
	return c.send(ctx, "buttons", outboundMessage{
		To:   to,
		Type: "interactive",
		Interactive: &interactive{
			Type:   "button",
			Body:   &interactiveBody{Text: body},
			Action: interactiveAction{Buttons: formatted},
		},
	})
}

// SendList sends an interactive list; buttonText labels the button that opens it.
func (c *Client) SendList(ctx context.Context, to, body, buttonText string, sections []ListSection) (*SendResponse, error) {
	if len(sections) == 0 {
		return nil, ErrInvalidSections
	}
	return c.send(ctx, "list", outboundMessage{
		To:   to,
		Type: "interactive",
		Interactive: &interactive{
			Type:   "list",
			Body:   &interactiveBody{Text: body},
			Action: interactiveAction{Button: buttonText, Sections: sections},
		},
	})
}

// SendTemplate sends an approved template. language defaults to pt_BR.
func (c *Client) SendTemplate(ctx context.Context, to, name, language string, components []TemplateComponent) (*SendResponse, error) {
	if language == "" {
		language = defaultLanguage
	}
	return c.send(ctx, "template", outboundMessage{
		To:   to,
		Type: "template",
		Template: &template{
			Name:       name,
			Language:   templateLanguage{Code: language},
			Components: components,
		},
	})
}

// SendProduct sends a single product card from a catalog.
func (c *Client) SendProduct(ctx context.Context, to, catalogID, productRetailerID string) (*SendResponse, error) {
	return c.send(ctx, "product", outboundMessage{
		To:   to,
		Type: "interactive",
		Interactive: &interactive{
			Type: "product",
			Body: &interactiveBody{Text: "Confira este produto:"},
			Action: interactiveAction{
				CatalogID:         catalogID,
				ProductRetailerID: productRetailerID,
			},
		},
	})
}

// SendProductList sends a single-section product list from a catalog.
func (c *Client) SendProductList(ctx context.Context, to, catalogID, sectionTitle string, items []ProductItem) (*SendResponse, error) {
	return c.send(ctx, "product_list", outboundMessage{
		To:   to,
		Type: "interactive",
		Interactive: &interactive{
			Type:   "product_list",
			Header: &interactiveHeader{Type: "text", Text: "Catálogo de Produtos"},
			Body:   &interactiveBody{Text: "Confira nossos produtos disponíveis:"},
			Action: interactiveAction{
				CatalogID: catalogID,
				Sections:  []ListSection{{Title: sectionTitle, ProductItems: items}},
			},
		},
	})
}

// SendLocation sends a location pin.
func (c *Client) SendLocation(ctx context.Context, to string, loc Location) (*SendResponse, error) {
	return c.send(ctx, "location", outboundMessage{
		To:       to,
		Type:     "location",
		Location: &loc,
	})
}

// PhoneNumberInfo returns the raw Graph API description of the business number.
func (c *Client) PhoneNumberInfo(ctx context.Context) (json.RawMessage, error) {
	body, err := c.get(ctx, c.graphURL(c.phoneNumberID))
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

// MediaURL resolves a media id to its short-lived download URL.
func (c *Client) MediaURL(ctx context.Context, mediaID string) (string, error) {
	body, err := c.get(ctx, c.graphURL(mediaID))
	if err != nil {
		return "", err
	}
	var media struct {
		URL      string `json:"url"`
		MIMEType string `json:"mime_type"`
	}
	if err := json.Unmarshal(body, &media); err != nil {
		return "", fmt.Errorf("whatsapp: unmarshal media response: %w", err)
	}
	if media.URL == "" {
		return "", ErrMediaURLMissing
	}
	return media.URL, nil
}

// DownloadMedia fetches the bytes of an inbound media object.
func (c *Client) DownloadMedia(ctx context.Context, mediaID string) (Media, error) {
	ctx, span := whatsappTracer.Start(ctx, "whatsapp.download_media")
	defer span.End()
	span.SetAttributes(attribute.String("whatsapp.media_id", mediaID))

	mediaURL, err := c.MediaURL(ctx, mediaID)
	if err != nil {
		span.RecordError(err)
		return Media{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return Media{}, fmt.Errorf("whatsapp: create media request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return Media{}, fmt.Errorf("whatsapp: download media: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes))
	if err != nil {
		return Media{}, fmt.Errorf("whatsapp: read media: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := newAPIError(resp.StatusCode, data)
		span.RecordError(err)
		return Media{}, err
	}

	contentType := resp.Header.Get("Content-Type")
	c.logger.Info("whatsapp media downloaded", "media_id", mediaID, "content_type", contentType, "bytes", len(data))
	return Media{
		ID:          mediaID,
		ContentType: contentType,
		Extension:   ExtensionForContentType(contentType),
		Data:        data,
	}, nil
}

// ExtensionForContentType maps the media types WhatsApp delivers to file extensions.
func ExtensionForContentType(contentType string) string {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "audio/ogg"):
		return ".ogg"
	case strings.Contains(ct, "audio/mpeg"):
		return ".mp3"
	case strings.Contains(ct, "image/jpeg"):
		return ".jpg"
	case strings.Contains(ct, "image/png"):
		return ".png"
	case strings.Contains(ct, "video/mp4"):
		return ".mp4"
	default:
		return ".bin"
	}
}

func (c *Client) graphURL(path string) string {
	return fmt.Sprintf("%s/%s/%s", c.graphAPIBase, c.apiVersion, path)
}

func (c *Client) send(ctx context.Context, kind string, msg outboundMessage) (resp *SendResponse, err error) {
	defer func() { c.metrics.ObserveOutbound(kind, err) }()

	if strings.TrimSpace(msg.To) == "" {
		return nil, ErrRecipientRequired
	}
	msg.MessagingProduct = "whatsapp"
	msg.RecipientType = "individual"

	ctx, span := whatsappTracer.Start(ctx, "whatsapp.send")
	defer span.End()
	span.SetAttributes(
		attribute.String("whatsapp.kind", kind),
		attribute.String("whatsapp.type", msg.Type),
		attribute.String("whatsapp.to", msg.To),
	)

	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: marshal send request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphURL(c.phoneNumberID+"/messages"), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("whatsapp: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.accessToken)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		c.logger.Error("whatsapp send failed", "kind", kind, "to", msg.To, "error", err)
		return nil, fmt.Errorf("whatsapp: send message: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("whatsapp: read response: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		apiErr := newAPIError(httpResp.StatusCode, respBody)
		span.RecordError(apiErr)
		span.SetStatus(codes.Error, "api")
		c.logger.Error("whatsapp send rejected", "kind", kind, "to", msg.To, "status", httpResp.StatusCode, "error", apiErr)
		return nil, apiErr
	}

	var sendResp SendResponse
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &sendResp); err != nil {
			return nil, fmt.Errorf("whatsapp: unmarshal response: %w", err)
		}
	}
	sendResp.Raw = json.RawMessage(respBody)

	span.SetAttributes(attribute.String("whatsapp.message_id", sendResp.MessageID()))
	c.logger.Info("whatsapp message sent", "kind", kind, "to", msg.To, "message_id", sendResp.MessageID())
	return &sendResp, nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: get %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("whatsapp: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newAPIError(resp.StatusCode, body)
	}
	return body, nil
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: string(body)}
	var envelope graphErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		apiErr.Code = envelope.Error.Code
		apiErr.Type = envelope.Error.Type
		apiErr.Message = envelope.Error.Message
		apiErr.FBTraceID = envelope.Error.FBTraceID
	}
	return apiErr
}
