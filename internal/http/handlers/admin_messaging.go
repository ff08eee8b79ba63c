package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/wolfman30/clinic-whatsapp-agent/internal/channels/whatsapp"
	"github.com/wolfman30/clinic-whatsapp-agent/internal/phone"
	"github.com/wolfman30/clinic-whatsapp-agent/pkg/logging"
)

type messagingGateway interface {
	SendText(ctx context.Context, to, body string) (*whatsapp.SendResponse, error)
	SendImage(ctx context.Context, to, link, caption string) (*whatsapp.SendResponse, error)
	SendButtons(ctx context.Context, to, body string, buttons []whatsapp.ReplyButton) (*whatsapp.SendResponse, error)
	SendList(ctx context.Context, to, body, buttonText string, sections []whatsapp.ListSection) (*whatsapp.SendResponse, error)
	SendTemplate(ctx context.Context, to, name, language string, components []whatsapp.TemplateComponent) (*whatsapp.SendResponse, error)
	SendProduct(ctx context.Context, to, catalogID, productRetailerID string) (*whatsapp.SendResponse, error)
	SendProductList(ctx context.Context, to, catalogID, sectionTitle string, items []whatsapp.ProductItem) (*whatsapp.SendResponse, error)
	SendLocation(ctx context.Context, to string, loc whatsapp.Location) (*whatsapp.SendResponse, error)
}

// AdminMessagingHandler hosts privileged endpoints for operators: manual
// sends through the Cloud API and phone normalization checks.
type AdminMessagingHandler struct {
	gateway messagingGateway
	logger  *logging.Logger
}

type AdminMessagingConfig struct {
	Gateway messagingGateway
	Logger  *logging.Logger
}

func NewAdminMessagingHandler(cfg AdminMessagingConfig) *AdminMessagingHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &AdminMessagingHandler{
		gateway: cfg.Gateway,
		logger:  cfg.Logger,
	}
}

type sendMessageRequest struct {
	To                string                       `json:"to"`
	Kind              string                       `json:"kind"`
	Body              string                       `json:"body"`
	ImageURL          string                       `json:"image_url"`
	Caption           string                       `json:"caption"`
	Buttons           []whatsapp.ReplyButton       `json:"buttons"`
	ButtonText        string                       `json:"button_text"`
	Sections          []whatsapp.ListSection       `json:"sections"`
	Template          string                       `json:"template"`
	Language          string                       `json:"language"`
	Components        []whatsapp.TemplateComponent `json:"components"`
	Latitude          *float64                     `json:"latitude"`
	Longitude         *float64                     `json:"longitude"`
	Name              string                       `json:"name"`
	Address           string                       `json:"address"`
	CatalogID         string                       `json:"catalog_id"`
	ProductRetailerID string                       `json:"product_retailer_id"`
	SectionTitle      string                       `json:"section_title"`
	ProductItems      []whatsapp.ProductItem       `json:"product_items"`
}

type sendMessageResponse struct {
	To        string          `json:"to"`
	Kind      string          `json:"kind"`
	MessageID string          `json:"message_id"`
	Provider  json.RawMessage `json:"provider_response,omitempty"`
}

var errBadRequest = errors.New("bad request")

// SendMessage handles POST /admin/messages:send.
func (h *AdminMessagingHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.To) == "" {
		http.Error(w, "to required", http.StatusBadRequest)
		return
	}
	kind := strings.ToLower(strings.TrimSpace(req.Kind))
	if kind == "" {
		kind = "text"
	}
	to := phone.Normalize(req.To)

	resp, err := h.send(r.Context(), kind, to, req)
	if err != nil {
		h.respondSendError(w, kind, to, err)
		return
	}

	h.logger.Info("admin message sent", "kind", kind, "to", to, "message_id", resp.MessageID())
	writeJSON(w, http.StatusOK, sendMessageResponse{
		To:        to,
		Kind:      kind,
		MessageID: resp.MessageID(),
		Provider:  resp.Raw,
	})
}

func (h *AdminMessagingHandler) send(ctx context.Context, kind, to string, req sendMessageRequest) (*whatsapp.SendResponse, error) {
	switch kind {
	case "text":
		if strings.TrimSpace(req.Body) == "" {
			return nil, badRequest("body required")
		}
		return h.gateway.SendText(ctx, to, req.Body)
	case "image":
		if req.ImageURL == "" {
			return nil, badRequest("image_url required")
		}
		return h.gateway.SendImage(ctx, to, req.ImageURL, req.Caption)
	case "buttons":
		return h.gateway.SendButtons(ctx, to, req.Body, req.Buttons)
	case "list":
		return h.gateway.SendList(ctx, to, req.Body, req.ButtonText, req.Sections)
	case "template":
		if req.Template == "" {
			return nil, badRequest("template required")
		}
		return h.gateway.SendTemplate(ctx, to, req.Template, req.Language, req.Components)
	case "product":
		if req.CatalogID == "" || req.ProductRetailerID == "" {
			return nil, badRequest("catalog_id and product_retailer_id required")
		}
		return h.gateway.SendProduct(ctx, to, req.CatalogID, req.ProductRetailerID)
	case "product_list":
		if req.CatalogID == "" || len(req.ProductItems) == 0 {
			return nil, badRequest("catalog_id and product_items required")
		}
		return h.gateway.SendProductList(ctx, to, req.CatalogID, req.SectionTitle, req.ProductItems)
	case "location":
		if req.Latitude == nil || req.Longitude == nil {
			return nil, badRequest("latitude and longitude required")
		}
		return h.gateway.SendLocation(ctx, to, whatsapp.Location{
			Latitude:  *req.Latitude,
			Longitude: *req.Longitude,
			Name:      req.Name,
			Address:   req.Address,
		})
	default:
		return nil, badRequest("unsupported kind " + kind)
	}
}

type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }
func (e *requestError) Unwrap() error { return errBadRequest }

func badRequest(msg string) error {
	return &requestError{msg: msg}
}

func (h *AdminMessagingHandler) respondSendError(w http.ResponseWriter, kind, to string, err error) {
	var apiErr *whatsapp.APIError
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, whatsapp.ErrRecipientRequired),
		errors.Is(err, whatsapp.ErrInvalidButtons),
		errors.Is(err, whatsapp.ErrInvalidSections):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &apiErr):
		h.logger.Error("admin send rejected by provider", "kind", kind, "to", to, "status", apiErr.StatusCode, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":           apiErr.Message,
			"provider_status": apiErr.StatusCode,
			"provider_code":   apiErr.Code,
			"fbtrace_id":      apiErr.FBTraceID,
		})
	default:
		h.logger.Error("admin send failed", "kind", kind, "to", to, "error", err)
		http.Error(w, "send failed", http.StatusBadGateway)
	}
}

type normalizePhoneRequest struct {
	Phone string `json:"phone"`
}

// PhoneDescription is the normalizer's view of a raw phone number.
type PhoneDescription struct {
	Input       string `json:"input"`
	Digits      string `json:"digits"`
	Normalized  string `json:"normalized"`
	IsBrazilian bool   `json:"is_brazilian"`
	IsCanonical bool   `json:"is_canonical"`
	AreaCode    string `json:"area_code,omitempty"`
}

// NormalizePhone handles POST /admin/phones:normalize.
func (h *AdminMessagingHandler) NormalizePhone(w http.ResponseWriter, r *http.Request) {
	var req normalizePhoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, DescribePhone(req.Phone))
}

// DescribePhone reports everything the normalizer knows about raw.
func DescribePhone(raw string) PhoneDescription {
	normalized := phone.Normalize(raw)
	area, _ := phone.AreaCode(raw)
	return PhoneDescription{
		Input:       raw,
		Digits:      phone.Digits(raw),
		Normalized:  normalized,
		IsBrazilian: phone.IsBrazilian(raw),
		IsCanonical: phone.IsCanonical(normalized),
		AreaCode:    area,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
