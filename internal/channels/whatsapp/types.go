package whatsapp

import (
	"encoding/json"
	"fmt"
	"time"
)

// ObjectBusinessAccount is the only webhook object this channel handles.
const ObjectBusinessAccount = "whatsapp_business_account"

// Inbound message types.
const (
	MessageTypeText        = "text"
	MessageTypeAudio       = "audio"
	MessageTypeImage       = "image"
	MessageTypeDocument    = "document"
	MessageTypeInteractive = "interactive"
	MessageTypeButton      = "button"
)

// WebhookEvent is the top-level structure received from Meta's webhook.
type WebhookEvent struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry represents one business account entry.
type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

// Change wraps a single change notification.
type Change struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

// ChangeValue holds the message data.
type ChangeValue struct {
	MessagingProduct string            `json:"messaging_product"`
	Metadata         Metadata          `json:"metadata"`
	Contacts         []Contact         `json:"contacts,omitempty"`
	Messages         []Message         `json:"messages,omitempty"`
	Statuses         []json.RawMessage `json:"statuses,omitempty"`
}

// Metadata describes the business number that received the event.
type Metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

// Contact is the sender of an inbound message.
type Contact struct {
	WaID    string         `json:"wa_id"`
	Profile ContactProfile `json:"profile"`
}

// ContactProfile has the display name.
type ContactProfile struct {
	Name string `json:"name"`
}

// Message is an inbound WhatsApp message. Only the bodies this service
// reacts to are decoded.
type Message struct {
	ID          string            `json:"id"`
	From        string            `json:"from"`
	Timestamp   string            `json:"timestamp"`
	Type        string            `json:"type"`
	Text        *TextBody         `json:"text,omitempty"`
	Audio       *InboundMedia     `json:"audio,omitempty"`
	Image       *InboundMedia     `json:"image,omitempty"`
	Document    *InboundMedia     `json:"document,omitempty"`
	Interactive *InteractiveReply `json:"interactive,omitempty"`
	Button      *QuickReply       `json:"button,omitempty"`
}

// InboundMedia references media stored by Meta.
type InboundMedia struct {
	ID       string `json:"id"`
	MIMEType string `json:"mime_type,omitempty"`
	Voice    bool   `json:"voice,omitempty"`
	Caption  string `json:"caption,omitempty"`
}

// InteractiveReply is a patient's tap on a reply button or list row.
type InteractiveReply struct {
	Type        string     `json:"type"`
	ButtonReply *ReplyItem `json:"button_reply,omitempty"`
	ListReply   *ReplyItem `json:"list_reply,omitempty"`
}

// ReplyItem identifies the tapped button or row.
type ReplyItem struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// QuickReply is a template quick-reply button tap.
type QuickReply struct {
	Text    string `json:"text"`
	Payload string `json:"payload"`
}

// InboundMessage is the normalized result of parsing a webhook event.
type InboundMessage struct {
	MessageID     string
	Type          string
	Timestamp     time.Time
	WaID          string
	Phone         string // canonical form of WaID, empty when unknown
	ProfileName   string
	PhoneNumberID string
	Text          string
	ReplyID       string
	AudioID       string
	AudioMIMEType string
}

// TextBody is the text payload, both inbound and outbound.
type TextBody struct {
	Body       string `json:"body"`
	PreviewURL bool   `json:"preview_url,omitempty"`
}

// ReplyButton is one interactive reply button.
type ReplyButton struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// ListSection is a named group of list rows or catalog products.
type ListSection struct {
	Title        string        `json:"title,omitempty"`
	Rows         []ListRow     `json:"rows,omitempty"`
	ProductItems []ProductItem `json:"product_items,omitempty"`
}

// ListRow is a selectable row of a list message.
type ListRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// ProductItem references a product in a catalog.
type ProductItem struct {
	ProductRetailerID string `json:"product_retailer_id"`
}

// Location is a pin sent to the patient.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
}

// TemplateComponent fills the parameters of an approved template.
type TemplateComponent struct {
	Type       string              `json:"type"`
	SubType    string              `json:"sub_type,omitempty"`
	Index      string              `json:"index,omitempty"`
	Parameters []TemplateParameter `json:"parameters,omitempty"`
}

// TemplateParameter is a single positional template value.
type TemplateParameter struct {
	Type    string     `json:"type"`
	Text    string     `json:"text,omitempty"`
	Payload string     `json:"payload,omitempty"`
	Image   *MediaLink `json:"image,omitempty"`
}

// MediaLink points to a publicly reachable media URL.
type MediaLink struct {
	Link    string `json:"link"`
	Caption string `json:"caption,omitempty"`
}

type outboundMessage struct {
	MessagingProduct string       `json:"messaging_product"`
	RecipientType    string       `json:"recipient_type"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             *TextBody    `json:"text,omitempty"`
	Image            *MediaLink   `json:"image,omitempty"`
	Interactive      *interactive `json:"interactive,omitempty"`
	Template         *template    `json:"template,omitempty"`
	Location         *Location    `json:"location,omitempty"`
}

type interactive struct {
	Type   string             `json:"type"`
	Header *interactiveHeader `json:"header,omitempty"`
	Body   *interactiveBody   `json:"body,omitempty"`
	Action interactiveAction  `json:"action"`
}

type interactiveHeader struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type interactiveBody struct {
	Text string `json:"text"`
}

type interactiveAction struct {
	Buttons           []interactiveButton `json:"buttons,omitempty"`
	Button            string              `json:"button,omitempty"`
	Sections          []ListSection       `json:"sections,omitempty"`
	CatalogID         string              `json:"catalog_id,omitempty"`
	ProductRetailerID string              `json:"product_retailer_id,omitempty"`
}

type interactiveButton struct {
	Type  string      `json:"type"`
	Reply ReplyButton `json:"reply"`
}

type template struct {
	Name       string              `json:"name"`
	Language   templateLanguage    `json:"language"`
	Components []TemplateComponent `json:"components,omitempty"`
}

type templateLanguage struct {
	Code string `json:"code"`
}

// SendResponse is the provider response to a send. Raw keeps the body as received.
type SendResponse struct {
	MessagingProduct string            `json:"messaging_product"`
	Contacts         []ResponseContact `json:"contacts"`
	Messages         []ResponseMessage `json:"messages"`
	Raw              json.RawMessage   `json:"-"`
}

// ResponseContact maps the requested recipient to its WhatsApp id.
type ResponseContact struct {
	Input string `json:"input"`
	WaID  string `json:"wa_id"`
}

// ResponseMessage carries the id Meta assigned to the sent message.
type ResponseMessage struct {
	ID string `json:"id"`
}

// MessageID returns the first message id, or "" if none was returned.
func (r *SendResponse) MessageID() string {
	if r == nil || len(r.Messages) == 0 {
		return ""
	}
	return r.Messages[0].ID
}

// APIError is returned for non-2xx Graph API responses.
type APIError struct {
	StatusCode int
	Body       string
	Code       int
	Type       string
	Message    string
	FBTraceID  string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("whatsapp: API error %d (status %d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("whatsapp: unexpected status %d: %s", e.StatusCode, e.Body)
}

type graphErrorEnvelope struct {
	Error *struct {
		Message   string `json:"message"`
		Type      string `json:"type"`
		Code      int    `json:"code"`
		FBTraceID string `json:"fbtrace_id"`
	} `json:"error"`
}

// Media is a downloaded media object.
type Media struct {
	ID          string
	ContentType string
	Extension   string
	Data        []byte
}
