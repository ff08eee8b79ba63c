package conversation

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/wolfman30/clinic-whatsapp-agent/internal/channels/whatsapp"
)

//go:embed knowledge/clinic.yaml knowledge/system_prompt.tmpl
var knowledgeFS embed.FS

const maxListRowDescription = 72

// Knowledge is the clinic's static facts and canned replies.
type Knowledge struct {
	Clinic     ClinicInfo  `yaml:"clinic"`
	Procedures []Procedure `yaml:"procedures"`
	Replies    Replies     `yaml:"replies"`
}

type ClinicInfo struct {
	Name           string       `yaml:"name"`
	Address        string       `yaml:"address"`
	Phone          string       `yaml:"phone"`
	Email          string       `yaml:"email"`
	Hours          string       `yaml:"hours"`
	MapsURL        string       `yaml:"maps_url"`
	CalendarURL    string       `yaml:"calendar_url"`
	Latitude       float64      `yaml:"latitude"`
	Longitude      float64      `yaml:"longitude"`
	Professional   Professional `yaml:"professional"`
	PaymentMethods []string     `yaml:"payment_methods"`
	EscalationRule string       `yaml:"escalation_rule"`
}

type Professional struct {
	Name      string `yaml:"name"`
	Specialty string `yaml:"specialty"`
}

// Procedure is one offered treatment. Summary is the short line shown in
// the list message; Description goes to the model.
type Procedure struct {
	ID          string `yaml:"id"`
	Title       string `yaml:"title"`
	Price       string `yaml:"price"`
	Summary     string `yaml:"summary"`
	Description string `yaml:"description"`
	ImageURL    string `yaml:"image_url"`
}

type Replies struct {
	Welcome    ButtonReply `yaml:"welcome"`
	Fallback   ButtonReply `yaml:"fallback"`
	Procedures ListReply   `yaml:"procedures"`
	Calendar   string      `yaml:"calendar"`
	Closing    string      `yaml:"closing"`
	Escalation string      `yaml:"escalation"`
}

type ButtonReply struct {
	Text    string                 `yaml:"text"`
	Buttons []whatsapp.ReplyButton `yaml:"buttons"`
}

type ListReply struct {
	Body    string `yaml:"body"`
	Button  string `yaml:"button"`
	Section string `yaml:"section"`
}

// LoadKnowledge reads the knowledge file at path, or the embedded default
// when path is empty.
func LoadKnowledge(path string) (*Knowledge, error) {
	var (
		data []byte
		err  error
	)
	if strings.TrimSpace(path) == "" {
		data, err = knowledgeFS.ReadFile("knowledge/clinic.yaml")
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("conversation: read knowledge: %w", err)
	}
	return ParseKnowledge(data)
}

// ParseKnowledge decodes and validates a YAML knowledge document.
func ParseKnowledge(data []byte) (*Knowledge, error) {
	var k Knowledge
	if err := yaml.Unmarshal(data, &k); err != nil {
		return nil, fmt.Errorf("conversation: parse knowledge: %w", err)
	}
	if err := k.Validate(); err != nil {
		return nil, err
	}
	return &k, nil
}

// Validate checks the constraints the Cloud API puts on the canned replies.
func (k *Knowledge) Validate() error {
	var errs []error
	if strings.TrimSpace(k.Clinic.Name) == "" {
		errs = append(errs, errors.New("clinic.name is required"))
	}
	if len(k.Procedures) == 0 {
		errs = append(errs, errors.New("at least one procedure is required"))
	}
	for _, p := range k.Procedures {
		if p.ID == "" || p.Title == "" {
			errs = append(errs, fmt.Errorf("procedure %q: id and title are required", p.Title))
		}
		if len([]rune(p.Summary)) > maxListRowDescription {
			errs = append(errs, fmt.Errorf("procedure %q: summary longer than %d characters", p.ID, maxListRowDescription))
		}
	}
	for name, reply := range map[string]ButtonReply{"welcome": k.Replies.Welcome, "fallback": k.Replies.Fallback} {
		if reply.Text == "" {
			errs = append(errs, fmt.Errorf("replies.%s.text is required", name))
		}
		if n := len(reply.Buttons); n == 0 || n > whatsapp.MaxReplyButtons {
			errs = append(errs, fmt.Errorf("replies.%s: expected 1 to %d buttons, got %d", name, whatsapp.MaxReplyButtons, n))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("conversation: invalid knowledge: %w", errors.Join(errs...))
	}
	return nil
}

// ProcedureSections builds the list message sections from the procedures.
func (k *Knowledge) ProcedureSections() []whatsapp.ListSection {
	rows := make([]whatsapp.ListRow, 0, len(k.Procedures))
	for _, p := range k.Procedures {
		rows = append(rows, whatsapp.ListRow{ID: p.ID, Title: p.Title, Description: p.Summary})
	}
	return []whatsapp.ListSection{{Title: k.Replies.Procedures.Section, Rows: rows}}
}

// Location returns the clinic pin.
func (k *Knowledge) Location() whatsapp.Location {
	return whatsapp.Location{
		Latitude:  k.Clinic.Latitude,
		Longitude: k.Clinic.Longitude,
		Name:      k.Clinic.Name,
		Address:   k.Clinic.Address,
	}
}

// CalendarText is the scheduling reply including the public calendar link.
func (k *Knowledge) CalendarText() string {
	if k.Replies.Calendar == "" {
		return k.Clinic.CalendarURL
	}
	return k.Replies.Calendar + "\n" + k.Clinic.CalendarURL
}

var promptTemplate = template.Must(
	template.New("system_prompt.tmpl").
		Funcs(template.FuncMap{"join": strings.Join}).
		Option("missingkey=error").
		ParseFS(knowledgeFS, "knowledge/system_prompt.tmpl"),
)

// SystemPrompt renders the agent instructions for a conversation with phone.
func (k *Knowledge) SystemPrompt(phone string) (string, error) {
	data := struct {
		*Knowledge
		Phone string
	}{Knowledge: k, Phone: phone}

	var buf bytes.Buffer
	if err := promptTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("conversation: render system prompt: %w", err)
	}
	return buf.String(), nil
}
