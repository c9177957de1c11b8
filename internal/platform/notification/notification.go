// Package notification delivers patient notifications over LINE and SMS with
// template rendering, in-memory history, dedupe and retry.
package notification

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Notification Types
// ---------------------------------------------------------------------------

// Channel is the delivery channel of a notification.
type Channel string

const (
	ChannelLine Channel = "line"
	ChannelSMS  Channel = "sms"
)

const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// Notification is a single outbound message.
type Notification struct {
	ID           string            `json:"id"`
	Channel      Channel           `json:"channel"`
	Recipient    string            `json:"recipient"`
	Body         string            `json:"body"`
	TemplateID   string            `json:"template_id,omitempty"`
	TemplateData map[string]string `json:"template_data,omitempty"`
	// DedupeKey suppresses a second successful send of the same message.
	DedupeKey string     `json:"dedupe_key,omitempty"`
	Status    string     `json:"status"`
	Attempts  int        `json:"attempts"`
	CreatedAt time.Time  `json:"created_at"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// ---------------------------------------------------------------------------
// Sender Interfaces
// ---------------------------------------------------------------------------

// LineSender pushes a text message to a LINE user.
type LineSender interface {
	PushText(ctx context.Context, userID, text string) error
}

// SMSSender sends a text message to a phone number.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// ---------------------------------------------------------------------------
// Template Engine
// ---------------------------------------------------------------------------

const (
	TemplateDoseReminder = "vaccine-dose-reminder"
	TemplateNextDoseDue  = "vaccine-next-dose-due"
)

// Template is a reusable message body with {{key}} placeholders.
type Template struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Body string `json:"body"`
}

// TemplateEngine holds templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the vaccine templates
// registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]*Template)}
	e.RegisterTemplate(Template{
		ID:   TemplateDoseReminder,
		Name: "Vaccine Dose Reminder",
		Body: "เรียนคุณ {{patient_name}} โปรดมารับวัคซีน {{vaccine}} เข็มที่ {{dose}} วันที่ {{date}}\n" +
			"Dear {{patient_name}}, your {{vaccine}} dose {{dose}} appointment is on {{date}}.",
	})
	e.RegisterTemplate(Template{
		ID:   TemplateNextDoseDue,
		Name: "Vaccine Next Dose Due",
		Body: "เรียนคุณ {{patient_name}} วัคซีน {{vaccine}} เข็มที่ {{dose}} ครบกำหนดวันที่ {{date}} กรุณานัดหมายกับโรงพยาบาล\n" +
			"Dear {{patient_name}}, your {{vaccine}} dose {{dose}} is due on {{date}}. Please book an appointment.",
	})
	return e
}

// RegisterTemplate adds or replaces a template.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render replaces {{key}} placeholders in the template body. Placeholders
// absent from data are left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (string, error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("template %q not found", templateID)
	}
	body := t.Body
	for k, v := range data {
		body = strings.ReplaceAll(body, "{{"+k+"}}", v)
	}
	return body, nil
}

// ---------------------------------------------------------------------------
// Notification Manager
// ---------------------------------------------------------------------------

// Manager sends notifications and keeps their history in memory.
type Manager struct {
	line      LineSender
	sms       SMSSender
	templates *TemplateEngine
	now       func() time.Time

	mu            sync.RWMutex
	notifications map[string]*Notification
	sentKeys      map[string]string
}

// NewManager constructs a Manager. Either sender may be nil, in which case
// that channel fails every send.
func NewManager(line LineSender, sms SMSSender, tpl *TemplateEngine) *Manager {
	return &Manager{
		line:          line,
		sms:           sms,
		templates:     tpl,
		now:           time.Now,
		notifications: make(map[string]*Notification),
		sentKeys:      make(map[string]string),
	}
}

// Sent reports whether a notification with dedupeKey was already delivered.
func (m *Manager) Sent(dedupeKey string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.sentKeys[dedupeKey]
	return ok
}

func (m *Manager) deliver(ctx context.Context, n *Notification) error {
	n.Attempts++
	switch n.Channel {
	case ChannelLine:
		if m.line == nil {
			return fmt.Errorf("line channel not configured")
		}
		return m.line.PushText(ctx, n.Recipient, n.Body)
	case ChannelSMS:
		if m.sms == nil {
			return fmt.Errorf("sms channel not configured")
		}
		return m.sms.SendSMS(ctx, n.Recipient, n.Body)
	default:
		return fmt.Errorf("unsupported channel: %s", n.Channel)
	}
}

func (m *Manager) record(n *Notification, sendErr error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sendErr != nil {
		n.Status = StatusFailed
		n.Error = sendErr.Error()
	} else {
		n.Status = StatusSent
		n.Error = ""
		sentAt := m.now().UTC()
		n.SentAt = &sentAt
		if n.DedupeKey != "" {
			m.sentKeys[n.DedupeKey] = n.ID
		}
	}
	m.notifications[n.ID] = n
}

// Send delivers n and stores the outcome. A failed send is stored with
// status failed and its error is returned.
func (m *Manager) Send(ctx context.Context, n *Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	n.CreatedAt = m.now().UTC()
	err := m.deliver(ctx, n)
	m.record(n, err)
	return err
}

// SendFromTemplate renders templateID and sends the result on channel.
func (m *Manager) SendFromTemplate(ctx context.Context, channel Channel, recipient, templateID string, data map[string]string, dedupeKey string) (*Notification, error) {
	body, err := m.templates.Render(templateID, data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}
	n := &Notification{
		Channel:      channel,
		Recipient:    recipient,
		Body:         body,
		TemplateID:   templateID,
		TemplateData: data,
		DedupeKey:    dedupeKey,
	}
	return n, m.Send(ctx, n)
}

// Get returns a notification by ID.
func (m *Manager) Get(_ context.Context, id string) (*Notification, error) {
	m.mu.RLock()
	n, ok := m.notifications[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("notification %q not found", id)
	}
	return n, nil
}

// ListByRecipient returns up to limit notifications for recipient, newest
// first.
func (m *Manager) ListByRecipient(_ context.Context, recipient string, limit int) []*Notification {
	m.mu.RLock()
	var out []*Notification
	for _, n := range m.notifications {
		if n.Recipient == recipient {
			out = append(out, n)
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Retry re-sends a failed notification.
func (m *Manager) Retry(ctx context.Context, id string) error {
	n, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	if n.Status != StatusFailed {
		return fmt.Errorf("notification %q is not in failed status (current: %s)", id, n.Status)
	}
	sendErr := m.deliver(ctx, n)
	m.record(n, sendErr)
	return sendErr
}

// Stats counts notifications by status.
func (m *Manager) Stats(_ context.Context) map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := make(map[string]int)
	for _, n := range m.notifications {
		stats[n.Status]++
	}
	return stats
}
