package alerting

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/wemix/headwatch/internal/escalation"
)

// Message kinds beyond the escalation events
const (
	KindStateError = "state_error"
	KindTest       = "test"
)

const (
	DefaultProbeErrorMessage = "SCRIPT ERROR: Could not fetch current head_height from light client."
	DefaultResolvedMessage   = "RESOLVED: light client is updating again. Currently at: {{.Height}}."
)

// Message is a rendered notification ready for delivery. Event names the
// kind that produced it, e.g. "stall_alert".
type Message struct {
	Title     string              `json:"title"`
	Text      string              `json:"text"`
	Severity  escalation.Severity `json:"severity"`
	Timestamp time.Time           `json:"timestamp"`
	Event     string              `json:"event"`
	Threshold string              `json:"threshold,omitempty"`
	Height    uint64              `json:"height,omitempty"`
}

// FormatterOptions overrides the built-in texts
type FormatterOptions struct {
	Source            string
	ProbeErrorMessage string
	ResolvedMessage   string
}

// templateData is what message templates can reference
type templateData struct {
	Name           string
	StallMinutes   int
	ElapsedMinutes int64
	Height         uint64
}

// Formatter turns escalation events into messages
type Formatter struct {
	source     string
	probeError string
	resolved   *template.Template
	thresholds map[string]*template.Template
}

// NewFormatter parses every threshold template up front so a bad template
// fails at startup instead of during an alert.
func NewFormatter(thresholds []escalation.Threshold, opts FormatterOptions) (*Formatter, error) {
	f := &Formatter{
		source:     opts.Source,
		probeError: opts.ProbeErrorMessage,
		thresholds: make(map[string]*template.Template, len(thresholds)),
	}
	if f.source == "" {
		f.source = "headwatch"
	}
	if f.probeError == "" {
		f.probeError = DefaultProbeErrorMessage
	}

	resolved := opts.ResolvedMessage
	if resolved == "" {
		resolved = DefaultResolvedMessage
	}
	tmpl, err := parseTemplate("resolved", resolved)
	if err != nil {
		return nil, err
	}
	f.resolved = tmpl

	for _, t := range thresholds {
		tmpl, err := parseTemplate(t.Name, t.Message)
		if err != nil {
			return nil, err
		}
		f.thresholds[t.Name] = tmpl
	}

	return f, nil
}

func parseTemplate(name, text string) (*template.Template, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("invalid message template for %s: %w", name, err)
	}
	return tmpl, nil
}

// Format renders ev at time now
func (f *Formatter) Format(ev escalation.Event, now time.Time) (*Message, error) {
	msg := &Message{
		Timestamp: now,
		Event:     ev.Kind.String(),
		Height:    ev.Height,
	}

	switch ev.Kind {
	case escalation.EventProbeError:
		msg.Title = f.title("probe error")
		msg.Text = f.probeError
		msg.Severity = escalation.SeverityError

	case escalation.EventStallAlert:
		tmpl, ok := f.thresholds[ev.Threshold.Name]
		if !ok {
			// thresholds added by a reload before the formatter was rebuilt
			var err error
			if tmpl, err = parseTemplate(ev.Threshold.Name, ev.Threshold.Message); err != nil {
				return nil, err
			}
		}
		text, err := render(tmpl, templateData{
			Name:           ev.Threshold.Name,
			StallMinutes:   ev.Threshold.StallMinutes,
			ElapsedMinutes: ev.ElapsedMinutes,
			Height:         ev.Height,
		})
		if err != nil {
			return nil, err
		}
		msg.Title = f.title(ev.Threshold.Name)
		msg.Text = text
		msg.Severity = ev.Threshold.Severity
		msg.Threshold = ev.Threshold.Name

	case escalation.EventResolved:
		text, err := render(f.resolved, templateData{Height: ev.Height})
		if err != nil {
			return nil, err
		}
		msg.Title = f.title("resolved")
		msg.Text = text
		msg.Severity = escalation.SeverityInfo

	default:
		return nil, fmt.Errorf("unknown event kind: %s", ev.Kind)
	}

	return msg, nil
}

// StateError builds the message sent when the persisted state cannot be read
func (f *Formatter) StateError(cause error, now time.Time) *Message {
	return &Message{
		Title:     f.title("state error"),
		Text:      fmt.Sprintf("STATE ERROR: monitor state is unreadable, escalation is paused until it is repaired: %v", cause),
		Severity:  escalation.SeverityCritical,
		Timestamp: now,
		Event:     KindStateError,
	}
}

// Test builds a message for checking channel delivery
func (f *Formatter) Test(text string, now time.Time) *Message {
	if strings.TrimSpace(text) == "" {
		text = "TEST: headwatch notification channels are working."
	}
	return &Message{
		Title:     f.title("test"),
		Text:      text,
		Severity:  escalation.SeverityInfo,
		Timestamp: now,
		Event:     KindTest,
	}
}

func (f *Formatter) title(what string) string {
	return fmt.Sprintf("[%s] %s", f.source, what)
}

func render(tmpl *template.Template, data templateData) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s message: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}
