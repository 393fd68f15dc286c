package notifications

import (
	"bytes"
	"encoding/json"
	"fmt"
	htmltemplate "html/template"
	"text/template"

	"github.com/angelmondragon/kilnpay/pkg/db/models"
	"github.com/angelmondragon/kilnpay/pkg/enums"
	"github.com/angelmondragon/kilnpay/pkg/outbox"
)

// Email is a rendered notification ready to hand to the mail provider.
type Email struct {
	ToName    string
	ToEmail   string
	Subject   string
	PlainText string
	HTML      string
}

type emailTemplate struct {
	subject *template.Template
	text    *template.Template
	html    *htmltemplate.Template
}

// Renderer turns stored notification events into e-mails.
type Renderer struct {
	decoders  *outbox.DecoderRegistry
	templates map[enums.NotificationKind]emailTemplate
}

func NewRenderer() (*Renderer, error) {
	r := &Renderer{
		decoders:  outbox.NewDecoderRegistry(),
		templates: make(map[enums.NotificationKind]emailTemplate, len(sources)),
	}
	for kind, src := range sources {
		tmpl, err := parseTemplate(kind, src)
		if err != nil {
			return nil, err
		}
		r.templates[kind] = tmpl
		r.decoders.Register(kind, payloadVersion, decodeEventData)
	}
	return r, nil
}

// Render decodes the event envelope and executes the templates of its kind.
func (r *Renderer) Render(event models.NotificationEvent) (*Email, error) {
	tmpl, ok := r.templates[event.EventKind]
	if !ok {
		return nil, fmt.Errorf("no template for %s", event.EventKind)
	}
	env, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Recipient.Email == "" {
		return nil, errRecipientMissing
	}
	decoded, err := r.decoders.Decode(event.EventKind, env.Version, env.Data)
	if err != nil {
		return nil, err
	}
	view := templateView{EventData: decoded.(EventData), Recipient: env.Recipient}
	if view.CustomerName == "" {
		view.CustomerName = env.Recipient.Name
	}

	email := &Email{ToName: env.Recipient.Name, ToEmail: env.Recipient.Email}
	if email.Subject, err = execute(tmpl.subject, view); err != nil {
		return nil, err
	}
	if email.PlainText, err = execute(tmpl.text, view); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := tmpl.html.Execute(&buf, view); err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}
	email.HTML = buf.String()
	return email, nil
}

type templateView struct {
	EventData
	Recipient outbox.Recipient
}

func decodeEventData(payload json.RawMessage) (any, error) {
	var data EventData
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, err
	}
	return data, nil
}

func parseTemplate(kind enums.NotificationKind, src templateSource) (emailTemplate, error) {
	subject, err := template.New(string(kind) + ".subject").Parse(src.subject)
	if err != nil {
		return emailTemplate{}, err
	}
	text, err := template.New(string(kind) + ".text").Parse(src.text)
	if err != nil {
		return emailTemplate{}, err
	}
	html, err := htmltemplate.New(string(kind) + ".html").Parse(src.html)
	if err != nil {
		return emailTemplate{}, err
	}
	return emailTemplate{subject: subject, text: text, html: html}, nil
}

func execute(t *template.Template, view templateView) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}
