package channels

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	"text/template"

	"github.com/mr1hm/go-sensor-alerts/internal/config"
	"github.com/mr1hm/go-sensor-alerts/internal/models"
)

const emailTimeLayout = "02/01/2006 15:04:05"

var emailHTML = htmltemplate.Must(htmltemplate.New("email").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>Security Alert</title>
</head>
<body style="font-family: Arial, sans-serif; background-color: #f5f5f5; padding: 20px;">
<div style="max-width: 600px; margin: 0 auto; background-color: #ffffff; border-radius: 8px;">
<div style="background-color: {{.Color}}; color: #ffffff; padding: 20px; border-radius: 8px 8px 0 0;">
<h1>Security Alert</h1>
<div style="font-size: 18px; font-weight: bold;">{{.Severity}}</div>
</div>
<div style="padding: 20px;">
<p><strong>A {{.Severity}} event was reported by sensor "{{.Sensor}}"</strong></p>
<p><strong>Type:</strong> {{.Type}}</p>
<p><strong>Timestamp:</strong> {{.Time}}</p>
<div style="background-color: #f9f9f9; padding: 15px; border-left: 4px solid {{.Color}};">
<strong>Message:</strong><br>
{{.Message}}
</div>
</div>
</div>
</body>
</html>
`))

var emailText = template.Must(template.New("email").Parse(`SECURITY ALERT

A {{.Severity}} event was reported by sensor "{{.Sensor}}"

Type: {{.Type}}
Timestamp: {{.Time}}

Message:
{{.Message}}
`))

type emailView struct {
	Color    htmltemplate.CSS
	Severity string
	Sensor   string
	Type     string
	Time     string
	Message  string
}

func SeverityColor(s models.Severity) string {
	switch s {
	case models.SeverityCritical:
		return "#dc3545"
	case models.SeverityWarn:
		return "#ffc107"
	case models.SeverityInfo:
		return "#17a2b8"
	default:
		return "#6c757d"
	}
}

func EmailSubject(msg models.AlertMessage) string {
	return fmt.Sprintf("[ALERTA %s] %s - %s", msg.Severity, msg.SensorName, msg.Timestamp.Format(emailTimeLayout))
}

// EmailBody renders the HTML body, or the plain text fallback when html is
// false.
func EmailBody(msg models.AlertMessage, html bool) (string, error) {
	view := emailView{
		Color:    htmltemplate.CSS(SeverityColor(msg.Severity)),
		Severity: msg.Severity.String(),
		Sensor:   msg.SensorName,
		Type:     string(msg.Type),
		Time:     msg.Timestamp.Format(emailTimeLayout),
		Message:  msg.Message,
	}

	var buf bytes.Buffer
	var err error
	if html {
		err = emailHTML.Execute(&buf, view)
	} else {
		err = emailText.Execute(&buf, view)
	}
	if err != nil {
		return "", fmt.Errorf("error rendering email: %w", err)
	}
	return buf.String(), nil
}

type EmailChannel struct {
	*adapter
	from        string
	htmlEnabled bool
	transport   EmailTransport
}

func NewEmailChannel(cfg config.EmailConfig, transport EmailTransport, latency LatencyPolicy) *EmailChannel {
	if transport == nil {
		transport = LogTransport{}
	}
	c := &EmailChannel{
		from:        cfg.From,
		htmlEnabled: cfg.HTMLEnabled,
		transport:   transport,
	}
	c.adapter = newAdapter(TypeEmail, cfg.Enabled, cfg.Recipients, transport.Name(), latency, c.deliver)
	return c
}

// deliver sends a single email addressed to every recipient.
func (c *EmailChannel) deliver(ctx context.Context, msg models.AlertMessage, recipients []string) error {
	body, err := EmailBody(msg, c.htmlEnabled)
	if err != nil {
		return err
	}
	err = c.transport.SendEmail(ctx, Email{
		From:    c.from,
		To:      recipients,
		Subject: EmailSubject(msg),
		Body:    body,
		HTML:    c.htmlEnabled,
	})
	if err != nil {
		return &DeliveryError{Channel: TypeEmail, Err: err}
	}
	return nil
}
