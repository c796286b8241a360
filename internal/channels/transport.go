package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"
)

type Email struct {
	From    string
	To      []string
	Subject string
	Body    string
	HTML    bool
}

type EmailTransport interface {
	Name() string
	SendEmail(ctx context.Context, e Email) error
}

// Message is one SMS or push notification for one recipient.
type Message struct {
	Channel   string            `json:"channel"`
	Recipient string            `json:"recipient"`
	Title     string            `json:"title,omitempty"`
	Body      string            `json:"body"`
	Data      map[string]string `json:"data,omitempty"`
}

type MessageTransport interface {
	Name() string
	SendMessage(ctx context.Context, m Message) error
}

type SMTPTransport struct {
	Host     string
	Port     int
	Username string
	Password string

	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPTransport(host string, port int, username, password string) *SMTPTransport {
	return &SMTPTransport{
		Host:     host,
		Port:     port,
		Username: username,
		Password: password,
		send:     smtp.SendMail,
	}
}

func (t *SMTPTransport) Name() string { return "smtp" }

func (t *SMTPTransport) SendEmail(ctx context.Context, e Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var auth smtp.Auth
	if t.Username != "" && t.Password != "" {
		auth = smtp.PlainAuth("", t.Username, t.Password, t.Host)
	}
	addr := t.Host + ":" + strconv.Itoa(t.Port)
	if err := t.send(addr, auth, e.From, e.To, buildMIMEMessage(e, time.Now())); err != nil {
		return fmt.Errorf("smtp send via %s: %w", addr, err)
	}
	return nil
}

func buildMIMEMessage(e Email, now time.Time) []byte {
	contentType := "text/plain"
	if e.HTML {
		contentType = "text/html"
	}

	to := make([]string, len(e.To))
	for i, addr := range e.To {
		to[i] = headerValue(addr)
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", headerValue(e.From))
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", headerValue(e.Subject)))
	fmt.Fprintf(&msg, "Date: %s\r\n", now.Format(time.RFC1123Z))
	msg.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: %s; charset=UTF-8\r\n", contentType)
	msg.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(e.Body)
	return msg.Bytes()
}

var headerBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

// headerValue folds line breaks so caller-supplied text stays on one header line.
func headerValue(v string) string {
	return headerBreaks.Replace(v)
}

type ResendTransport struct {
	client *resend.Client
}

func NewResendTransport(apiKey string) *ResendTransport {
	return &ResendTransport{client: resend.NewClient(apiKey)}
}

func (t *ResendTransport) Name() string { return "resend" }

func (t *ResendTransport) SendEmail(ctx context.Context, e Email) error {
	if len(e.To) == 0 {
		return ErrNoRecipients
	}
	params := &resend.SendEmailRequest{
		From:    e.From,
		To:      e.To,
		Subject: e.Subject,
	}
	if e.HTML {
		params.Html = e.Body
	} else {
		params.Text = e.Body
	}

	sent, err := t.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("resend send: %w", err)
	}
	slog.Debug("email accepted by resend", "email_id", sent.Id, "to", e.To)
	return nil
}

// LogTransport only logs. It is the default when no provider is configured.
type LogTransport struct{}

func (LogTransport) Name() string { return "log" }

func (LogTransport) SendEmail(ctx context.Context, e Email) error {
	slog.Info("email alert", "to", e.To, "subject", e.Subject, "html", e.HTML, "bytes", len(e.Body))
	return nil
}

func (LogTransport) SendMessage(ctx context.Context, m Message) error {
	slog.Info("message alert", "channel", m.Channel, "recipient", m.Recipient, "title", m.Title, "body", m.Body)
	return nil
}

// GatewayTransport POSTs each message as JSON to an SMS or push gateway.
type GatewayTransport struct {
	url        string
	httpClient *http.Client
}

func NewGatewayTransport(url string) *GatewayTransport {
	return &GatewayTransport{
		url: url,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (t *GatewayTransport) Name() string { return "gateway" }

func (t *GatewayTransport) SendMessage(ctx context.Context, m Message) error {
	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("error marshalling message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error while doing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status code: %d - status: %s", resp.StatusCode, resp.Status)
	}
	return nil
}

// deliverEach sends one message per recipient and joins the failures.
func deliverEach(ctx context.Context, t MessageTransport, channel string, recipients []string, build func(recipient string) Message) error {
	var errs []error
	for _, r := range recipients {
		if err := t.SendMessage(ctx, build(r)); err != nil {
			errs = append(errs, &DeliveryError{Channel: channel, Recipient: r, Err: err})
		}
	}
	return errors.Join(errs...)
}
