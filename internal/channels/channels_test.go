package channels

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"go.uber.org/goleak"

	"github.com/mr1hm/go-sensor-alerts/internal/config"
	"github.com/mr1hm/go-sensor-alerts/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type mockEmailTransport struct {
	mu     sync.Mutex
	emails []Email
	err    error
}

func (m *mockEmailTransport) Name() string { return "mock" }

func (m *mockEmailTransport) SendEmail(ctx context.Context, e Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emails = append(m.emails, e)
	return m.err
}

func (m *mockEmailTransport) sent() []Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Email(nil), m.emails...)
}

type mockMessageTransport struct {
	mu       sync.Mutex
	messages []Message
	failFor  string
}

func (m *mockMessageTransport) Name() string { return "mock" }

func (m *mockMessageTransport) SendMessage(ctx context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	if msg.Recipient == m.failFor {
		return errors.New("gateway rejected")
	}
	return nil
}

func (m *mockMessageTransport) sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.messages...)
}

func testAlert(sev models.Severity) models.AlertMessage {
	return models.AlertMessage{
		ID:         "alert-1",
		SensorName: "Vault Door",
		Type:       models.SensorTypeAccess,
		Severity:   sev,
		Message:    "Sensor Vault Door [ACCESS] => false (CRITICAL)",
		Timestamp:  time.Date(2026, 5, 4, 23, 7, 9, 0, time.UTC),
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestEmailSubject(t *testing.T) {
	got := EmailSubject(testAlert(models.SeverityCritical))
	want := "[ALERTA CRITICAL] Vault Door - 04/05/2026 23:07:09"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestSeverityColor(t *testing.T) {
	tests := map[models.Severity]string{
		models.SeverityCritical: "#dc3545",
		models.SeverityWarn:     "#ffc107",
		models.SeverityInfo:     "#17a2b8",
		models.Severity(42):     "#6c757d",
	}
	for sev, want := range tests {
		if got := SeverityColor(sev); got != want {
			t.Errorf("%s: expected %s, got %s", sev, want, got)
		}
	}
}

func TestEmailBody(t *testing.T) {
	msg := testAlert(models.SeverityWarn)
	msg.Message = "<script>alert(1)</script>"

	html, err := EmailBody(msg, true)
	if err != nil {
		t.Fatalf("EmailBody failed: %v", err)
	}
	if !strings.Contains(html, "background-color: #ffc107") {
		t.Error("expected WARN color in html header")
	}
	if strings.Contains(html, "<script>") {
		t.Error("expected message to be escaped")
	}

	text, err := EmailBody(msg, false)
	if err != nil {
		t.Fatalf("EmailBody failed: %v", err)
	}
	if strings.Contains(text, "<html") {
		t.Error("expected plain text fallback")
	}
	if !strings.Contains(text, "Timestamp: 04/05/2026 23:07:09") {
		t.Errorf("expected formatted timestamp in plain text, got %q", text)
	}
}

func TestSMSText(t *testing.T) {
	got := SMSText(testAlert(models.SeverityCritical))
	want := "ALERTA CRITICAL: Vault Door - ACCESS (23:07)"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestSMSText_Truncates(t *testing.T) {
	msg := testAlert(models.SeverityWarn)
	msg.SensorName = strings.Repeat("Perimeter-Sensor-", 12)

	got := SMSText(msg)
	if n := utf8.RuneCountInString(got); n > smsMaxLength {
		t.Errorf("expected at most %d characters, got %d", smsMaxLength, n)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("expected ellipsis suffix, got %q", got)
	}
}

func TestBuildPush(t *testing.T) {
	tests := []struct {
		sev   models.Severity
		title string
	}{
		{models.SeverityCritical, "🚨 Alerta CRITICAL"},
		{models.SeverityWarn, "⚠️ Alerta WARN"},
		{models.SeverityInfo, "ℹ️ Alerta INFO"},
	}
	for _, tt := range tests {
		n := BuildPush(testAlert(tt.sev))
		if n.Title != tt.title {
			t.Errorf("expected title %q, got %q", tt.title, n.Title)
		}
		if !strings.HasPrefix(n.Body, "Vault Door: ") {
			t.Errorf("unexpected body %q", n.Body)
		}
		if n.Data["time"] != "23:07" || n.Data["sensor_type"] != "ACCESS" || n.Data["severity"] != tt.sev.String() {
			t.Errorf("unexpected data %v", n.Data)
		}
	}
}

func TestChannel_Availability(t *testing.T) {
	tests := []struct {
		name      string
		enabled   bool
		phones    []string
		available bool
	}{
		{"enabled with recipients", true, []string{"+100"}, true},
		{"enabled without recipients", true, nil, false},
		{"disabled with recipients", false, []string{"+100"}, false},
		{"blank recipients ignored", true, []string{" ", ""}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewSMSChannel(config.SMSConfig{Enabled: tt.enabled, PhoneNumbers: tt.phones}, &mockMessageTransport{}, NoLatency)
			defer c.Stop()
			if got := c.Available(); got != tt.available {
				t.Errorf("expected available=%v, got %v", tt.available, got)
			}
		})
	}
}

func TestChannel_AddRecipient(t *testing.T) {
	c := NewPushChannel(config.PushConfig{Enabled: true}, &mockMessageTransport{}, NoLatency)
	defer c.Stop()

	if c.Available() {
		t.Fatal("expected channel without tokens to be unavailable")
	}
	if !c.AddRecipient("device-1") {
		t.Error("expected new token to be added")
	}
	if c.AddRecipient("device-1") {
		t.Error("expected duplicate token to be ignored")
	}
	if !c.Available() || len(c.Recipients()) != 1 {
		t.Errorf("expected 1 token, got %v", c.Recipients())
	}
}

func TestEmailChannel_Send(t *testing.T) {
	transport := &mockEmailTransport{}
	c := NewEmailChannel(config.EmailConfig{
		Enabled:     true,
		HTMLEnabled: true,
		From:        "alerts@example.com",
		Recipients:  []string{"ops@example.com", "sec@example.com"},
	}, transport, NoLatency)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)

	ok, err := c.Send(context.Background(), testAlert(models.SeverityCritical))
	if !ok || err != nil {
		t.Fatalf("expected send to be accepted, got ok=%v err=%v", ok, err)
	}

	waitFor(t, func() bool { return len(transport.sent()) == 1 })
	c.Stop()

	e := transport.sent()[0]
	if len(e.To) != 2 || e.From != "alerts@example.com" || !e.HTML {
		t.Errorf("unexpected email: %+v", e)
	}
	if !strings.HasPrefix(e.Subject, "[ALERTA CRITICAL] Vault Door") {
		t.Errorf("unexpected subject %q", e.Subject)
	}
	if info := c.Info(); info.Delivered != 1 {
		t.Errorf("expected 1 delivered, got %d", info.Delivered)
	}
}

func TestChannel_SendDisabled(t *testing.T) {
	transport := &mockMessageTransport{}
	c := NewSMSChannel(config.SMSConfig{Enabled: false, PhoneNumbers: []string{"+100"}}, transport, NoLatency)
	defer c.Stop()

	ok, err := c.Send(context.Background(), testAlert(models.SeverityWarn))
	if ok || err != nil {
		t.Errorf("expected disabled channel to return false without error, got ok=%v err=%v", ok, err)
	}
	ok, _ = c.SendTo(context.Background(), testAlert(models.SeverityWarn), []string{"+200"})
	if ok {
		t.Error("expected SendTo on a disabled channel to return false")
	}
}

func TestChannel_SendToExplicitRecipients(t *testing.T) {
	transport := &mockMessageTransport{}
	c := NewSMSChannel(config.SMSConfig{Enabled: true, PhoneNumbers: []string{"+100"}}, transport, NoLatency)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)

	ok, err := c.SendTo(context.Background(), testAlert(models.SeverityWarn), []string{"+200", "+300"})
	if !ok || err != nil {
		t.Fatalf("expected accepted, got ok=%v err=%v", ok, err)
	}
	waitFor(t, func() bool { return len(transport.sent()) == 2 })
	c.Stop()

	for _, m := range transport.sent() {
		if m.Recipient == "+100" {
			t.Error("configured recipient should not receive an explicit send")
		}
	}

	if _, err := c.SendTo(context.Background(), testAlert(models.SeverityWarn), nil); !errors.Is(err, ErrNoRecipients) {
		t.Errorf("expected ErrNoRecipients, got %v", err)
	}
}

func TestChannel_QueueFull(t *testing.T) {
	// Never started, so the delivery buffer fills.
	c := NewPushChannel(config.PushConfig{Enabled: true, DeviceTokens: []string{"d1"}}, &mockMessageTransport{}, NoLatency)
	defer c.Stop()

	for i := 0; i < deliveryBuffer; i++ {
		if ok, _ := c.Send(context.Background(), testAlert(models.SeverityWarn)); !ok {
			t.Fatalf("expected send %d to be accepted", i)
		}
	}
	ok, err := c.Send(context.Background(), testAlert(models.SeverityWarn))
	if ok || !errors.Is(err, ErrDeliveryQueueFull) {
		t.Errorf("expected queue full error, got ok=%v err=%v", ok, err)
	}
	var derr *DeliveryError
	if !errors.As(err, &derr) || derr.Channel != TypePush {
		t.Errorf("expected DeliveryError for PUSH, got %v", err)
	}
}

func TestPushChannel_FailureIsPerRecipient(t *testing.T) {
	transport := &mockMessageTransport{failFor: "bad"}
	c := NewPushChannel(config.PushConfig{Enabled: true, DeviceTokens: []string{"bad", "good"}}, transport, NoLatency)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)

	c.Send(context.Background(), testAlert(models.SeverityCritical))
	waitFor(t, func() bool { return c.Info().Failed == 1 })
	c.Stop()

	if len(transport.sent()) != 2 {
		t.Errorf("expected both tokens attempted, got %d", len(transport.sent()))
	}
	if transport.sent()[1].Title != "🚨 Alerta CRITICAL" {
		t.Errorf("unexpected title %q", transport.sent()[1].Title)
	}
}

func TestFixedLatency(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := FixedLatency(time.Hour).Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected cancelled wait, got %v", err)
	}
	if FixedLatency(0) != NoLatency {
		t.Error("expected zero latency to be NoLatency")
	}
}

func TestGatewayTransport(t *testing.T) {
	var got Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected json content type, got %s", r.Header.Get("Content-Type"))
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	tr := NewGatewayTransport(srv.URL)
	err := tr.SendMessage(context.Background(), Message{Channel: TypeSMS, Recipient: "+100", Body: "hi"})
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if got.Recipient != "+100" || got.Body != "hi" {
		t.Errorf("unexpected payload %+v", got)
	}
}

func TestGatewayTransport_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewGatewayTransport(srv.URL).SendMessage(context.Background(), Message{Recipient: "+1"})
	if err == nil {
		t.Error("expected error for 502")
	}
}

func TestSMTPTransport(t *testing.T) {
	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)
	tr := NewSMTPTransport("mail.local", 2525, "", "")
	tr.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}

	err := tr.SendEmail(context.Background(), Email{
		From:    "alerts@example.com",
		To:      []string{"ops@example.com"},
		Subject: "[ALERTA WARN] Lobby",
		Body:    "<p>hi</p>",
		HTML:    true,
	})
	if err != nil {
		t.Fatalf("SendEmail failed: %v", err)
	}
	if gotAddr != "mail.local:2525" || len(gotTo) != 1 {
		t.Errorf("unexpected addr/to: %s %v", gotAddr, gotTo)
	}
	if !strings.Contains(gotMsg, "Content-Type: text/html; charset=UTF-8") {
		t.Error("expected html content type header")
	}
	if !strings.Contains(gotMsg, "Subject: [ALERTA WARN] Lobby\r\n") {
		t.Error("expected subject header")
	}
}

func TestBuildMIMEMessage_HeaderValues(t *testing.T) {
	now := time.Date(2026, 5, 4, 23, 7, 9, 0, time.UTC)

	t.Run("line breaks stay in one header", func(t *testing.T) {
		msg := testAlert(models.SeverityCritical)
		msg.SensorName = "Lobby\r\nBcc: attacker@evil.test"
		raw := string(buildMIMEMessage(Email{
			From:    "alerts@example.com\r\nCc: other@evil.test",
			To:      []string{"ops@example.com"},
			Subject: EmailSubject(msg),
			Body:    "body",
		}, now))

		header, _, ok := strings.Cut(raw, "\r\n\r\n")
		if !ok {
			t.Fatal("expected blank line after headers")
		}
		lines := strings.Split(header, "\r\n")
		for _, line := range lines {
			if strings.HasPrefix(line, "Bcc:") || strings.HasPrefix(line, "Cc:") {
				t.Errorf("unexpected header line %q", line)
			}
		}
		if len(lines) != 7 {
			t.Errorf("expected 7 header lines, got %d: %q", len(lines), lines)
		}
	})

	t.Run("non ascii subject is encoded", func(t *testing.T) {
		raw := string(buildMIMEMessage(Email{
			From:    "alerts@example.com",
			To:      []string{"ops@example.com"},
			Subject: "[ALERTA WARN] Sótano",
			Body:    "body",
		}, now))
		if !strings.Contains(raw, "Subject: =?utf-8?q?") {
			t.Errorf("expected q-encoded subject, got %q", raw)
		}
		if strings.Contains(raw, "Sótano") {
			t.Error("expected raw non-ascii text to be absent from headers")
		}
	})
}

func TestNewSet(t *testing.T) {
	s := NewSet(config.AlertsConfig{
		Email: config.EmailConfig{Enabled: true, Recipients: []string{"a@b.c"}, Provider: "log"},
		SMS:   config.SMSConfig{Enabled: true, GatewayURL: "http://sms.local/send"},
	})
	defer s.Stop()

	all := s.All()
	if len(all) != 3 {
		t.Fatalf("expected 3 channels, got %d", len(all))
	}
	if s.SMS.Info().Transport != "gateway" || s.Email.Info().Transport != "log" {
		t.Errorf("unexpected transports: sms=%s email=%s", s.SMS.Info().Transport, s.Email.Info().Transport)
	}
	if !s.Email.Available() || s.SMS.Available() || s.Push.Available() {
		t.Error("unexpected availability")
	}
}
