package channels

import (
	"context"
	"fmt"

	"github.com/mr1hm/go-sensor-alerts/internal/config"
	"github.com/mr1hm/go-sensor-alerts/internal/models"
)

const (
	smsMaxLength = 140
	smsEllipsis  = "..."
)

// SMSText formats the alert and truncates it to at most 140 characters.
func SMSText(msg models.AlertMessage) string {
	text := fmt.Sprintf("ALERTA %s: %s - %s (%s)", msg.Severity, msg.SensorName, msg.Type, msg.Timestamp.Format("15:04"))
	runes := []rune(text)
	if len(runes) <= smsMaxLength {
		return text
	}
	return string(runes[:smsMaxLength-len(smsEllipsis)]) + smsEllipsis
}

type SMSChannel struct {
	*adapter
	transport MessageTransport
}

func NewSMSChannel(cfg config.SMSConfig, transport MessageTransport, latency LatencyPolicy) *SMSChannel {
	if transport == nil {
		transport = LogTransport{}
	}
	c := &SMSChannel{transport: transport}
	c.adapter = newAdapter(TypeSMS, cfg.Enabled, cfg.PhoneNumbers, transport.Name(), latency, c.deliver)
	return c
}

func (c *SMSChannel) deliver(ctx context.Context, msg models.AlertMessage, phones []string) error {
	text := SMSText(msg)
	return deliverEach(ctx, c.transport, TypeSMS, phones, func(phone string) Message {
		return Message{Channel: TypeSMS, Recipient: phone, Body: text}
	})
}
