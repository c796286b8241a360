package channels

import (
	"context"
	"fmt"

	"github.com/mr1hm/go-sensor-alerts/internal/config"
	"github.com/mr1hm/go-sensor-alerts/internal/models"
)

type PushNotification struct {
	Title string
	Body  string
	Data  map[string]string
}

func severityEmoji(s models.Severity) string {
	switch s {
	case models.SeverityCritical:
		return "🚨"
	case models.SeverityWarn:
		return "⚠️"
	case models.SeverityInfo:
		return "ℹ️"
	default:
		return "📢"
	}
}

func BuildPush(msg models.AlertMessage) PushNotification {
	return PushNotification{
		Title: fmt.Sprintf("%s Alerta %s", severityEmoji(msg.Severity), msg.Severity),
		Body:  fmt.Sprintf("%s: %s", msg.SensorName, msg.Message),
		Data: map[string]string{
			"alert_id":    msg.ID,
			"severity":    msg.Severity.String(),
			"time":        msg.Timestamp.Format("15:04"),
			"sensor_type": string(msg.Type),
		},
	}
}

type PushChannel struct {
	*adapter
	transport MessageTransport
}

func NewPushChannel(cfg config.PushConfig, transport MessageTransport, latency LatencyPolicy) *PushChannel {
	if transport == nil {
		transport = LogTransport{}
	}
	c := &PushChannel{transport: transport}
	c.adapter = newAdapter(TypePush, cfg.Enabled, cfg.DeviceTokens, transport.Name(), latency, c.deliver)
	return c
}

func (c *PushChannel) deliver(ctx context.Context, msg models.AlertMessage, tokens []string) error {
	n := BuildPush(msg)
	return deliverEach(ctx, c.transport, TypePush, tokens, func(token string) Message {
		return Message{Channel: TypePush, Recipient: token, Title: n.Title, Body: n.Body, Data: n.Data}
	})
}
