package channels

import (
	"context"
	"log/slog"

	"github.com/mr1hm/go-sensor-alerts/internal/config"
)

// Set is the fixed channel registry built once at startup.
type Set struct {
	Email *EmailChannel
	SMS   *SMSChannel
	Push  *PushChannel
}

func NewSet(cfg config.AlertsConfig) *Set {
	latency := FixedLatency(cfg.ChannelLatency)

	var email EmailTransport
	switch cfg.Email.Provider {
	case "smtp":
		email = NewSMTPTransport(cfg.Email.SMTPHost, cfg.Email.SMTPPort, cfg.Email.SMTPUser, cfg.Email.SMTPPassword)
	case "resend":
		email = NewResendTransport(cfg.Email.ResendAPIKey)
	default:
		email = LogTransport{}
	}

	return &Set{
		Email: NewEmailChannel(cfg.Email, email, latency),
		SMS:   NewSMSChannel(cfg.SMS, gatewayOrLog(cfg.SMS.GatewayURL), latency),
		Push:  NewPushChannel(cfg.Push, gatewayOrLog(cfg.Push.GatewayURL), latency),
	}
}

func gatewayOrLog(url string) MessageTransport {
	if url == "" {
		return LogTransport{}
	}
	return NewGatewayTransport(url)
}

func (s *Set) All() []Channel {
	return []Channel{s.Email, s.SMS, s.Push}
}

func (s *Set) Start(ctx context.Context) {
	s.Email.Start(ctx)
	s.SMS.Start(ctx)
	s.Push.Start(ctx)
	for _, c := range []Describer{s.Email, s.SMS, s.Push} {
		info := c.Info()
		slog.Info("channel ready", "type", info.Type, "enabled", info.Enabled, "recipients", info.Recipients, "transport", info.Transport)
	}
}

func (s *Set) Stop() {
	s.Email.Stop()
	s.SMS.Stop()
	s.Push.Stop()
}
