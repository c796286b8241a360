// Package channels holds the notification adapters the alert dispatcher fans
// out to. A successful Send means the alert was accepted by the adapter's
// delivery pool, not that it reached a recipient.
package channels

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mr1hm/go-sensor-alerts/internal/models"
)

const (
	TypeEmail = "EMAIL"
	TypeSMS   = "SMS"
	TypePush  = "PUSH"
)

var (
	ErrDeliveryQueueFull = errors.New("delivery queue full")
	ErrNoRecipients      = errors.New("no recipients")
)

type Channel interface {
	Type() string
	Available() bool
	Send(ctx context.Context, msg models.AlertMessage) (bool, error)
}

// RecipientSender delivers to an explicit recipient list instead of the
// configured one. The enabled flag still applies.
type RecipientSender interface {
	SendTo(ctx context.Context, msg models.AlertMessage, recipients []string) (bool, error)
}

type Info struct {
	Type       string `json:"type"`
	Enabled    bool   `json:"enabled"`
	Available  bool   `json:"available"`
	Recipients int    `json:"recipients"`
	Transport  string `json:"transport"`
	Pending    int    `json:"pending"`
	Delivered  int64  `json:"delivered"`
	Failed     int64  `json:"failed"`
}

type Describer interface {
	Info() Info
}

type DeliveryError struct {
	Channel   string
	Recipient string
	Err       error
}

func (e *DeliveryError) Error() string {
	if e.Recipient == "" {
		return fmt.Sprintf("%s delivery: %v", e.Channel, e.Err)
	}
	return fmt.Sprintf("%s delivery to %s: %v", e.Channel, e.Recipient, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// LatencyPolicy stands in for the transport round trip before each delivery.
type LatencyPolicy interface {
	Wait(ctx context.Context) error
}

type noLatency struct{}

func (noLatency) Wait(ctx context.Context) error { return ctx.Err() }

var NoLatency LatencyPolicy = noLatency{}

type fixedLatency time.Duration

func (d fixedLatency) Wait(ctx context.Context) error {
	t := time.NewTimer(time.Duration(d))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func FixedLatency(d time.Duration) LatencyPolicy {
	if d <= 0 {
		return NoLatency
	}
	return fixedLatency(d)
}
