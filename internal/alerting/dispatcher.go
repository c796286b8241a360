// Package alerting fans alerts out to the notification channels and to the
// real-time stream.
package alerting

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mr1hm/go-sensor-alerts/internal/channels"
	"github.com/mr1hm/go-sensor-alerts/internal/metrics"
	"github.com/mr1hm/go-sensor-alerts/internal/models"
)

const customSuffix = "_CUSTOM"

// Dispatcher sends one alert to many channels concurrently. A failing,
// panicking or refusing channel only affects its own entry in the result.
type Dispatcher struct {
	channels []channels.Channel
	metrics  metrics.Sink
	now      func() time.Time
}

func NewDispatcher(chs []channels.Channel, sink metrics.Sink) *Dispatcher {
	if sink == nil {
		sink = metrics.Nop{}
	}
	registered := make([]channels.Channel, 0, len(chs))
	for _, c := range chs {
		if c != nil {
			registered = append(registered, c)
		}
	}
	return &Dispatcher{
		channels: registered,
		metrics:  sink,
		now:      time.Now,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, msg models.AlertMessage) map[string]bool {
	return d.DispatchTo(ctx, msg, nil)
}

// DispatchTo limits the fan-out to the given channel types. An empty list
// means every available channel.
func (d *Dispatcher) DispatchTo(ctx context.Context, msg models.AlertMessage, types []string) map[string]bool {
	var targets []channels.Channel
	for _, c := range d.channels {
		if c.Available() && wanted(c.Type(), types) {
			targets = append(targets, c)
		}
	}

	results := make(map[string]bool, len(targets))
	if len(targets) == 0 {
		slog.Warn("no available channels for alert", "alert_id", msg.ID, "severity", msg.Severity, "requested", types)
		return results
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, c := range targets {
		wg.Add(1)
		go func(c channels.Channel) {
			defer wg.Done()
			ok := d.invoke(c.Type(), msg, func() (bool, error) {
				return c.Send(ctx, msg)
			})
			mu.Lock()
			results[c.Type()] = ok
			mu.Unlock()
		}(c)
	}
	wg.Wait()

	slog.Debug("alert dispatched", "alert_id", msg.ID, "results", results)
	return results
}

// DispatchCustom only uses channels that have an explicit recipient list in
// req, and sends to those recipients instead of the configured ones.
func (d *Dispatcher) DispatchCustom(ctx context.Context, req *models.AlertRequest) (models.AlertMessage, map[string]bool) {
	msg := req.AlertMessage(d.now())
	results := make(map[string]bool)

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, c := range d.channels {
		recipients := req.Recipients(c.Type())
		if len(recipients) == 0 {
			continue
		}
		sender, ok := c.(channels.RecipientSender)
		if !ok {
			results[c.Type()] = false
			continue
		}

		wg.Add(1)
		go func(typ string, sender channels.RecipientSender, recipients []string) {
			defer wg.Done()
			ok := d.invoke(typ+customSuffix, msg, func() (bool, error) {
				return sender.SendTo(ctx, msg, recipients)
			})
			mu.Lock()
			results[typ] = ok
			mu.Unlock()
		}(c.Type(), sender, recipients)
	}
	wg.Wait()

	if len(results) == 0 {
		slog.Warn("custom alert has no recipients", "alert_id", msg.ID)
	}
	return msg, results
}

func (d *Dispatcher) invoke(service string, msg models.AlertMessage, send func() (bool, error)) (ok bool) {
	severity := msg.Severity.String()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("channel send panicked", "service", service, "alert_id", msg.ID, "panic", r)
			d.metrics.IncrementCounter(metrics.MessagingError, map[string]string{"service": service, "severity": severity})
			ok = false
		}
	}()

	ok, err := send()
	if err != nil {
		slog.Warn("channel send failed", "service", service, "alert_id", msg.ID, "error", err)
		d.metrics.IncrementCounter(metrics.MessagingError, map[string]string{"service": service, "severity": severity})
		return false
	}
	d.metrics.IncrementCounter(metrics.MessagingSent, map[string]string{
		"service":  service,
		"severity": severity,
		"success":  strconv.FormatBool(ok),
	})
	return ok
}

// Status reports availability per channel type.
func (d *Dispatcher) Status() map[string]bool {
	status := make(map[string]bool, len(d.channels))
	for _, c := range d.channels {
		status[c.Type()] = c.Available()
	}
	return status
}

func (d *Dispatcher) Info() []channels.Info {
	infos := make([]channels.Info, 0, len(d.channels))
	for _, c := range d.channels {
		if desc, ok := c.(channels.Describer); ok {
			infos = append(infos, desc.Info())
			continue
		}
		infos = append(infos, channels.Info{Type: c.Type(), Available: c.Available()})
	}
	return infos
}

func wanted(typ string, types []string) bool {
	if len(types) == 0 {
		return true
	}
	for _, t := range types {
		if strings.EqualFold(strings.TrimSpace(t), typ) {
			return true
		}
	}
	return false
}
