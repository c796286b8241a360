package channels

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mr1hm/go-sensor-alerts/internal/models"
	"github.com/mr1hm/go-sensor-alerts/internal/worker"
)

const (
	deliveryWorkers = 2
	deliveryBuffer  = 100
)

type delivery struct {
	msg        models.AlertMessage
	recipients []string
}

type deliverFunc func(ctx context.Context, msg models.AlertMessage, recipients []string) error

// adapter is the part every channel shares: the enabled flag, a mutable
// recipient list and an async delivery pool.
type adapter struct {
	typ       string
	enabled   bool
	transport string
	latency   LatencyPolicy
	deliver   deliverFunc
	pool      *worker.WorkerPool

	mu         sync.RWMutex
	recipients []string

	delivered atomic.Int64
	failed    atomic.Int64
}

func newAdapter(typ string, enabled bool, recipients []string, transport string, latency LatencyPolicy, deliver deliverFunc) *adapter {
	if latency == nil {
		latency = NoLatency
	}
	a := &adapter{
		typ:        typ,
		enabled:    enabled,
		transport:  transport,
		latency:    latency,
		deliver:    deliver,
		recipients: normalizeRecipients(recipients),
	}
	a.pool = worker.NewWorkerPool("channel-"+strings.ToLower(typ), deliveryWorkers, deliveryBuffer, a.process)
	return a
}

func (a *adapter) Type() string {
	return a.typ
}

func (a *adapter) Available() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled && len(a.recipients) > 0
}

func (a *adapter) Start(ctx context.Context) {
	a.pool.Start(ctx)
}

// Stop waits for deliveries already picked up by a worker.
func (a *adapter) Stop() {
	a.pool.Stop()
}

// AddRecipient appends at runtime. Duplicates and blanks are ignored.
func (a *adapter) AddRecipient(r string) bool {
	r = strings.TrimSpace(r)
	if r == "" {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, existing := range a.recipients {
		if existing == r {
			return false
		}
	}
	a.recipients = append(a.recipients, r)
	return true
}

func (a *adapter) Recipients() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, len(a.recipients))
	copy(out, a.recipients)
	return out
}

func (a *adapter) Send(ctx context.Context, msg models.AlertMessage) (bool, error) {
	if !a.enabled {
		return false, nil
	}
	recipients := a.Recipients()
	if len(recipients) == 0 {
		return false, nil
	}
	return a.submit(msg, recipients)
}

func (a *adapter) SendTo(ctx context.Context, msg models.AlertMessage, recipients []string) (bool, error) {
	if !a.enabled {
		return false, nil
	}
	recipients = normalizeRecipients(recipients)
	if len(recipients) == 0 {
		return false, &DeliveryError{Channel: a.typ, Err: ErrNoRecipients}
	}
	return a.submit(msg, recipients)
}

func (a *adapter) submit(msg models.AlertMessage, recipients []string) (bool, error) {
	if !a.pool.TrySubmit(delivery{msg: msg, recipients: recipients}) {
		return false, &DeliveryError{Channel: a.typ, Err: ErrDeliveryQueueFull}
	}
	return true, nil
}

func (a *adapter) process(ctx context.Context, job worker.Job) error {
	d := job.(delivery)
	if err := a.latency.Wait(ctx); err != nil {
		return err
	}
	if err := a.deliver(ctx, d.msg, d.recipients); err != nil {
		a.failed.Add(1)
		slog.Warn("alert delivery failed", "channel", a.typ, "alert_id", d.msg.ID, "error", err)
		return err
	}
	a.delivered.Add(1)
	slog.Info("alert delivered", "channel", a.typ, "alert_id", d.msg.ID, "recipients", len(d.recipients))
	return nil
}

func (a *adapter) Info() Info {
	a.mu.RLock()
	n := len(a.recipients)
	a.mu.RUnlock()
	return Info{
		Type:       a.typ,
		Enabled:    a.enabled,
		Available:  a.enabled && n > 0,
		Recipients: n,
		Transport:  a.transport,
		Pending:    a.pool.Pending(),
		Delivered:  a.delivered.Load(),
		Failed:     a.failed.Load(),
	}
}

func normalizeRecipients(in []string) []string {
	out := make([]string, 0, len(in))
	for _, r := range in {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}
