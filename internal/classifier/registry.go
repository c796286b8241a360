// Package classifier maps a sensor reading to a severity. Each sensor type
// has its own Strategy, resolved through a Registry that is filled once at
// startup and only read afterwards.
package classifier

import (
	"log/slog"
	"sort"
	"time"

	"github.com/mr1hm/go-sensor-alerts/internal/config"
	"github.com/mr1hm/go-sensor-alerts/internal/models"
)

// Strategy classifies the raw value of one sensor type. Implementations must
// be pure and total: unparsable input maps to a severity, never an error.
type Strategy interface {
	Classify(value string, now time.Time) models.Severity
	Describe() string
}

// Registry is not safe for concurrent Register calls. Register everything
// before the registry is shared; Resolve needs no locking after that.
type Registry struct {
	strategies map[models.SensorType]Strategy
}

func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[models.SensorType]Strategy),
	}
}

func (r *Registry) Register(t models.SensorType, s Strategy) {
	r.strategies[t] = s
}

func (r *Registry) Resolve(t models.SensorType) (Strategy, bool) {
	s, ok := r.strategies[t]
	return s, ok
}

// Types returns the registered sensor types in sorted order.
func (r *Registry) Types() []models.SensorType {
	types := make([]models.SensorType, 0, len(r.strategies))
	for t := range r.strategies {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// NewDefaultRegistry registers the built-in MOTION, TEMPERATURE and ACCESS
// strategies from cfg. The off-hours window was validated by config.Load; a
// bad value here falls back to an empty window.
func NewDefaultRegistry(cfg config.SensorsConfig) *Registry {
	window, err := ParseWindow(cfg.OffHoursStart, cfg.OffHoursEnd)
	if err != nil {
		slog.Warn("invalid off-hours window, motion is never critical", "error", err)
	}

	r := NewRegistry()
	r.Register(models.SensorTypeMotion, Motion{OffHours: window})
	r.Register(models.SensorTypeTemperature, Temperature{
		WarnThreshold: cfg.TempWarnThreshold,
		CriticalHigh:  cfg.TempCriticalHigh,
		CriticalLow:   cfg.TempCriticalLow,
	})
	r.Register(models.SensorTypeAccess, Access{})
	return r
}

type Classifier struct {
	registry *Registry
}

func New(registry *Registry) *Classifier {
	return &Classifier{registry: registry}
}

// Classify never fails. Unregistered types are INFO so the event is still
// recorded.
func (c *Classifier) Classify(t models.SensorType, value string, now time.Time) models.Severity {
	s, ok := c.registry.Resolve(t)
	if !ok {
		return models.SeverityInfo
	}
	return s.Classify(value, now)
}

func (c *Classifier) Registry() *Registry {
	return c.registry
}
