package classifier

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/mr1hm/go-sensor-alerts/internal/models"
)

const motionDetected = "MOTION_DETECTED"

// Window is a time-of-day range [Start, End). When Start > End the window
// wraps midnight. Start == End is an empty window.
type Window struct {
	Start time.Duration // offset from midnight
	End   time.Duration
}

func ParseWindow(start, end string) (Window, error) {
	s, err := parseClock(start)
	if err != nil {
		return Window{}, err
	}
	e, err := parseClock(end)
	if err != nil {
		return Window{}, err
	}
	return Window{Start: s, End: e}, nil
}

func parseClock(v string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", v, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func (w Window) Contains(t time.Time) bool {
	offset := time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())

	if w.Start < w.End {
		return offset >= w.Start && offset < w.End
	}
	if w.Start > w.End {
		return offset >= w.Start || offset < w.End
	}
	return false
}

type Motion struct {
	OffHours Window
}

func (m Motion) Classify(value string, now time.Time) models.Severity {
	if !strings.EqualFold(value, motionDetected) {
		return models.SeverityInfo
	}
	if m.OffHours.Contains(now) {
		return models.SeverityCritical
	}
	return models.SeverityWarn
}

func (m Motion) Describe() string {
	return "motion sensor, critical during off-hours"
}

// Temperature expects CriticalLow < WarnThreshold <= CriticalHigh. The order
// is not enforced.
type Temperature struct {
	WarnThreshold int
	CriticalHigh  int
	CriticalLow   int
}

func (tc Temperature) Classify(value string, _ time.Time) models.Severity {
	temp, err := strconv.Atoi(value)
	if err != nil {
		// Unreadable temperatures lean toward caution.
		slog.Debug("unparsable temperature reading", "value", value, "error", err)
		return models.SeverityWarn
	}

	switch {
	case temp < tc.CriticalLow || temp > tc.CriticalHigh:
		return models.SeverityCritical
	case temp >= tc.WarnThreshold:
		return models.SeverityWarn
	default:
		return models.SeverityInfo
	}
}

func (tc Temperature) Describe() string {
	return fmt.Sprintf("temperature sensor, warn >= %d, critical < %d or > %d",
		tc.WarnThreshold, tc.CriticalLow, tc.CriticalHigh)
}

// Access treats the value as an "authorized" flag. Anything other than a
// case-insensitive "true" is unauthorized.
type Access struct{}

func (Access) Classify(value string, _ time.Time) models.Severity {
	if strings.EqualFold(value, "true") {
		return models.SeverityInfo
	}
	return models.SeverityCritical
}

func (Access) Describe() string {
	return "access control sensor, unauthorized access is critical"
}
