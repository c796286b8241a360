package config

import (
	"reflect"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Worker.DrainInterval != 50*time.Millisecond {
		t.Errorf("expected 50ms drain interval, got %v", cfg.Worker.DrainInterval)
	}
	if cfg.Sensors.OffHoursStart != "22:00" || cfg.Sensors.OffHoursEnd != "06:00" {
		t.Errorf("unexpected off-hours window %s-%s", cfg.Sensors.OffHoursStart, cfg.Sensors.OffHoursEnd)
	}
	if cfg.Alerts.Email.Provider != "log" {
		t.Errorf("expected log email provider, got %s", cfg.Alerts.Email.Provider)
	}
	if cfg.Alerts.SMS.Enabled {
		t.Error("expected SMS disabled by default")
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("WORKER_COUNT", "8")
	t.Setenv("WORKER_DRAIN_INTERVAL", "100ms")
	t.Setenv("TEMPERATURE_CRITICAL_HIGH", "100")
	t.Setenv("SMS_ENABLED", "true")
	t.Setenv("SMS_PHONE_NUMBERS", " +34600000001, ,+34600000002 ")
	t.Setenv("EMAIL_PROVIDER", "resend")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Worker.Count != 8 {
		t.Errorf("expected 8 workers, got %d", cfg.Worker.Count)
	}
	if cfg.Worker.DrainInterval != 100*time.Millisecond {
		t.Errorf("expected 100ms, got %v", cfg.Worker.DrainInterval)
	}
	if cfg.Sensors.TempCriticalHigh != 100 {
		t.Errorf("expected critical high 100, got %d", cfg.Sensors.TempCriticalHigh)
	}
	if !cfg.Alerts.SMS.Enabled {
		t.Error("expected SMS enabled")
	}
	want := []string{"+34600000001", "+34600000002"}
	if !reflect.DeepEqual(cfg.Alerts.SMS.PhoneNumbers, want) {
		t.Errorf("expected %v, got %v", want, cfg.Alerts.SMS.PhoneNumbers)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"bad port", "SERVER_PORT", "70000"},
		{"bad log level", "LOG_LEVEL", "verbose"},
		{"zero workers", "WORKER_COUNT", "0"},
		{"bad off-hours", "MOTION_OFF_HOURS_START", "25:99"},
		{"bad provider", "EMAIL_PROVIDER", "pigeon"},
		{"zero rate limit", "RATE_LIMIT_RPS", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%s", tt.key, tt.val)
			}
		})
	}
}
