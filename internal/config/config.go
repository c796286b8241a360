package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server  ServerConfig
	GRPC    GRPCConfig
	Worker  WorkerConfig
	Sensors SensorsConfig
	Alerts  AlertsConfig
	DB      DatabaseConfig
	Logging LoggingConfig
}

type GRPCConfig struct {
	Port int
}

type ServerConfig struct {
	Host         string
	Port         int
	RateLimitRPS int
}

type WorkerConfig struct {
	Count         int
	BufferSize    int
	DrainInterval time.Duration
}

type SensorsConfig struct {
	OffHoursStart     string // HH:MM
	OffHoursEnd       string // HH:MM
	TempWarnThreshold int
	TempCriticalHigh  int
	TempCriticalLow   int
}

type AlertsConfig struct {
	Email          EmailConfig
	SMS            SMSConfig
	Push           PushConfig
	ChannelLatency time.Duration
}

type EmailConfig struct {
	Enabled      bool
	HTMLEnabled  bool
	From         string
	Recipients   []string
	Provider     string // log, smtp or resend
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	ResendAPIKey string
}

type SMSConfig struct {
	Enabled      bool
	PhoneNumbers []string
	GatewayURL   string
}

type PushConfig struct {
	Enabled      bool
	DeviceTokens []string
	GatewayURL   string
}

type DatabaseConfig struct {
	Path string
}

type LoggingConfig struct {
	Level string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "localhost"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			RateLimitRPS: getEnvInt("RATE_LIMIT_RPS", 50),
		},
		GRPC: GRPCConfig{
			Port: getEnvInt("GRPC_PORT", 50051),
		},
		Worker: WorkerConfig{
			Count:         getEnvInt("WORKER_COUNT", 4),
			BufferSize:    getEnvInt("WORKER_BUFFER_SIZE", 100),
			DrainInterval: getEnvDuration("WORKER_DRAIN_INTERVAL", 50*time.Millisecond),
		},
		Sensors: SensorsConfig{
			OffHoursStart:     getEnv("MOTION_OFF_HOURS_START", "22:00"),
			OffHoursEnd:       getEnv("MOTION_OFF_HOURS_END", "06:00"),
			TempWarnThreshold: getEnvInt("TEMPERATURE_WARN_THRESHOLD", 60),
			TempCriticalHigh:  getEnvInt("TEMPERATURE_CRITICAL_HIGH", 90),
			TempCriticalLow:   getEnvInt("TEMPERATURE_CRITICAL_LOW", -10),
		},
		Alerts: AlertsConfig{
			Email: EmailConfig{
				Enabled:      getEnvBool("EMAIL_ENABLED", false),
				HTMLEnabled:  getEnvBool("EMAIL_HTML_ENABLED", true),
				From:         getEnv("EMAIL_FROM", "noreply@sensor-alerts.local"),
				Recipients:   getEnvList("EMAIL_RECIPIENTS"),
				Provider:     getEnv("EMAIL_PROVIDER", "log"),
				SMTPHost:     getEnv("SMTP_HOST", "localhost"),
				SMTPPort:     getEnvInt("SMTP_PORT", 1025),
				SMTPUser:     getEnv("SMTP_USER", ""),
				SMTPPassword: getEnv("SMTP_PASSWORD", ""),
				ResendAPIKey: getEnv("RESEND_API_KEY", ""),
			},
			SMS: SMSConfig{
				Enabled:      getEnvBool("SMS_ENABLED", false),
				PhoneNumbers: getEnvList("SMS_PHONE_NUMBERS"),
				GatewayURL:   getEnv("SMS_GATEWAY_URL", ""),
			},
			Push: PushConfig{
				Enabled:      getEnvBool("PUSH_ENABLED", false),
				DeviceTokens: getEnvList("PUSH_DEVICE_TOKENS"),
				GatewayURL:   getEnv("PUSH_GATEWAY_URL", ""),
			},
			ChannelLatency: getEnvDuration("CHANNEL_LATENCY", 0),
		},
		DB: DatabaseConfig{
			Path: getEnv("DB_PATH", "./data/sensor-alerts.db"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.GRPC.Port < 1 || c.GRPC.Port > 65535 {
		return fmt.Errorf("invalid grpc port: %d", c.GRPC.Port)
	}

	if c.Server.RateLimitRPS < 1 {
		return fmt.Errorf("rate limit must be at least 1 req/s")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Worker.Count < 1 {
		return fmt.Errorf("worker count must be at least 1")
	}
	if c.Worker.BufferSize < 0 {
		return fmt.Errorf("worker buffer size must not be negative")
	}
	if c.Worker.DrainInterval <= 0 {
		return fmt.Errorf("drain interval must be positive")
	}

	if _, err := time.Parse("15:04", c.Sensors.OffHoursStart); err != nil {
		return fmt.Errorf("invalid off-hours start %q: %w", c.Sensors.OffHoursStart, err)
	}
	if _, err := time.Parse("15:04", c.Sensors.OffHoursEnd); err != nil {
		return fmt.Errorf("invalid off-hours end %q: %w", c.Sensors.OffHoursEnd, err)
	}

	validProviders := map[string]bool{"log": true, "smtp": true, "resend": true}
	if !validProviders[c.Alerts.Email.Provider] {
		return fmt.Errorf("invalid email provider: %s", c.Alerts.Email.Provider)
	}
	if c.Alerts.ChannelLatency < 0 {
		return fmt.Errorf("channel latency must not be negative")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

// getEnvList splits a comma-separated value, dropping blank entries.
func getEnvList(key string) []string {
	val := os.Getenv(key)
	if strings.TrimSpace(val) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
