// Package config loads runtime settings from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
)

// Config contains all runtime settings for the MamaShield service.
type Config struct {
	BindAddr         string        `env:"BIND_ADDR" envDefault:":8080"`
	LogLevel         string        `env:"LOG_LEVEL" envDefault:"info"`
	MetricsNamespace string        `env:"METRICS_NAMESPACE" envDefault:"mamashield"`
	ShutdownTimeout  time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`

	// Empty DatabaseURL keeps all state in memory, for demos and tests.
	DatabaseURL string `env:"DATABASE_URL"`

	AIAPIKey  string        `env:"AI_API_KEY"`
	AIBaseURL string        `env:"AI_BASE_URL" envDefault:"https://api.x.ai/v1"`
	AIModels  []string      `env:"AI_MODELS" envDefault:"grok-4.1-fast,grok-4"`
	AITimeout time.Duration `env:"AI_TIMEOUT" envDefault:"30s"`
	AIUseMock bool          `env:"AI_USE_MOCK" envDefault:"false"`

	ATUsername    string        `env:"AT_USERNAME"`
	ATAPIKey      string        `env:"AT_API_KEY"`
	ATBaseURL     string        `env:"AT_BASE_URL" envDefault:"https://api.africastalking.com"`
	ATSenderID    string        `env:"AT_SENDER_ID"`
	SMSTimeout    time.Duration `env:"SMS_TIMEOUT" envDefault:"10s"`
	SMSUseMock    bool          `env:"SMS_USE_MOCK" envDefault:"false"`
	SMSRateLimit  int           `env:"SMS_RATE_LIMIT" envDefault:"10"`
	SMSDisclaimer string        `env:"SMS_DISCLAIMER" envDefault:"MamaShield gives general health info, not a diagnosis. Always consult your clinic."`

	DefaultLanguage string `env:"DEFAULT_LANGUAGE" envDefault:"en"`
	EmergencyNumber string `env:"EMERGENCY_NUMBER" envDefault:"1195"`

	CHWPhone         string `env:"CHW_PHONE"`
	TeaCHWPhone      string `env:"TEA_CHW_PHONE"`
	FarmClinicNumber string `env:"FARM_CLINIC_NUMBER"`
	ProgramLeadPhone string `env:"PROGRAM_LEAD_PHONE"`

	// Empty DigestCron disables the daily digest.
	DigestCron         string        `env:"DIGEST_CRON" envDefault:"0 6 * * *"`
	USSDSessionTimeout time.Duration `env:"USSD_SESSION_TIMEOUT" envDefault:"90s"`
}

// Load reads environment variables, applies defaults, and validates the
// combinations the wiring depends on.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.CHWPhone) == "" {
		return fmt.Errorf("CHW_PHONE is required")
	}
	if !c.AIUseMock && strings.TrimSpace(c.AIAPIKey) == "" {
		return fmt.Errorf("AI_API_KEY is required unless AI_USE_MOCK=true")
	}
	if !c.SMSUseMock && (strings.TrimSpace(c.ATUsername) == "" || strings.TrimSpace(c.ATAPIKey) == "") {
		return fmt.Errorf("AT_USERNAME and AT_API_KEY are required unless SMS_USE_MOCK=true")
	}
	if len(c.AIModels) == 0 {
		return fmt.Errorf("AI_MODELS must name at least one model")
	}
	if c.SMSRateLimit <= 0 {
		return fmt.Errorf("SMS_RATE_LIMIT must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be positive")
	}
	if c.USSDSessionTimeout < 5*time.Second {
		return fmt.Errorf("USSD_SESSION_TIMEOUT must be at least 5s")
	}
	return nil
}
