package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Session detection strategies.
const (
	DetectStatus = "status"
	DetectWindow = "window"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// OpenF1 feed configuration.
	OpenF1BaseURL string
	OpenF1Timeout time.Duration
	SessionKey    string

	SessionPollInterval     time.Duration
	LeaderboardPollInterval time.Duration
	SessionDetection        string

	// Reconciler tuning, in seconds.
	LapThreshold float64
	GapTolerance float64

	// Optional publishers; empty disables them.
	KafkaBrokers []string
	KafkaTopic   string
	NATSURL      string
	NATSSubject  string

	CORSAllowedOrigins []string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	openf1Timeout, err := parsePositiveDuration("OPENF1_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	sessionPoll, err := parsePositiveDuration("SESSION_POLL_INTERVAL", "15s")
	if err != nil {
		return nil, err
	}
	leaderboardPoll, err := parsePositiveDuration("LEADERBOARD_POLL_INTERVAL", "10s")
	if err != nil {
		return nil, err
	}
	lapThreshold, err := parsePositiveDuration("LAP_THRESHOLD", "60s")
	if err != nil {
		return nil, err
	}
	gapTolerance, err := parsePositiveDuration("GAP_TOLERANCE", "100ms")
	if err != nil {
		return nil, err
	}

	var brokers []string
	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		brokers = sharedcfg.ParseBrokers(raw)
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		OpenF1BaseURL: strings.TrimRight(sharedcfg.EnvOrDefault("OPENF1_BASE_URL", "https://api.openf1.org/v1"), "/"),
		OpenF1Timeout: openf1Timeout,
		SessionKey:    sharedcfg.EnvOrDefault("SESSION_KEY", "latest"),

		SessionPollInterval:     sessionPoll,
		LeaderboardPollInterval: leaderboardPoll,
		SessionDetection:        strings.ToLower(sharedcfg.EnvOrDefault("SESSION_DETECTION", DetectStatus)),

		LapThreshold: lapThreshold.Seconds(),
		GapTolerance: gapTolerance.Seconds(),

		KafkaBrokers: brokers,
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "live-leaderboard"),
		NATSURL:      os.Getenv("NATS_URL"),
		NATSSubject:  sharedcfg.EnvOrDefault("NATS_SUBJECT", "f1.live.leaderboard"),

		CORSAllowedOrigins: splitList(sharedcfg.EnvOrDefault("CORS_ALLOWED_ORIGINS", "*")),
	}

	if cfg.OpenF1BaseURL == "" {
		return nil, errors.New("OPENF1_BASE_URL is required")
	}
	if cfg.SessionKey == "" {
		return nil, errors.New("SESSION_KEY is required")
	}
	if cfg.SessionDetection != DetectStatus && cfg.SessionDetection != DetectWindow {
		return nil, fmt.Errorf("invalid SESSION_DETECTION %q: want %q or %q", cfg.SessionDetection, DetectStatus, DetectWindow)
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	if cfg.NATSURL != "" && cfg.NATSSubject == "" {
		return nil, errors.New("NATS_SUBJECT is required when NATS_URL is set")
	}

	return cfg, nil
}

// KafkaEnabled reports whether snapshots should be published to Kafka.
func (c *Config) KafkaEnabled() bool { return len(c.KafkaBrokers) > 0 }

// NATSEnabled reports whether snapshots should be published to NATS.
func (c *Config) NATSEnabled() bool { return c.NATSURL != "" }

func parsePositiveDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
