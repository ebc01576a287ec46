// Package config holds application configuration for the outreach control
// plane: gate thresholds, file locations, provider credentials, and the
// periodic-task intervals for the dispatcher/reaper/reconciler/auto-stop
// loops.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the outreach control plane.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Gate       GateConfig       `yaml:"gate"`
	Queue      QueueConfig      `yaml:"queue"`
	Gmail      GmailConfig      `yaml:"gmail"`
	CRM        CRMConfig        `yaml:"crm"`
	Redis      RedisConfig      `yaml:"redis"`
	Slack      SlackConfig      `yaml:"slack"`
	Archive    ArchiveConfig    `yaml:"archive"`
	ReportSink ReportSinkConfig `yaml:"report_sink"`
	AutoStop   AutoStopConfig   `yaml:"auto_stop"`
}

// ServerConfig holds process-level paths and hostnames.
type ServerConfig struct {
	DataDir  string `yaml:"data_dir"`
	Hostname string `yaml:"hostname"`
}

// GateConfig mirrors spec.md §4.4's send-policy gate configuration.
type GateConfig struct {
	EnableAutoSend    bool     `yaml:"enable_auto_send"`
	AllowlistDomains  []string `yaml:"allowlist_domains"`
	AllowlistEmails   []string `yaml:"allowlist_emails"`
	MaxPerDay         int      `yaml:"max_per_day"`
	KillSwitchTTL     int      `yaml:"kill_switch_ttl_seconds"`
}

// QueueConfig mirrors spec.md §6's send_queue.json reaper settings.
type QueueConfig struct {
	StaleMinutes int    `yaml:"stale_minutes"`
	MaxAttempts  int    `yaml:"max_attempts"`
	ReapAction   string `yaml:"reap_action"`
	PollInterval int    `yaml:"poll_interval_seconds"`
}

// GmailConfig holds Gmail API OAuth2 credentials (peripheral mail provider).
type GmailConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RefreshToken string `yaml:"refresh_token"`
	TimeoutSeconds int  `yaml:"timeout_seconds"`
}

func (c GmailConfig) Timeout() time.Duration {
	if c.TimeoutSeconds == 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// CRMConfig holds the CRM tag-search client's connection details.
type CRMConfig struct {
	BaseURL        string `yaml:"base_url"`
	SessionToken   string `yaml:"session_token"`
	LoginEmail     string `yaml:"login_email"`
	LoginPassword  string `yaml:"login_password"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

func (c CRMConfig) Timeout() time.Duration {
	if c.TimeoutSeconds == 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RedisConfig is optional: when Addr is empty, the kill-switch cache and
// daily rate counter fall back to an in-process implementation.
type RedisConfig struct {
	Addr string `yaml:"addr"`
}

// SlackConfig holds the incoming-webhook URL used for ops notifications.
type SlackConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

// ArchiveConfig holds the optional S3 dead-letter archive destination.
type ArchiveConfig struct {
	Enabled   bool   `yaml:"enabled"`
	S3Bucket  string `yaml:"s3_bucket"`
	AWSRegion string `yaml:"aws_region"`
}

// ReportSinkConfig holds the optional Postgres mirror for aggregated
// experiment rollups.
type ReportSinkConfig struct {
	Enabled     bool   `yaml:"enabled"`
	DatabaseURL string `yaml:"database_url"`
}

// AutoStopConfig mirrors spec.md §3's AutoStopConfig.
type AutoStopConfig struct {
	WindowDays       int     `yaml:"window_days"`
	MinSentTotal     int     `yaml:"min_sent_total"`
	ReplyRateMin     float64 `yaml:"reply_rate_min"`
	BlockedRateMax   float64 `yaml:"blocked_rate_max"`
	ConsecutiveDays  int     `yaml:"consecutive_days"`
	TickIntervalSecs int     `yaml:"tick_interval_seconds"`
}

// Load reads and parses a YAML configuration file, applying defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.DataDir == "" {
		cfg.Server.DataDir = "./data"
	}
	if cfg.Server.Hostname == "" {
		if h, err := os.Hostname(); err == nil {
			cfg.Server.Hostname = h
		} else {
			cfg.Server.Hostname = "outreach-control"
		}
	}
	if cfg.Gate.MaxPerDay == 0 {
		cfg.Gate.MaxPerDay = 500
	}
	if cfg.Gate.KillSwitchTTL == 0 {
		cfg.Gate.KillSwitchTTL = 5
	}
	if cfg.Queue.StaleMinutes == 0 {
		cfg.Queue.StaleMinutes = 30
	}
	if cfg.Queue.MaxAttempts == 0 {
		cfg.Queue.MaxAttempts = 8
	}
	if cfg.Queue.ReapAction == "" {
		cfg.Queue.ReapAction = "requeue"
	}
	if cfg.Queue.PollInterval == 0 {
		cfg.Queue.PollInterval = 5
	}
	if cfg.AutoStop.WindowDays == 0 {
		cfg.AutoStop.WindowDays = 7
	}
	if cfg.AutoStop.ConsecutiveDays == 0 {
		cfg.AutoStop.ConsecutiveDays = 2
	}
	if cfg.AutoStop.TickIntervalSecs == 0 {
		cfg.AutoStop.TickIntervalSecs = 300
	}
}

// LoadFromEnv loads configuration from path and then layers environment
// variable overrides on top, per spec.md §6's Environment Variables list.
// A .env file is loaded first (if present) so local development can keep
// secrets out of the YAML file, matching the teacher's LoadFromEnv.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("ENABLE_AUTO_SEND"); v != "" {
		cfg.Gate.EnableAutoSend = parseBool(v)
	}
	if v := os.Getenv("SEND_ALLOWLIST_DOMAINS"); v != "" {
		cfg.Gate.AllowlistDomains = splitCSV(v)
	}
	if v := os.Getenv("SEND_ALLOWLIST_EMAILS"); v != "" {
		cfg.Gate.AllowlistEmails = splitCSV(v)
	}
	if v := os.Getenv("SEND_MAX_PER_DAY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Gate.MaxPerDay = n
		}
	}
	if v := os.Getenv("CRM_BASE_URL"); v != "" {
		cfg.CRM.BaseURL = v
	}
	if v := os.Getenv("CRM_SESSION_TOKEN"); v != "" {
		cfg.CRM.SessionToken = v
	}
	if v := os.Getenv("CRM_LOGIN_EMAIL"); v != "" {
		cfg.CRM.LoginEmail = v
	}
	if v := os.Getenv("CRM_LOGIN_PASSWORD"); v != "" {
		cfg.CRM.LoginPassword = v
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Slack.WebhookURL = v
	}
	if v := os.Getenv("METRICS_STORE_PATH"); v != "" {
		cfg.Server.DataDir = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}

	return cfg, nil
}

// IsKillSwitchEnvSet reports whether the hard environment-variable kill
// switch (spec.md §4.4) is active. It is read directly from the environment
// rather than cached, since it can only be changed by restarting the
// process — unlike the runtime kill switch file.
func IsKillSwitchEnvSet() bool {
	return parseBool(os.Getenv("KILL_SWITCH"))
}

func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
