package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the assistant.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Direct    DirectConfig    `mapstructure:"direct"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Policy    PolicyConfig    `mapstructure:"policy"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Queues    QueueConfig     `mapstructure:"queues"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings.
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
	JournalDir     string        `mapstructure:"journal_dir"`
}

// ServerConfig contains admin HTTP server settings.
type ServerConfig struct {
	Address   string `mapstructure:"address"`
	OpsToken  string `mapstructure:"ops_token"`
	EnableOps bool   `mapstructure:"enable_ops"`
}

// StorageConfig groups the durable backends.
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig describes the relational store connection.
type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN assembles a postgres connection string, preferring an explicit URL.
func (p PostgresConfig) DSN() (string, error) {
	if p.URL != "" {
		return p.URL, nil
	}
	if p.Host == "" || p.DBName == "" {
		return "", fmt.Errorf("postgres not configured (storage.postgres.host/dbname or url)")
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl), nil
}

// RedisConfig describes the job-queue backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LLMConfig contains the LLM collaborator settings.
type LLMConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

func (l LLMConfig) Validate() error {
	if strings.TrimSpace(l.APIKey) == "" {
		return fmt.Errorf("llm.api_key is required")
	}
	if strings.TrimSpace(l.Model) == "" {
		return fmt.Errorf("llm.model is required")
	}
	return nil
}

// DirectConfig contains ad-platform API credentials.
type DirectConfig struct {
	Token    string        `mapstructure:"token"`
	ClientID string        `mapstructure:"client_id"`
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Sandbox  bool          `mapstructure:"sandbox"`
}

func (d DirectConfig) Validate() error {
	if strings.TrimSpace(d.Token) == "" {
		return fmt.Errorf("direct.token is required")
	}
	return nil
}

// TelegramConfig contains chat transport settings.
type TelegramConfig struct {
	BotToken string        `mapstructure:"bot_token"`
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// PolicyConfig holds the tunable behaviour constants of the core.
type PolicyConfig struct {
	// ActionTTL bounds how long a pending action stays approvable.
	ActionTTL time.Duration `mapstructure:"action_ttl"`
	// ClarifyThreshold is the classification confidence below which an
	// unresolved reference falls back to a campaign menu.
	ClarifyThreshold float64 `mapstructure:"clarify_threshold"`
	// MaxFallbackCampaigns caps the size of that menu.
	MaxFallbackCampaigns int `mapstructure:"max_fallback_campaigns"`
	// MinSummaryMessages is the minimum conversation length worth a
	// summarization call.
	MinSummaryMessages int `mapstructure:"min_summary_messages"`
	// Search-query enrichment filters for report prompts.
	MinEnrichCost    float64 `mapstructure:"min_enrich_cost"`
	MinEnrichClicks  int     `mapstructure:"min_enrich_clicks"`
	MaxEnrichQueries int     `mapstructure:"max_enrich_queries"`
	// ConversationTail is how many trailing messages feed the LLM context.
	ConversationTail int `mapstructure:"conversation_tail"`
}

// Normalize applies defaults for unset policy values.
func (p PolicyConfig) Normalize() PolicyConfig {
	if p.ActionTTL <= 0 {
		p.ActionTTL = 24 * time.Hour
	}
	if p.ClarifyThreshold <= 0 {
		p.ClarifyThreshold = 0.5
	}
	if p.MaxFallbackCampaigns <= 0 {
		p.MaxFallbackCampaigns = 5
	}
	if p.MinSummaryMessages <= 0 {
		p.MinSummaryMessages = 2
	}
	if p.MinEnrichClicks <= 0 {
		p.MinEnrichClicks = 3
	}
	if p.MinEnrichCost <= 0 {
		p.MinEnrichCost = 100
	}
	if p.MaxEnrichQueries <= 0 {
		p.MaxEnrichQueries = 20
	}
	if p.ConversationTail <= 0 {
		p.ConversationTail = 10
	}
	return p
}

// ScheduleConfig holds cron expressions for the in-process trigger.
type ScheduleConfig struct {
	DailyReport     string `mapstructure:"daily_report"`
	WeeklyReport    string `mapstructure:"weekly_report"`
	EveningAnalysis string `mapstructure:"evening_analysis"`
	RecentSync      string `mapstructure:"recent_sync"`
	ChatID          int64  `mapstructure:"chat_id"`
}

// QueueConfig names the job streams and sizes the worker pools.
type QueueConfig struct {
	ReportStream   string `mapstructure:"report_stream"`
	MessageStream  string `mapstructure:"message_stream"`
	SystemStream   string `mapstructure:"system_stream"`
	Group          string `mapstructure:"group"`
	ReportWorkers  int    `mapstructure:"report_workers"`
	MessageWorkers int    `mapstructure:"message_workers"`
	SystemWorkers  int    `mapstructure:"system_workers"`
}

// Normalize applies defaults for unset queue values.
func (q QueueConfig) Normalize() QueueConfig {
	if q.ReportStream == "" {
		q.ReportStream = "jobs.reports"
	}
	if q.MessageStream == "" {
		q.MessageStream = "jobs.messages"
	}
	if q.SystemStream == "" {
		q.SystemStream = "jobs.system"
	}
	if q.Group == "" {
		q.Group = "adpilot"
	}
	if q.ReportWorkers <= 0 {
		q.ReportWorkers = 1
	}
	if q.MessageWorkers <= 0 {
		q.MessageWorkers = 2
	}
	if q.SystemWorkers <= 0 {
		q.SystemWorkers = 1
	}
	return q
}

// TelemetryConfig contains metrics settings.
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MetricsPort int    `mapstructure:"metrics_port"`
	LogFile     string `mapstructure:"log_file"`
}

func (t TelemetryConfig) Validate() error {
	if t.Enabled && t.MetricsPort <= 0 {
		return fmt.Errorf("telemetry.metrics_port must be > 0 when telemetry is enabled")
	}
	return nil
}

// LoadConfig reads configuration from file and environment.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetDefault("general.default_timeout", "2m")
	v.SetDefault("general.journal_dir", "journal")
	v.SetDefault("server.address", ":10010")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.model", "gpt-4o")
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.timeout", "90s")
	v.SetDefault("direct.base_url", "https://api.direct.yandex.com/json/v5")
	v.SetDefault("direct.timeout", "60s")
	v.SetDefault("telegram.base_url", "https://api.telegram.org")
	v.SetDefault("telegram.timeout", "30s")
	v.SetDefault("storage.redis.addr", "localhost:6379")
	v.SetDefault("schedule.daily_report", "0 9 * * *")
	v.SetDefault("schedule.weekly_report", "0 10 * * 1")
	v.SetDefault("schedule.evening_analysis", "0 20 * * *")
	v.SetDefault("schedule.recent_sync", "30 3 * * *")

	if path == "" {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		v.AddConfigPath(exeDir)
		v.AddConfigPath(filepath.Join(exeDir, ".."))
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("ADPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional when everything arrives via env.
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Policy = cfg.Policy.Normalize()
	cfg.Queues = cfg.Queues.Normalize()
	return &cfg, nil
}
