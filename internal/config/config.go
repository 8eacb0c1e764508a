package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Gmail        GmailConfig
	LLM          LLMConfig
	Ticketing    TicketingConfig
	Notification NotificationConfig
	Scheduler    SchedulerConfig
	Timeouts     TimeoutConfig
	SettingsFile string
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values. An empty DSN keeps the cycle
// audit trail in memory.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values. An empty Addr disables the
// seen-message set.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level   string
	Format  string
	Service string
}

// AuthConfig defines operator authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	OperatorKeyHash       string
	BcryptCost            int
}

// Enabled reports whether operator routes require a token.
func (a AuthConfig) Enabled() bool {
	return a.OperatorKeyHash != ""
}

// GmailConfig points at the OAuth files of the support mailbox.
type GmailConfig struct {
	CredentialsFile string
	TokenFile       string
	User            string
	Query           string
	MaxResults      int64
	SeenTTL         time.Duration
}

// LLMConfig configures the OpenAI-compatible classification endpoint.
type LLMConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
}

// TicketingConfig selects and configures the helpdesk backend.
type TicketingConfig struct {
	Backend    string
	ServiceNow ServiceNowConfig
	Jira       JiraConfig
}

// ServiceNowConfig holds table API credentials.
type ServiceNowConfig struct {
	InstanceURL string
	Username    string
	Password    string
}

// JiraConfig holds Jira credentials and the target project.
type JiraConfig struct {
	URL        string
	Username   string
	Token      string
	ProjectKey string
	IssueType  string
}

// NotificationConfig selects how requester emails are delivered.
type NotificationConfig struct {
	Backend      string
	EmailFrom    string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
}

// SchedulerConfig drives the periodic triggers and retention.
type SchedulerConfig struct {
	Enabled           bool
	FetchInterval     time.Duration
	ReconcileInterval time.Duration
	TickInterval      time.Duration
	Retention         time.Duration
	InitialLookback   time.Duration
	Concurrency       int
}

// TimeoutConfig bounds every external call.
type TimeoutConfig struct {
	Fetch     time.Duration
	Classify  time.Duration
	Ticketing time.Duration
	Create    time.Duration
	Notify    time.Duration
}

const (
	TicketingServiceNow = "servicenow"
	TicketingJira       = "jira"

	NotifySMTP  = "smtp"
	NotifyGmail = "gmail"
	NotifyLog   = "log"
)

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "helpdesk-intake"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 300),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 5)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 1)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level:   getEnv("LOG_LEVEL", "info"),
			Format:  getEnv("LOG_FORMAT", "json"),
			Service: getEnv("APP_NAME", "helpdesk-intake"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			OperatorKeyHash:       os.Getenv("AUTH_OPERATOR_KEY_HASH"),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		Gmail: GmailConfig{
			CredentialsFile: getEnv("GMAIL_CREDENTIALS_FILE", "credentials.json"),
			TokenFile:       getEnv("GMAIL_TOKEN_FILE", "token.json"),
			User:            getEnv("GMAIL_USER", "me"),
			Query:           getEnv("GMAIL_QUERY", "in:inbox is:unread"),
			MaxResults:      int64(getEnvAsInt("GMAIL_MAX_RESULTS", 50)),
			SeenTTL:         getEnvAsDuration("GMAIL_SEEN_TTL", 30*24*time.Hour),
		},
		LLM: LLMConfig{
			APIKey:      os.Getenv("LLM_API_KEY"),
			BaseURL:     os.Getenv("LLM_BASE_URL"),
			Model:       getEnv("LLM_MODEL", "gpt-4o-mini"),
			Temperature: getEnvAsFloat("LLM_TEMPERATURE", 0.1),
			MaxTokens:   getEnvAsInt("LLM_MAX_TOKENS", 1000),
		},
		Ticketing: TicketingConfig{
			Backend: strings.ToLower(getEnv("TICKETING_BACKEND", TicketingServiceNow)),
			ServiceNow: ServiceNowConfig{
				InstanceURL: os.Getenv("SERVICENOW_INSTANCE_URL"),
				Username:    os.Getenv("SERVICENOW_USERNAME"),
				Password:    os.Getenv("SERVICENOW_PASSWORD"),
			},
			Jira: JiraConfig{
				URL:        os.Getenv("JIRA_URL"),
				Username:   os.Getenv("JIRA_USERNAME"),
				Token:      os.Getenv("JIRA_TOKEN"),
				ProjectKey: getEnv("JIRA_PROJECT_KEY", "HELP"),
				IssueType:  getEnv("JIRA_ISSUE_TYPE", "Task"),
			},
		},
		Notification: NotificationConfig{
			Backend:      strings.ToLower(getEnv("NOTIFY_BACKEND", NotifySMTP)),
			EmailFrom:    getEnv("NOTIFY_EMAIL_FROM", "support@example.com"),
			SMTPHost:     getEnv("SMTP_HOST", "smtp.gmail.com"),
			SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
			SMTPUsername: os.Getenv("SMTP_USERNAME"),
			SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		},
		Scheduler: SchedulerConfig{
			Enabled:           getEnvAsBool("SCHEDULER_ENABLED", true),
			FetchInterval:     getEnvAsDuration("SCHEDULER_FETCH_INTERVAL", 10*time.Minute),
			ReconcileInterval: getEnvAsDuration("SCHEDULER_RECONCILE_INTERVAL", 10*time.Minute),
			TickInterval:      getEnvAsDuration("SCHEDULER_TICK_INTERVAL", 15*time.Second),
			Retention:         getEnvAsDuration("TRACKING_RETENTION", 30*24*time.Hour),
			InitialLookback:   getEnvAsDuration("SCHEDULER_INITIAL_LOOKBACK", 10*time.Minute),
			Concurrency:       getEnvAsInt("PIPELINE_CONCURRENCY", 4),
		},
		Timeouts: TimeoutConfig{
			Fetch:     getEnvAsDuration("TIMEOUT_FETCH", 60*time.Second),
			Classify:  getEnvAsDuration("TIMEOUT_CLASSIFY", 30*time.Second),
			Ticketing: getEnvAsDuration("TIMEOUT_TICKETING", 30*time.Second),
			Create:    getEnvAsDuration("TIMEOUT_CREATE_TICKET", 45*time.Second),
			Notify:    getEnvAsDuration("TIMEOUT_NOTIFY", 30*time.Second),
		},
		SettingsFile: getEnv("SETTINGS_FILE", "config/settings.yaml"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings that cannot produce a working service.
func (c *Config) Validate() error {
	switch c.Ticketing.Backend {
	case TicketingServiceNow, TicketingJira:
	default:
		return fmt.Errorf("invalid TICKETING_BACKEND %q", c.Ticketing.Backend)
	}
	switch c.Notification.Backend {
	case NotifySMTP, NotifyGmail, NotifyLog:
	default:
		return fmt.Errorf("invalid NOTIFY_BACKEND %q", c.Notification.Backend)
	}
	if c.Scheduler.FetchInterval <= 0 || c.Scheduler.ReconcileInterval <= 0 {
		return fmt.Errorf("scheduler intervals must be positive")
	}
	if c.Scheduler.Retention <= 0 {
		return fmt.Errorf("TRACKING_RETENTION must be positive")
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

// getEnvAsDuration accepts Go durations ("90s") or bare seconds ("90").
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
