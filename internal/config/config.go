package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"nailbook/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DriverSQLite   = "sqlite"
	DriverSupabase = "supabase"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Supabase   SupabaseConfig   `yaml:"supabase"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Payments   PaymentsConfig   `yaml:"payments"`
	Schedule   ScheduleConfig   `yaml:"schedule"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	SendGrid   SendGridConfig   `yaml:"sendgrid"`
	Twilio     TwilioConfig     `yaml:"twilio"`
	Google     GoogleConfig     `yaml:"google"`
	Exports    ExportConfig     `yaml:"exports"`
	Worker     WorkerConfig     `yaml:"worker"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite, supabase
	Path   string `yaml:"path"`
}

type SupabaseConfig struct {
	URL        string `yaml:"url"`
	ServiceKey string `yaml:"service_key"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"` // cron expression
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type APIConfig struct {
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	Session   APISessionConfig   `yaml:"session"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
	// AllowedOrigins for the storefront; empty means any.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type APIHTTPConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type APIAuthConfig struct {
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APISessionConfig struct {
	Secret            string        `yaml:"secret"`
	TTL               time.Duration `yaml:"ttl"`
	AdminPasswordHash string        `yaml:"admin_password_hash"` // bcrypt
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type PaymentsConfig struct {
	BackendURL    string        `yaml:"backend_url"`
	AnonKey       string        `yaml:"anon_key"`
	PublicBaseURL string        `yaml:"public_base_url"`
	WebhookSecret string        `yaml:"webhook_secret"`
	StatusSource  string        `yaml:"status_source"` // backend, ledger
	PollInterval  time.Duration `yaml:"poll_interval"`
	PollBudget    time.Duration `yaml:"poll_budget"`
	HoldTTL       time.Duration `yaml:"hold_ttl"`
	Timeout       time.Duration `yaml:"timeout"`
}

type ScheduleConfig struct {
	Timezone       string   `yaml:"timezone"`
	DefaultSlots   []string `yaml:"default_slots"`
	ProjectionDays int      `yaml:"projection_days"`
	WindowDays     int      `yaml:"window_days"`
	ScanLimitDays  int      `yaml:"scan_limit_days"`
	ClosedWeekday  string   `yaml:"closed_weekday"`
	AdminHourStart int      `yaml:"admin_hour_start"`
	AdminHourEnd   int      `yaml:"admin_hour_end"`

	// OrphanAfter is the age after which a pending booking is reported.
	OrphanAfter    time.Duration `yaml:"orphan_after"`
	OrphanSchedule string        `yaml:"orphan_schedule"`
}

type TelegramConfig struct {
	Enabled      bool    `yaml:"enabled"`
	BotToken     string  `yaml:"bot_token"`
	AdminChatIDs []int64 `yaml:"admin_chat_ids"`
	Debug        bool    `yaml:"debug"`
}

type SendGridConfig struct {
	Enabled   bool   `yaml:"enabled"`
	APIKey    string `yaml:"api_key"`
	FromEmail string `yaml:"from_email"`
	FromName  string `yaml:"from_name"`
}

type TwilioConfig struct {
	Enabled    bool   `yaml:"enabled"`
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`
	FromNumber string `yaml:"from_number"`
}

type GoogleConfig struct {
	Enabled               bool   `yaml:"enabled"`
	GoogleCredentialsFile string `yaml:"credentials_file"`
	AgendaSpreadsheetID   string `yaml:"agenda_spreadsheet_id"`
	AgendaSheetName       string `yaml:"agenda_sheet_name"`
	ResyncSchedule        string `yaml:"resync_schedule"` // полная перезапись листа
}

type ExportConfig struct {
	Path string `yaml:"path"`
	// Schedule is a cron expression for the periodic agenda file; empty disables it.
	Schedule string `yaml:"schedule"`
}

type WorkerConfig struct {
	QueueSize     int           `yaml:"queue_size"`
	MaxRetries    int           `yaml:"max_retries"`
	BaseDelay     time.Duration `yaml:"base_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	UseRedisQueue bool          `yaml:"use_redis_queue"`
}

func Load(configPath string) (*Config, error) {
	// Загружаем .env файл если существует
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return errors.New("database path is required")
		}
	case DriverSupabase:
		if c.Supabase.URL == "" || c.Supabase.ServiceKey == "" {
			return errors.New("supabase url and service key are required")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	if c.Payments.BackendURL == "" {
		return errors.New("payments backend url is required")
	}
	if c.Payments.PublicBaseURL == "" {
		return errors.New("payments public base url is required")
	}
	if c.Payments.StatusSource != "backend" && c.Payments.StatusSource != "ledger" {
		return fmt.Errorf("unknown payment status source %q", c.Payments.StatusSource)
	}

	if c.API.Session.Secret == "" {
		return errors.New("api session secret is required")
	}

	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.ClosedWeekday(); err != nil {
		return err
	}

	if err := ValidateSlots(c.Schedule.DefaultSlots); err != nil {
		return err
	}
	if c.Schedule.AdminHourStart >= c.Schedule.AdminHourEnd || c.Schedule.AdminHourEnd > 24 {
		return fmt.Errorf("invalid admin hours %d-%d", c.Schedule.AdminHourStart, c.Schedule.AdminHourEnd)
	}

	if c.Telegram.Enabled && c.Telegram.BotToken == "" {
		return errors.New("telegram bot token is required")
	}
	if c.SendGrid.Enabled && (c.SendGrid.APIKey == "" || c.SendGrid.FromEmail == "") {
		return errors.New("sendgrid api key and from email are required")
	}
	if c.Twilio.Enabled && (c.Twilio.AccountSID == "" || c.Twilio.AuthToken == "" || c.Twilio.FromNumber == "") {
		return errors.New("twilio account sid, auth token and from number are required")
	}
	if c.Google.Enabled && (c.Google.GoogleCredentialsFile == "" || c.Google.AgendaSpreadsheetID == "") {
		return errors.New("google credentials file and agenda spreadsheet id are required")
	}

	return nil
}

// ValidateSlots checks that every label is HH:MM and unique.
func ValidateSlots(slots []string) error {
	seen := make(map[string]bool, len(slots))
	for _, s := range slots {
		if !models.ValidTimeLabel(s) {
			return fmt.Errorf("invalid slot label %q", s)
		}
		if seen[s] {
			return fmt.Errorf("duplicate slot label found: %s", s)
		}
		seen[s] = true
	}
	return nil
}

// Location returns the studio's local time zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule timezone %q: %w", c.Schedule.Timezone, err)
	}
	return loc, nil
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func (c *Config) ClosedWeekday() (time.Weekday, error) {
	wd, ok := weekdays[c.Schedule.ClosedWeekday]
	if !ok {
		return 0, fmt.Errorf("invalid closed weekday %q", c.Schedule.ClosedWeekday)
	}
	return wd, nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "nailbook"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverSQLite
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.API.HTTP.ReadTimeout == 0 {
		c.API.HTTP.ReadTimeout = 15 * time.Second
	}
	if c.API.HTTP.WriteTimeout == 0 {
		c.API.HTTP.WriteTimeout = 45 * time.Second
	}
	if c.API.HTTP.ShutdownTimeout == 0 {
		c.API.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Session.TTL == 0 {
		c.API.Session.TTL = 12 * time.Hour
	}
	if c.API.RateLimit.RPS == 0 {
		c.API.RateLimit.RPS = models.RateLimitRPS
	}
	if c.API.RateLimit.Burst == 0 {
		c.API.RateLimit.Burst = models.RateLimitBurst
	}

	// Payments defaults
	if c.Payments.StatusSource == "" {
		c.Payments.StatusSource = "backend"
	}
	if c.Payments.PollInterval == 0 {
		c.Payments.PollInterval = models.DefaultPollIntervalSeconds * time.Second
	}
	if c.Payments.PollBudget == 0 {
		c.Payments.PollBudget = models.DefaultPollBudgetSeconds * time.Second
	}
	if c.Payments.HoldTTL == 0 {
		c.Payments.HoldTTL = models.DefaultSlotHoldTTL * time.Second
	}
	if c.Payments.Timeout == 0 {
		c.Payments.Timeout = 10 * time.Second
	}

	// Schedule defaults
	if c.Schedule.Timezone == "" {
		c.Schedule.Timezone = "America/Sao_Paulo"
	}
	if len(c.Schedule.DefaultSlots) == 0 {
		c.Schedule.DefaultSlots = append([]string(nil), models.DefaultSlots...)
	}
	if c.Schedule.ProjectionDays == 0 {
		c.Schedule.ProjectionDays = models.DefaultProjectionDays
	}
	if c.Schedule.WindowDays == 0 {
		c.Schedule.WindowDays = models.DefaultWindowDays
	}
	if c.Schedule.ScanLimitDays == 0 {
		c.Schedule.ScanLimitDays = models.DefaultScanLimitDays
	}
	if c.Schedule.ClosedWeekday == "" {
		c.Schedule.ClosedWeekday = "sunday"
	}
	if c.Schedule.AdminHourStart == 0 && c.Schedule.AdminHourEnd == 0 {
		c.Schedule.AdminHourStart = 9
		c.Schedule.AdminHourEnd = 22
	}
	if c.Schedule.OrphanAfter == 0 {
		c.Schedule.OrphanAfter = time.Hour
	}
	if c.Schedule.OrphanSchedule == "" {
		c.Schedule.OrphanSchedule = "*/15 * * * *"
	}

	if c.Backup.Schedule == "" {
		c.Backup.Schedule = "0 3 * * *"
	}
	if c.Backup.RetentionDays == 0 {
		c.Backup.RetentionDays = 7
	}
	if c.Google.AgendaSheetName == "" {
		c.Google.AgendaSheetName = "Agenda"
	}
	if c.Google.ResyncSchedule == "" {
		c.Google.ResyncSchedule = "0 4 * * *"
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}

	// Worker defaults
	if c.Worker.QueueSize == 0 {
		c.Worker.QueueSize = models.WorkerQueueSize
	}
	if c.Worker.MaxRetries == 0 {
		c.Worker.MaxRetries = 5
	}
	if c.Worker.BaseDelay == 0 {
		c.Worker.BaseDelay = 2 * time.Second
	}
	if c.Worker.MaxDelay == 0 {
		c.Worker.MaxDelay = time.Minute
	}
}
