package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps every validation failure returned by Load.
var ErrInvalidConfig = errors.New("invalid configuration")

// Report predicate modes.
const (
	ModeRelative = "relative"
	ModeWindow   = "window"
)

const (
	defaultSpreadsheetURL = "https://docs.google.com/spreadsheets/d/12drOHsoXL_KSPQcD-AoLw4AyJO-bo-hMhGl5CDLtE7g/edit?usp=sharing"
	defaultPingURL        = "https://e-com-data.vercel.app/run-db-update"
)

// DefaultReportFields is the landing-page performance selection.
var DefaultReportFields = []string{
	"segments.date",
	"metrics.impressions",
	"metrics.clicks",
	"metrics.conversions",
	"metrics.cost_micros",
	"campaign.name",
	"expanded_landing_page_view.expanded_final_url",
}

// Config holds runtime configuration for the adsync jobs.
type Config struct {
	Environment string
	Addr        string
	LogLevel    string

	ReportMode          string
	ReportRelativeDays  int
	ReportLookbackDays  int
	ReportEndOffsetDays int
	ReportTimeZone      string
	ReportFields        []string
	ReportSource        string
	ReportInterval      time.Duration

	AdsBaseURL         string
	AdsAPIVersion      string
	AdsCustomerID      string
	AdsLoginCustomerID string
	AdsDeveloperToken  string
	AdsCredentialsFile string
	AdsTimeout         time.Duration

	SheetURL             string
	SheetName            string
	SheetCredentialsFile string

	PingURL      string
	PingTimeout  time.Duration
	PingInterval time.Duration

	DatabaseURL         string
	MigrationsDir       string
	DatabaseAutoMigrate bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// fileConfig mirrors the optional YAML file. Durations are Go duration strings.
type fileConfig struct {
	Environment string `yaml:"environment"`
	Addr        string `yaml:"addr"`
	LogLevel    string `yaml:"log_level"`
	Report      struct {
		Mode          string   `yaml:"mode"`
		RelativeDays  *int     `yaml:"relative_days"`
		LookbackDays  *int     `yaml:"lookback_days"`
		EndOffsetDays *int     `yaml:"end_offset_days"`
		TimeZone      string   `yaml:"time_zone"`
		Fields        []string `yaml:"fields"`
		Source        string   `yaml:"source"`
		Interval      string   `yaml:"interval"`
	} `yaml:"report"`
	Ads struct {
		BaseURL         string `yaml:"base_url"`
		APIVersion      string `yaml:"api_version"`
		CustomerID      string `yaml:"customer_id"`
		LoginCustomerID string `yaml:"login_customer_id"`
		DeveloperToken  string `yaml:"developer_token"`
		CredentialsFile string `yaml:"credentials_file"`
		Timeout         string `yaml:"timeout"`
	} `yaml:"ads"`
	Sheet struct {
		URL             string `yaml:"url"`
		Name            string `yaml:"name"`
		CredentialsFile string `yaml:"credentials_file"`
	} `yaml:"sheet"`
	Ping struct {
		URL      string `yaml:"url"`
		Timeout  string `yaml:"timeout"`
		Interval string `yaml:"interval"`
	} `yaml:"ping"`
	Database struct {
		URL           string `yaml:"url"`
		MigrationsDir string `yaml:"migrations_dir"`
		AutoMigrate   *bool  `yaml:"auto_migrate"`
	} `yaml:"database"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       *int   `yaml:"db"`
	} `yaml:"redis"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Environment:         "development",
		Addr:                ":4100",
		LogLevel:            "info",
		ReportMode:          ModeWindow,
		ReportRelativeDays:  30,
		ReportLookbackDays:  60,
		ReportEndOffsetDays: 1,
		ReportTimeZone:      "UTC",
		ReportFields:        append([]string(nil), DefaultReportFields...),
		ReportSource:        "expanded_landing_page_view",
		ReportInterval:      24 * time.Hour,
		AdsBaseURL:          "https://googleads.googleapis.com",
		AdsAPIVersion:       "v17",
		AdsTimeout:          time.Minute,
		SheetURL:            defaultSpreadsheetURL,
		PingURL:             defaultPingURL,
		PingTimeout:         30 * time.Second,
		PingInterval:        15 * time.Minute,
		MigrationsDir:       "db/migrations",
		DatabaseAutoMigrate: true,
	}
}

// Load resolves configuration in priority order: defaults, YAML file at path
// (skipped when path is empty), .env, process environment. The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&c.Environment, fc.Environment)
	setString(&c.Addr, fc.Addr)
	setString(&c.LogLevel, fc.LogLevel)

	setString(&c.ReportMode, fc.Report.Mode)
	if fc.Report.RelativeDays != nil {
		c.ReportRelativeDays = *fc.Report.RelativeDays
	}
	if fc.Report.LookbackDays != nil {
		c.ReportLookbackDays = *fc.Report.LookbackDays
	}
	if fc.Report.EndOffsetDays != nil {
		c.ReportEndOffsetDays = *fc.Report.EndOffsetDays
	}
	setString(&c.ReportTimeZone, fc.Report.TimeZone)
	if len(fc.Report.Fields) > 0 {
		c.ReportFields = fc.Report.Fields
	}
	setString(&c.ReportSource, fc.Report.Source)

	setString(&c.AdsBaseURL, fc.Ads.BaseURL)
	setString(&c.AdsAPIVersion, fc.Ads.APIVersion)
	setString(&c.AdsCustomerID, fc.Ads.CustomerID)
	setString(&c.AdsLoginCustomerID, fc.Ads.LoginCustomerID)
	setString(&c.AdsDeveloperToken, fc.Ads.DeveloperToken)
	setString(&c.AdsCredentialsFile, fc.Ads.CredentialsFile)

	setString(&c.SheetURL, fc.Sheet.URL)
	setString(&c.SheetName, fc.Sheet.Name)
	setString(&c.SheetCredentialsFile, fc.Sheet.CredentialsFile)

	setString(&c.PingURL, fc.Ping.URL)

	setString(&c.DatabaseURL, fc.Database.URL)
	setString(&c.MigrationsDir, fc.Database.MigrationsDir)
	if fc.Database.AutoMigrate != nil {
		c.DatabaseAutoMigrate = *fc.Database.AutoMigrate
	}

	setString(&c.RedisAddr, fc.Redis.Addr)
	setString(&c.RedisPassword, fc.Redis.Password)
	if fc.Redis.DB != nil {
		c.RedisDB = *fc.Redis.DB
	}

	durations := []struct {
		name   string
		raw    string
		target *time.Duration
	}{
		{"report.interval", fc.Report.Interval, &c.ReportInterval},
		{"ads.timeout", fc.Ads.Timeout, &c.AdsTimeout},
		{"ping.timeout", fc.Ping.Timeout, &c.PingTimeout},
		{"ping.interval", fc.Ping.Interval, &c.PingInterval},
	}
	for _, d := range durations {
		if strings.TrimSpace(d.raw) == "" {
			continue
		}
		parsed, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, d.name, err)
		}
		*d.target = parsed
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Environment = GetString("APP_ENV", c.Environment)
	c.Addr = GetString("ADSYNC_ADDR", c.Addr)
	c.LogLevel = GetString("LOG_LEVEL", c.LogLevel)

	c.ReportMode = GetString("REPORT_MODE", c.ReportMode)
	c.ReportRelativeDays = GetInt("REPORT_RELATIVE_DAYS", c.ReportRelativeDays)
	c.ReportLookbackDays = GetInt("REPORT_LOOKBACK_DAYS", c.ReportLookbackDays)
	c.ReportEndOffsetDays = GetInt("REPORT_END_OFFSET_DAYS", c.ReportEndOffsetDays)
	c.ReportTimeZone = GetString("REPORT_TIMEZONE", c.ReportTimeZone)
	c.ReportFields = GetList("REPORT_FIELDS", c.ReportFields)
	c.ReportSource = GetString("REPORT_SOURCE", c.ReportSource)
	c.ReportInterval = GetSeconds("REPORT_INTERVAL_SECONDS", c.ReportInterval)

	c.AdsBaseURL = GetString("ADS_API_BASE_URL", c.AdsBaseURL)
	c.AdsAPIVersion = GetString("ADS_API_VERSION", c.AdsAPIVersion)
	c.AdsCustomerID = GetString("ADS_CUSTOMER_ID", c.AdsCustomerID)
	c.AdsLoginCustomerID = GetString("ADS_LOGIN_CUSTOMER_ID", c.AdsLoginCustomerID)
	c.AdsDeveloperToken = GetString("ADS_DEVELOPER_TOKEN", c.AdsDeveloperToken)
	c.AdsCredentialsFile = GetString("ADS_CREDENTIALS_FILE", c.AdsCredentialsFile)
	c.AdsTimeout = GetSeconds("ADS_TIMEOUT_SECONDS", c.AdsTimeout)

	c.SheetURL = GetString("SHEET_URL", c.SheetURL)
	c.SheetName = GetString("SHEET_NAME", c.SheetName)
	c.SheetCredentialsFile = GetString("GOOGLE_APPLICATION_CREDENTIALS", c.SheetCredentialsFile)

	c.PingURL = GetString("PING_URL", c.PingURL)
	c.PingTimeout = GetSeconds("PING_TIMEOUT_SECONDS", c.PingTimeout)
	c.PingInterval = GetSeconds("PING_INTERVAL_SECONDS", c.PingInterval)

	c.DatabaseURL = GetString("DATABASE_URL", c.DatabaseURL)
	c.MigrationsDir = GetString("DB_MIGRATIONS_DIR", c.MigrationsDir)
	c.DatabaseAutoMigrate = GetBool("DB_AUTO_MIGRATE", c.DatabaseAutoMigrate)

	c.RedisAddr = GetString("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = GetString("REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = GetInt("REDIS_DB", c.RedisDB)
}

// Validate rejects configurations that would produce malformed queries or
// unusable jobs.
func (c Config) Validate() error {
	switch c.ReportMode {
	case ModeRelative:
		if c.ReportRelativeDays != 7 && c.ReportRelativeDays != 30 {
			return fmt.Errorf("%w: report relative days must be 7 or 30, got %d", ErrInvalidConfig, c.ReportRelativeDays)
		}
	case ModeWindow:
	default:
		return fmt.Errorf("%w: unknown report mode %q", ErrInvalidConfig, c.ReportMode)
	}
	if c.ReportLookbackDays <= 0 {
		return fmt.Errorf("%w: report lookback days must be positive, got %d", ErrInvalidConfig, c.ReportLookbackDays)
	}
	if c.ReportEndOffsetDays < 0 {
		return fmt.Errorf("%w: report end offset days must not be negative, got %d", ErrInvalidConfig, c.ReportEndOffsetDays)
	}
	if c.ReportLookbackDays < c.ReportEndOffsetDays {
		return fmt.Errorf("%w: report lookback days %d is shorter than end offset %d (window would be inverted)",
			ErrInvalidConfig, c.ReportLookbackDays, c.ReportEndOffsetDays)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("%w: report time zone %q: %v", ErrInvalidConfig, c.ReportTimeZone, err)
	}
	if len(c.ReportFields) == 0 {
		return fmt.Errorf("%w: report fields are required", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.ReportSource) == "" {
		return fmt.Errorf("%w: report source is required", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.SheetURL) == "" {
		return fmt.Errorf("%w: sheet url is required", ErrInvalidConfig)
	}
	if err := validateHTTPURL(c.PingURL); err != nil {
		return fmt.Errorf("%w: ping url: %v", ErrInvalidConfig, err)
	}
	if err := validateHTTPURL(c.AdsBaseURL); err != nil {
		return fmt.Errorf("%w: ads base url: %v", ErrInvalidConfig, err)
	}
	if c.ReportInterval <= 0 || c.PingInterval <= 0 {
		return fmt.Errorf("%w: job intervals must be positive", ErrInvalidConfig)
	}
	return nil
}

// Location resolves ReportTimeZone. An empty zone means UTC.
func (c Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.ReportTimeZone)
	if name == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}

func validateHTTPURL(raw string) error {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

func setString(target *string, value string) {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		*target = trimmed
	}
}
