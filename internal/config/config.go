// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	Browser    BrowserConfig    `mapstructure:"browser" yaml:"browser"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler" yaml:"scheduler"`
	Capability CapabilityConfig `mapstructure:"capability" yaml:"capability"`
	Detector   DetectorConfig   `mapstructure:"detector" yaml:"detector"`
	Mapper     MapperConfig     `mapstructure:"mapper" yaml:"mapper"`
	Verifier   VerifierConfig   `mapstructure:"verifier" yaml:"verifier"`
	Stores     StoresConfig     `mapstructure:"stores" yaml:"stores"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry" yaml:"telemetry"`
	// Fill gets its marching orders from CLI flags, not the config file.
	Fill FillConfig `mapstructure:"-" yaml:"-"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the headless browser instances.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors   bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	DisableCache      bool          `mapstructure:"disable_cache" yaml:"disable_cache"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	PostLoadWait      time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
	Args              []string      `mapstructure:"args" yaml:"args"`
}

// SchedulerConfig configures the execution scheduler and its retry policy.
type SchedulerConfig struct {
	MaxConcurrency   int           `mapstructure:"max_concurrency" yaml:"max_concurrency"`
	DefaultTimeout   time.Duration `mapstructure:"default_timeout" yaml:"default_timeout"`
	RetryAttempts    int           `mapstructure:"retry_attempts" yaml:"retry_attempts"`
	RetryBackoff     time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff"`
	RateLimitBackoff time.Duration `mapstructure:"rate_limit_backoff" yaml:"rate_limit_backoff"`
	DelayBetweenJobs time.Duration `mapstructure:"delay_between_jobs" yaml:"delay_between_jobs"`
	// AcquireCeiling is the hard limit on waiting for a pool slot before the
	// session is considered systemically failed.
	AcquireCeiling  time.Duration `mapstructure:"acquire_ceiling" yaml:"acquire_ceiling"`
	CaptureFailures bool          `mapstructure:"capture_failures" yaml:"capture_failures"`
	ScreenshotDir   string        `mapstructure:"screenshot_dir" yaml:"screenshot_dir"`
}

// CapabilityConfig tunes how host capability translates into concurrency.
type CapabilityConfig struct {
	// MemoryPerInstanceMB is the working-set estimate for one browser tab.
	MemoryPerInstanceMB uint64 `mapstructure:"memory_per_instance_mb" yaml:"memory_per_instance_mb"`
	MaxConcurrency      int    `mapstructure:"max_concurrency" yaml:"max_concurrency"`
	FallbackConcurrency int    `mapstructure:"fallback_concurrency" yaml:"fallback_concurrency"`
}

// DetectorConfig exposes the confidence weights and classification keyword
// lists as tunable settings rather than hard-coded constants.
type DetectorConfig struct {
	MinFields          int `mapstructure:"min_fields" yaml:"min_fields"`
	BaseScorePerField  int `mapstructure:"base_score_per_field" yaml:"base_score_per_field"`
	BaseScoreCap       int `mapstructure:"base_score_cap" yaml:"base_score_cap"`
	LabelledFieldBonus int `mapstructure:"labelled_field_bonus" yaml:"labelled_field_bonus"`
	LabelledBonusCap   int `mapstructure:"labelled_bonus_cap" yaml:"labelled_bonus_cap"`
	ClassifiedBonus    int `mapstructure:"classified_bonus" yaml:"classified_bonus"`
	SubmitBonus        int `mapstructure:"submit_bonus" yaml:"submit_bonus"`
}

// MapperConfig tunes field-to-profile matching. ExtraPatterns entries are
// appended to the built-in category dictionary; keys are category names.
type MapperConfig struct {
	MinConfidence int                 `mapstructure:"min_confidence" yaml:"min_confidence"`
	ExtraPatterns map[string][]string `mapstructure:"extra_patterns" yaml:"extra_patterns"`
	DateLayout    string              `mapstructure:"date_layout" yaml:"date_layout"`
}

// VerifierConfig tunes the submission verification heuristics.
type VerifierConfig struct {
	SuccessKeywords []string `mapstructure:"success_keywords" yaml:"success_keywords"`
	ErrorKeywords   []string `mapstructure:"error_keywords" yaml:"error_keywords"`
	TitleKeywords   []string `mapstructure:"title_keywords" yaml:"title_keywords"`
}

// StoresConfig selects and configures the profile and template stores.
type StoresConfig struct {
	ProfileDir      string `mapstructure:"profile_dir" yaml:"profile_dir"`
	TemplateBackend string `mapstructure:"template_backend" yaml:"template_backend"` // "file" or "postgres"
	TemplateDir     string `mapstructure:"template_dir" yaml:"template_dir"`
	DatabaseURL     string `mapstructure:"database_url" yaml:"-"`
}

// TelemetryConfig configures the event sink.
type TelemetryConfig struct {
	Enabled    bool `mapstructure:"enabled" yaml:"enabled"`
	BufferSize int  `mapstructure:"buffer_size" yaml:"buffer_size"`
}

// FillConfig holds settings populated from CLI flags for a specific run.
type FillConfig struct {
	ProfileName   string
	URLs          []string
	SaveTemplates bool
	OutputJSON    string
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "formpilot")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.disable_cache", true)
	v.SetDefault("browser.navigation_timeout", "45s")
	v.SetDefault("browser.post_load_wait", "1s")

	// -- Scheduler --
	v.SetDefault("scheduler.max_concurrency", 0) // 0 = use capability scan
	v.SetDefault("scheduler.default_timeout", "90s")
	v.SetDefault("scheduler.retry_attempts", 2)
	v.SetDefault("scheduler.retry_backoff", "2s")
	v.SetDefault("scheduler.rate_limit_backoff", "15s")
	v.SetDefault("scheduler.delay_between_jobs", "0s")
	v.SetDefault("scheduler.acquire_ceiling", "5m")
	v.SetDefault("scheduler.capture_failures", false)
	v.SetDefault("scheduler.screenshot_dir", "screenshots")

	// -- Capability --
	v.SetDefault("capability.memory_per_instance_mb", 512)
	v.SetDefault("capability.max_concurrency", 16)
	v.SetDefault("capability.fallback_concurrency", 2)

	// -- Detector --
	v.SetDefault("detector.min_fields", 1)
	v.SetDefault("detector.base_score_per_field", 8)
	v.SetDefault("detector.base_score_cap", 40)
	v.SetDefault("detector.labelled_field_bonus", 4)
	v.SetDefault("detector.labelled_bonus_cap", 25)
	v.SetDefault("detector.classified_bonus", 20)
	v.SetDefault("detector.submit_bonus", 15)

	// -- Mapper --
	v.SetDefault("mapper.min_confidence", 40)
	v.SetDefault("mapper.date_layout", "2006-01-02")

	// -- Verifier --
	v.SetDefault("verifier.success_keywords", []string{
		"thank you", "thanks for", "success", "successfully",
		"confirmation", "confirmed", "welcome", "registered",
		"order received", "we received your",
	})
	v.SetDefault("verifier.error_keywords", []string{
		"error", "invalid", "failed", "incorrect", "required field",
		"please try again", "could not", "unable to", "problem",
	})
	v.SetDefault("verifier.title_keywords", []string{
		"thank", "success", "confirmation", "welcome",
	})

	// -- Stores --
	v.SetDefault("stores.profile_dir", "profiles")
	v.SetDefault("stores.template_backend", "file")
	v.SetDefault("stores.template_dir", "templates")

	// -- Telemetry --
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.buffer_size", 256)
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Defaults always unmarshal; anything else is a programming error.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper builds and validates a configuration from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Scheduler.MaxConcurrency < 0 {
		return fmt.Errorf("scheduler.max_concurrency must not be negative")
	}
	if c.Scheduler.RetryAttempts < 0 {
		return fmt.Errorf("scheduler.retry_attempts must not be negative")
	}
	if c.Scheduler.DefaultTimeout <= 0 {
		return fmt.Errorf("scheduler.default_timeout must be a positive duration")
	}
	if c.Capability.MaxConcurrency <= 0 {
		return fmt.Errorf("capability.max_concurrency must be a positive integer")
	}
	if c.Capability.FallbackConcurrency <= 0 {
		return fmt.Errorf("capability.fallback_concurrency must be a positive integer")
	}
	switch c.Stores.TemplateBackend {
	case "file", "postgres":
	default:
		return fmt.Errorf("stores.template_backend must be 'file' or 'postgres', got %q", c.Stores.TemplateBackend)
	}
	if c.Stores.TemplateBackend == "postgres" && c.Stores.DatabaseURL == "" {
		return fmt.Errorf("stores.database_url is required for the postgres template backend (FORMPILOT_STORES_DATABASE_URL)")
	}
	return nil
}

// SessionDefaults derives the per-session defaults embedded in new sessions.
func (c *Config) SessionDefaults() SchedulerConfig {
	return c.Scheduler
}
