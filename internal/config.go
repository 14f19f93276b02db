package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Payment       PaymentConfig       `mapstructure:"payment"`
	FSP           FSPConfig           `mapstructure:"fsp"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"required,min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"required,min=1"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"required,min=1m"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" validate:"required,min=1m"`
	Source          string        `mapstructure:"source"`
}

// PaymentConfig carries the disbursement engine defaults. Per-FSP overrides
// in fsp_configurations take precedence over MaxRetryAttempts/RetryDelay.
type PaymentConfig struct {
	MaxRetryAttempts   int           `mapstructure:"max_retry_attempts"`
	RetryDelay         time.Duration `mapstructure:"retry_delay"`
	WorkerPoolSize     int           `mapstructure:"worker_pool_size"`
	JobQueueSize       int           `mapstructure:"job_queue_size"`
	StuckAfter         time.Duration `mapstructure:"stuck_after"`
	ReconcileSchedule  string        `mapstructure:"reconcile_schedule"`
	DispatchSchedule   string        `mapstructure:"dispatch_schedule"`
}

// FSPConfig wires the registry: how often the health monitor probes, the key
// that unseals stored provider credentials, and the sandbox endpoints used
// by the seeder and local development.
type FSPConfig struct {
	HealthCheckSchedule string                   `mapstructure:"health_check_schedule"`
	CredentialsKey      string                   `mapstructure:"credentials_key"`
	Providers           map[string]ProviderEntry `mapstructure:"providers"`
}

type ProviderEntry struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	APISecret      string        `mapstructure:"api_secret"`
	WebhookSecret  string        `mapstructure:"webhook_secret"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
}

type ObservabilityConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path" validate:"required_if=Enabled true"`
}

type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	ServiceName  string  `mapstructure:"service_name" validate:"required_if=Enabled true"`
	SamplingRate float64 `mapstructure:"sampling_rate" validate:"min=0,max=1"`
	JaegerURL    string  `mapstructure:"jaeger_url" validate:"required_if=Enabled true,url"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

// LoadConfigFromEnv builds a Config from environment variables for container
// deployments where no config.yml is mounted.
func LoadConfigFromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              getEnvAsInt("HTTP_SERVER_PORT", 8080),
			BaseURL:           getEnv("HTTP_SERVER_BASE_URL", "http://localhost:8080"),
			AllowedOrigins:    getEnv("HTTP_SERVER_ALLOWED_ORIGINS", "*"),
			ReadHeaderTimeout: getEnvAsDuration("HTTP_SERVER_READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("HTTP_SERVER_READ_TIMEOUT", 15*time.Second),
			IdleTimeout:       getEnvAsDuration("HTTP_SERVER_IDLE_TIMEOUT", 60*time.Second),
			WriteTimeout:      getEnvAsDuration("HTTP_SERVER_WRITE_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			MaxOpenConns:    getEnvAsInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DATABASE_CONN_MAX_IDLE_TIME", 5*time.Minute),
			Source:          getEnv("DATABASE_SOURCE", ""),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("OBSERVABILITY_LOGGING_LEVEL", "info"),
				Format: getEnv("OBSERVABILITY_LOGGING_FORMAT", "json"),
			},
		},
		Payment: PaymentConfig{
			MaxRetryAttempts:  getEnvAsInt("PAYMENT_MAX_RETRY_ATTEMPTS", 3),
			RetryDelay:        getEnvAsDuration("PAYMENT_RETRY_DELAY", 5*time.Second),
			WorkerPoolSize:    getEnvAsInt("PAYMENT_WORKER_POOL_SIZE", 10),
			JobQueueSize:      getEnvAsInt("PAYMENT_JOB_QUEUE_SIZE", 100),
			StuckAfter:        getEnvAsDuration("PAYMENT_STUCK_AFTER", 30*time.Minute),
			ReconcileSchedule: getEnv("PAYMENT_RECONCILE_SCHEDULE", "@every 10m"),
			DispatchSchedule:  getEnv("PAYMENT_DISPATCH_SCHEDULE", "@every 1m"),
		},
		FSP: FSPConfig{
			HealthCheckSchedule: getEnv("FSP_HEALTH_CHECK_SCHEDULE", "@every 30s"),
			CredentialsKey:      getEnv("FSP_CREDENTIALS_KEY", ""),
		},
	}
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Payment.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("payment config: %v", err))
	}

	if err := c.FSP.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("fsp config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *PaymentConfig) Validate() error {
	if c.MaxRetryAttempts < 0 {
		return errors.New("max_retry_attempts cannot be negative")
	}
	if c.WorkerPoolSize < 1 {
		return errors.New("worker_pool_size must be at least 1")
	}
	if c.JobQueueSize < c.WorkerPoolSize {
		return errors.New("job_queue_size must be >= worker_pool_size")
	}
	return nil
}

func (c *FSPConfig) Validate() error {
	if c.HealthCheckSchedule == "" {
		return errors.New("health_check_schedule is required")
	}
	for code, p := range c.Providers {
		if p.BaseURL == "" {
			return fmt.Errorf("provider %s: base_url is required", code)
		}
		if _, err := url.Parse(p.BaseURL); err != nil {
			return fmt.Errorf("provider %s: invalid base_url: %w", code, err)
		}
	}
	return nil
}
