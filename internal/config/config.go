// Package config loads service configuration from an optional YAML file and
// the environment.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	Service  ServiceConfig
	Server   ServerConfig
	GRPC     GRPCConfig
	Database DatabaseConfig
	NATS     NATSConfig
	Webhooks WebhooksConfig
	Rules    RulesConfig
}

// ServiceConfig identifies the running service in logs.
type ServiceConfig struct {
	Name        string
	Version     string
	Environment string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// GRPCConfig holds gRPC server settings.
type GRPCConfig struct {
	Port int
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	Database    string
	SSLMode     string
	MaxConns    int32
	MinConns    int32
	MaxConnTime time.Duration
	MaxIdleTime time.Duration
	HealthCheck time.Duration
}

// DSN renders a pgx connection URL. Credentials and the database name are
// escaped, so they may contain URL delimiters.
func (c DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}

// NATSConfig configures the notification publisher. An empty URL disables it.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
}

// WebhooksConfig holds the external automation engine endpoints.
type WebhooksConfig struct {
	DiffURL      string
	JudgementURL string
	Timeout      time.Duration
}

// WebhookStatus reports which webhook endpoints are configured. Values are
// never exposed, only presence.
type WebhookStatus struct {
	DiffConfigured      bool `json:"diff_webhook_configured"`
	JudgementConfigured bool `json:"judgement_webhook_configured"`
}

// Status reports configured/not-configured for each webhook.
func (w WebhooksConfig) Status() WebhookStatus {
	return WebhookStatus{
		DiffConfigured:      strings.TrimSpace(w.DiffURL) != "",
		JudgementConfigured: strings.TrimSpace(w.JudgementURL) != "",
	}
}

// RulesConfig locates the rule registry.
type RulesConfig struct {
	Path string
	// Tier applied when the caller does not supply one.
	DefaultTier string
}

// Load reads config/config.yaml (optional) and the environment. Environment
// keys use underscores, e.g. DATABASE_HOST, SERVER_PORT.
func Load() (*Config, error) {
	v := viper.New()
	v.AddConfigPath("config")
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// The webhook handles keep the names the automation engine deployment uses.
	_ = v.BindEnv("webhooks.diff_url", "N8N_DIFF_WEBHOOK_URL")
	_ = v.BindEnv("webhooks.judgement_url", "N8N_JUDGEMENT_WEBHOOK_URL")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
	}

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "be-payroll-review")
	v.SetDefault("service.version", "dev")
	v.SetDefault("service.environment", "development")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "20s")

	v.SetDefault("grpc.port", 9090)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "payroll_review")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.max_conn_time", "1h")
	v.SetDefault("database.max_idle_time", "30m")
	v.SetDefault("database.health_check", "1m")

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject_prefix", "notifications.payroll")

	v.SetDefault("webhooks.diff_url", "")
	v.SetDefault("webhooks.judgement_url", "")
	v.SetDefault("webhooks.timeout", "10s")

	v.SetDefault("rules.path", "config/rules.yaml")
	v.SetDefault("rules.default_tier", "starter")
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        v.GetString("service.name"),
			Version:     v.GetString("service.version"),
			Environment: v.GetString("service.environment"),
		},
		Server: ServerConfig{
			Port:            v.GetInt("server.port"),
			ReadTimeout:     v.GetDuration("server.read_timeout"),
			WriteTimeout:    v.GetDuration("server.write_timeout"),
			IdleTimeout:     v.GetDuration("server.idle_timeout"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		GRPC: GRPCConfig{Port: v.GetInt("grpc.port")},
		Database: DatabaseConfig{
			Host:        v.GetString("database.host"),
			Port:        v.GetInt("database.port"),
			User:        v.GetString("database.user"),
			Password:    v.GetString("database.password"),
			Database:    v.GetString("database.database"),
			SSLMode:     v.GetString("database.sslmode"),
			MaxConns:    v.GetInt32("database.max_conns"),
			MinConns:    v.GetInt32("database.min_conns"),
			MaxConnTime: v.GetDuration("database.max_conn_time"),
			MaxIdleTime: v.GetDuration("database.max_idle_time"),
			HealthCheck: v.GetDuration("database.health_check"),
		},
		NATS: NATSConfig{
			URL:           v.GetString("nats.url"),
			SubjectPrefix: v.GetString("nats.subject_prefix"),
		},
		Webhooks: WebhooksConfig{
			DiffURL:      v.GetString("webhooks.diff_url"),
			JudgementURL: v.GetString("webhooks.judgement_url"),
			Timeout:      v.GetDuration("webhooks.timeout"),
		},
		Rules: RulesConfig{
			Path:        v.GetString("rules.path"),
			DefaultTier: v.GetString("rules.default_tier"),
		},
	}

	if cfg.Server.Port <= 0 {
		return nil, fmt.Errorf("config: server.port must be positive, got %d", cfg.Server.Port)
	}
	if cfg.GRPC.Port <= 0 {
		return nil, fmt.Errorf("config: grpc.port must be positive, got %d", cfg.GRPC.Port)
	}
	if strings.TrimSpace(cfg.Rules.Path) == "" {
		return nil, errors.New("config: rules.path is required")
	}
	return cfg, nil
}
