package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	HTTPAddr    string
	LogLevel    string
	CORSOrigins []string

	DB        DB
	Gateway   Gateway
	Redis     Redis
	Kafka     Kafka
	OTLP      string
	Reconcile Reconcile
}

type DB struct {
	Host     string
	Port     string
	Database string
	Username string
	Password string
	Schema   string
}

// DSN builds the pgx connection string.
func (d DB) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable&search_path=%s",
		d.Username, d.Password, d.Host, d.Port, d.Database, d.Schema,
	)
}

// DefaultMockSecret is the published sandbox secret. Anyone can sign
// notifications with it.
const DefaultMockSecret = "local-dev-secret"

type Gateway struct {
	// Mode is "alipay" or "mock". There is no default.
	Mode          string
	AppID         string
	PrivateKey    string
	PublicKey     string
	URL           string
	Production    bool
	PublicBaseURL string
	ReturnURL     string
	MockSecret    string
	// AllowSandbox opts in to the mock gateway with the published secret and
	// to the unauthenticated /mock-checkout page.
	AllowSandbox bool
	Timeout      time.Duration
}

// NotifyURL is where the provider pushes server-to-server notifications.
func (g Gateway) NotifyURL() string {
	return strings.TrimRight(g.PublicBaseURL, "/") + "/payments/notify"
}

type Redis struct {
	Addr     string
	Password string
	DB       int
}

type Kafka struct {
	Brokers []string
	Topic   string
}

type Reconcile struct {
	Interval   time.Duration
	StuckAfter time.Duration
	Batch      int
	OrderTTL   time.Duration
	LockTTL    time.Duration
}

// Load reads an optional .env file and resolves the configuration from the
// environment. Missing .env is not an error.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		_ = godotenv.Load(f)
	}

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		HTTPAddr:    v.GetString("HTTP_ADDR"),
		LogLevel:    v.GetString("LOG_LEVEL"),
		CORSOrigins: splitList(v.GetString("CORS_ORIGINS")),
		DB: DB{
			Host:     v.GetString("BLUEPRINT_DB_HOST"),
			Port:     v.GetString("BLUEPRINT_DB_PORT"),
			Database: v.GetString("BLUEPRINT_DB_DATABASE"),
			Username: v.GetString("BLUEPRINT_DB_USERNAME"),
			Password: v.GetString("BLUEPRINT_DB_PASSWORD"),
			Schema:   v.GetString("BLUEPRINT_DB_SCHEMA"),
		},
		Gateway: Gateway{
			Mode:          strings.ToLower(v.GetString("GATEWAY_MODE")),
			AppID:         v.GetString("ALIPAY_APP_ID"),
			PrivateKey:    v.GetString("ALIPAY_PRIVATE_KEY"),
			PublicKey:     v.GetString("ALIPAY_PUBLIC_KEY"),
			URL:           v.GetString("ALIPAY_GATEWAY_URL"),
			Production:    v.GetBool("ALIPAY_PRODUCTION"),
			PublicBaseURL: v.GetString("PUBLIC_BASE_URL"),
			ReturnURL:     v.GetString("PAYMENT_RETURN_URL"),
			MockSecret:    v.GetString("MOCK_GATEWAY_SECRET"),
			AllowSandbox:  v.GetBool("ALLOW_SANDBOX_GATEWAY"),
			Timeout:       v.GetDuration("GATEWAY_TIMEOUT"),
		},
		Redis: Redis{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Kafka: Kafka{
			Brokers: splitList(v.GetString("KAFKA_BROKERS")),
			Topic:   v.GetString("KAFKA_TOPIC"),
		},
		OTLP: v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Reconcile: Reconcile{
			Interval:   v.GetDuration("RECONCILE_INTERVAL"),
			StuckAfter: v.GetDuration("RECONCILE_STUCK_AFTER"),
			Batch:      v.GetInt("RECONCILE_BATCH"),
			OrderTTL:   v.GetDuration("ORDER_TTL"),
			LockTTL:    v.GetDuration("RECONCILE_LOCK_TTL"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("BLUEPRINT_DB_HOST", "localhost")
	v.SetDefault("BLUEPRINT_DB_PORT", "5432")
	v.SetDefault("BLUEPRINT_DB_SCHEMA", "public")
	v.SetDefault("ALIPAY_GATEWAY_URL", "https://openapi-sandbox.dl.alipaydev.com/gateway.do")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8080")
	v.SetDefault("PAYMENT_RETURN_URL", "http://localhost:3000/payments/success")
	v.SetDefault("MOCK_GATEWAY_SECRET", DefaultMockSecret)
	v.SetDefault("GATEWAY_TIMEOUT", 5*time.Second)
	v.SetDefault("KAFKA_TOPIC", "order.state_changed")
	v.SetDefault("RECONCILE_INTERVAL", time.Minute)
	v.SetDefault("RECONCILE_STUCK_AFTER", 2*time.Minute)
	v.SetDefault("RECONCILE_BATCH", 100)
	v.SetDefault("ORDER_TTL", 24*time.Hour)
	v.SetDefault("RECONCILE_LOCK_TTL", 30*time.Second)
}

func (c *Config) validate() error {
	switch c.Gateway.Mode {
	case "":
		return fmt.Errorf("config: GATEWAY_MODE is required (alipay or mock)")
	case "mock":
		if !c.Gateway.AllowSandbox && (c.Gateway.MockSecret == "" || c.Gateway.MockSecret == DefaultMockSecret) {
			return fmt.Errorf("config: mock gateway with the published secret needs ALLOW_SANDBOX_GATEWAY=true or a private MOCK_GATEWAY_SECRET")
		}
	case "alipay":
		if c.Gateway.AppID == "" || c.Gateway.PrivateKey == "" || c.Gateway.PublicKey == "" {
			return fmt.Errorf("config: alipay mode requires ALIPAY_APP_ID, ALIPAY_PRIVATE_KEY and ALIPAY_PUBLIC_KEY")
		}
	default:
		return fmt.Errorf("config: unknown GATEWAY_MODE %q", c.Gateway.Mode)
	}
	if c.Reconcile.Interval <= 0 {
		return fmt.Errorf("config: RECONCILE_INTERVAL must be positive")
	}
	if c.Reconcile.Batch <= 0 {
		return fmt.Errorf("config: RECONCILE_BATCH must be positive")
	}
	return nil
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
