package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	// this will automatically load your .env file:
	_ "github.com/joho/godotenv/autoload"
)

type Config struct {
	Env      string
	HTTPAddr string
	CORS     []string
	Logs     LogConfig
	DB       DBConfig
	Ledger   LedgerConfig
	OpenAI   OpenAIConfig
	Stripe   StripeConfig
	Upload   UploadConfig
	Auth     AuthConfig
}

type LogConfig struct {
	Style string
	Level string
}

type DBConfig struct {
	Driver     string // postgres or sqlite
	SQLitePath string
	Postgres   PostgresConfig
}

type PostgresConfig struct {
	Username string
	Password string
	URL      string
	Port     string
	Name     string
	SSLMode  string
}

type LedgerConfig struct {
	StartingCredits int
}

type OpenAIConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	Temperature    float64
	ExtractTimeout time.Duration
	MaxChars       int
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
	PriceCents    int64
	MaxCredits    int
	Timeout       time.Duration
}

type UploadConfig struct {
	Dir      string
	MaxBytes int64
}

type AuthConfig struct {
	Issuer   string
	Audience string
	Disabled bool
}

// LoadConfig reads the environment. Malformed values are errors; missing
// values take defaults.
func LoadConfig() (*Config, error) {
	p := parser{}
	cfg := &Config{
		Env:      getenv("ENV", "development"),
		HTTPAddr: getenv("HTTP_ADDR", "0.0.0.0:8080"),
		CORS:     splitList(getenv("CORS_ORIGINS", "*")),
		Logs: LogConfig{
			Style: os.Getenv("LOG_STYLE"),
			Level: os.Getenv("LOG_LEVEL"),
		},
		DB: DBConfig{
			Driver:     strings.ToLower(getenv("DB_DRIVER", "postgres")),
			SQLitePath: getenv("SQLITE_PATH", "docanalysis.db"),
			Postgres: PostgresConfig{
				Username: os.Getenv("POSTGRES_USER"),
				Password: os.Getenv("POSTGRES_PWD"),
				URL:      os.Getenv("POSTGRES_URL"),
				Port:     getenv("POSTGRES_PORT", "5432"),
				Name:     getenv("POSTGRES_DB", "postgres"),
				SSLMode:  getenv("POSTGRES_SSLMODE", "require"),
			},
		},
		Ledger: LedgerConfig{
			StartingCredits: p.intVar("STARTING_CREDITS", 5),
		},
		OpenAI: OpenAIConfig{
			APIKey:         os.Getenv("OPENAI_API_KEY"),
			BaseURL:        getenv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Model:          getenv("OPENAI_MODEL", "gpt-4o-mini"),
			Temperature:    p.floatVar("OPENAI_TEMPERATURE", 0),
			ExtractTimeout: p.durationVar("EXTRACT_TIMEOUT", 60*time.Second),
			MaxChars:       p.intVar("EXTRACT_MAX_CHARS", 12000),
		},
		Stripe: StripeConfig{
			SecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
			WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
			Currency:      strings.ToLower(getenv("STRIPE_CURRENCY", "usd")),
			PriceCents:    int64(p.intVar("CREDIT_PRICE_CENTS", 100)),
			MaxCredits:    p.intVar("MAX_CREDITS_PER_PURCHASE", 500),
			Timeout:       p.durationVar("PAYMENT_TIMEOUT", 15*time.Second),
		},
		Upload: UploadConfig{
			Dir:      os.Getenv("UPLOAD_DIR"),
			MaxBytes: int64(p.intVar("UPLOAD_MAX_BYTES", 10<<20)),
		},
		Auth: AuthConfig{
			Issuer:   os.Getenv("AUTH0_ISSUER"),
			Audience: os.Getenv("AUTH0_AUDIENCE"),
			Disabled: p.boolVar("AUTH_DISABLED", false),
		},
	}
	if err := errors.Join(p.errs...); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error
	switch c.DB.Driver {
	case "postgres":
		if c.DB.Postgres.URL == "" {
			errs = append(errs, errors.New("POSTGRES_URL is required when DB_DRIVER=postgres"))
		}
	case "sqlite":
		if c.DB.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required when DB_DRIVER=sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER %q", c.DB.Driver))
	}
	if c.Ledger.StartingCredits < 0 {
		errs = append(errs, errors.New("STARTING_CREDITS must not be negative"))
	}
	if c.OpenAI.ExtractTimeout <= 0 || c.Stripe.Timeout <= 0 {
		errs = append(errs, errors.New("EXTRACT_TIMEOUT and PAYMENT_TIMEOUT must be positive"))
	}
	if c.Stripe.PriceCents <= 0 || c.Stripe.MaxCredits <= 0 {
		errs = append(errs, errors.New("CREDIT_PRICE_CENTS and MAX_CREDITS_PER_PURCHASE must be positive"))
	}
	if c.Upload.MaxBytes <= 0 {
		errs = append(errs, errors.New("UPLOAD_MAX_BYTES must be positive"))
	}
	if !c.Auth.Disabled && (c.Auth.Issuer == "" || c.Auth.Audience == "") {
		errs = append(errs, errors.New("AUTH0_ISSUER and AUTH0_AUDIENCE are required unless AUTH_DISABLED=true"))
	}
	return errors.Join(errs...)
}

// PostgresDSN builds a lib/pq connection string.
func (c *Config) PostgresDSN() string {
	pg := c.DB.Postgres
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(pg.Username, pg.Password),
		Host:   pg.URL + ":" + pg.Port,
		Path:   "/" + pg.Name,
	}
	q := url.Values{}
	q.Set("sslmode", pg.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
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

// parser collects conversion errors so every bad variable is reported at
// once.
type parser struct {
	errs []error
}

func (p *parser) intVar(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("error converting string to int: %s: %w", key, err))
		return def
	}
	return n
}

func (p *parser) floatVar(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("error parsing %s: %w", key, err))
		return def
	}
	return f
}

func (p *parser) boolVar(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("error parsing %s: %w", key, err))
		return def
	}
	return b
}

func (p *parser) durationVar(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("error parsing %s: %w", key, err))
		return def
	}
	return d
}
