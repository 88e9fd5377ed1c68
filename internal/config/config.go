package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/gdbrns/go-whatsapp-send-gateway/pkg/env"
	"github.com/gdbrns/go-whatsapp-send-gateway/pkg/validation"
	"github.com/gdbrns/go-whatsapp-send-gateway/pkg/whatsapp"
)

const (
	ReconnectImmediate   = "immediate"
	ReconnectExponential = "exponential"

	// DefaultInternationalLength is the digit count of a full number in the
	// default country's international form.
	DefaultInternationalLength = 13
)

var ErrMissingAPIToken = errors.New("API_TOKEN (or API_SECRET_KEY) must be set to a non-placeholder secret")

// placeholderSecrets are values shipped in sample env files. Starting with one
// of them would leave /send guarded by a public secret.
var placeholderSecrets = map[string]bool{
	"your-secret-key":     true,
	"your_secret_key":     true,
	"your-api-key":        true,
	"your-api-token":      true,
	"your-secret-api-key": true,
	"changeme":            true,
	"change-me":           true,
	"secret":              true,
	"password":            true,
	"api-key":             true,
	"token":               true,
	"default":             true,
	"test":                true,
}

type Config struct {
	ServerAddress string
	Port          string
	LogLevel      string

	APIToken    string
	AdminSecret string

	Store whatsapp.StoreConfig

	AdminNumber         string
	DefaultCountryCode  string
	InternationalLength int

	ReconnectStrategy      string
	ReconnectInitial       time.Duration
	ReconnectMax           time.Duration
	ReconnectJitter        float64
	ReconnectMaxElapsed    time.Duration
	VersionRefreshInterval time.Duration

	SendRatePerMinute int
	SendRateBurst     int
	ExistenceCacheTTL time.Duration
	NotFoundCacheTTL  time.Duration

	ProxyURL   string
	QRTerminal bool

	WebhookURL          string
	WebhookSecret       string
	WebhookWorkers      int
	WebhookRetryLimit   int
	WebhookAllowPrivate bool
}

// Load reads the process configuration. It fails when no usable shared
// secret is configured.
func Load() (Config, error) {
	cfg := Config{
		ServerAddress: env.GetEnvStringOrDefault("SERVER_ADDRESS", "0.0.0.0"),
		Port:          env.GetEnvStringOrDefault("PORT", env.GetEnvStringOrDefault("SERVER_PORT", "3000")),
		LogLevel:      env.GetEnvStringOrDefault("LOG_LEVEL", "info"),

		AdminSecret: env.GetEnvStringOrDefault("ADMIN_SECRET_KEY", ""),

		Store: whatsapp.StoreConfig{
			Type: env.GetEnvStringOrDefault("SESSION_STORE_TYPE", "sqlite"),
			Dir:  env.GetEnvStringOrDefault("SESSION_DIR", "auth_info"),
			URI:  env.GetEnvStringOrDefault("SESSION_STORE_URI", ""),
		},

		AdminNumber:        env.GetEnvStringOrDefault("ADMIN_NUMBER", ""),
		DefaultCountryCode: env.GetEnvStringOrDefault("DEFAULT_COUNTRY_CODE", ""),

		ReconnectStrategy:      strings.ToLower(env.GetEnvStringOrDefault("RECONNECT_STRATEGY", ReconnectImmediate)),
		ReconnectInitial:       env.GetEnvDurationOrDefault("RECONNECT_BACKOFF_INITIAL", time.Second),
		ReconnectMax:           env.GetEnvDurationOrDefault("RECONNECT_BACKOFF_MAX", time.Minute),
		ReconnectJitter:        env.GetEnvFloat64OrDefault("RECONNECT_BACKOFF_JITTER", backoff.DefaultRandomizationFactor),
		ReconnectMaxElapsed:    env.GetEnvDurationOrDefault("RECONNECT_MAX_ELAPSED", 0),
		VersionRefreshInterval: env.GetEnvDurationOrDefault("WHATSAPP_WAVERSION_REFRESH_MIN_INTERVAL", whatsapp.DefaultVersionRefreshInterval),

		SendRatePerMinute: env.GetEnvIntOrDefault("SEND_RATE_PER_MINUTE", 60),
		SendRateBurst:     env.GetEnvIntOrDefault("SEND_RATE_BURST", 10),
		ExistenceCacheTTL: env.GetEnvDurationOrDefault("EXISTENCE_CACHE_TTL", 10*time.Minute),
		NotFoundCacheTTL:  env.GetEnvDurationOrDefault("EXISTENCE_CACHE_NOT_FOUND_TTL", time.Minute),

		ProxyURL:   env.GetEnvStringOrDefault("WHATSAPP_CLIENT_PROXY_URL", ""),
		QRTerminal: env.GetEnvBoolOrDefault("QR_TERMINAL", true),

		WebhookURL:          env.GetEnvStringOrDefault("WEBHOOK_URL", ""),
		WebhookSecret:       env.GetEnvStringOrDefault("WEBHOOK_SECRET", ""),
		WebhookWorkers:      env.GetEnvIntOrDefault("WEBHOOK_WORKERS", 2),
		WebhookRetryLimit:   env.GetEnvIntOrDefault("WEBHOOK_RETRY_LIMIT", 3),
		WebhookAllowPrivate: env.GetEnvBoolOrDefault("WEBHOOK_ALLOW_PRIVATE", false),
	}

	// With a country code and no explicit length, numbers that already carry
	// a foreign code are left alone. PHONE_INTERNATIONAL_LENGTH=0 prefixes
	// whenever the code is missing.
	lengthDefault := 0
	if whatsapp.Digits(cfg.DefaultCountryCode) != "" {
		lengthDefault = DefaultInternationalLength
	}
	cfg.InternationalLength = env.GetEnvIntOrDefault("PHONE_INTERNATIONAL_LENGTH", lengthDefault)

	token, _, err := env.GetEnvFirstString("API_TOKEN", "API_SECRET_KEY")
	if err != nil {
		return Config{}, ErrMissingAPIToken
	}
	if IsPlaceholderSecret(token) {
		return Config{}, fmt.Errorf("%w: refusing placeholder value", ErrMissingAPIToken)
	}
	cfg.APIToken = token

	if cfg.AdminSecret != "" && IsPlaceholderSecret(cfg.AdminSecret) {
		return Config{}, errors.New("ADMIN_SECRET_KEY is set to a placeholder value")
	}

	switch cfg.ReconnectStrategy {
	case ReconnectImmediate, ReconnectExponential:
	default:
		return Config{}, fmt.Errorf("unknown RECONNECT_STRATEGY %q (want %s or %s)", cfg.ReconnectStrategy, ReconnectImmediate, ReconnectExponential)
	}

	if cfg.AdminNumber != "" {
		if err := validation.ValidatePhone(cfg.Normalizer().NormalizeDigits(cfg.AdminNumber)); err != nil {
			return Config{}, fmt.Errorf("ADMIN_NUMBER: %w", err)
		}
	}
	return cfg, nil
}

func IsPlaceholderSecret(secret string) bool {
	return placeholderSecrets[strings.ToLower(strings.TrimSpace(secret))]
}

// Normalizer returns the phone normalizer configured by DEFAULT_COUNTRY_CODE
// and PHONE_INTERNATIONAL_LENGTH.
func (c Config) Normalizer() whatsapp.Normalizer {
	return whatsapp.Normalizer{
		DefaultCountryCode:  c.DefaultCountryCode,
		InternationalLength: c.InternationalLength,
	}
}

// BackOff builds the reconnect strategy. The immediate strategy reconnects on
// every recoverable close without delay.
func (c Config) BackOff() backoff.BackOff {
	if c.ReconnectStrategy != ReconnectExponential {
		return &backoff.ZeroBackOff{}
	}
	b := backoff.NewExponentialBackOff()
	if c.ReconnectInitial > 0 {
		b.InitialInterval = c.ReconnectInitial
	}
	if c.ReconnectMax > 0 {
		b.MaxInterval = c.ReconnectMax
	}
	if c.ReconnectJitter >= 0 && c.ReconnectJitter <= 1 {
		b.RandomizationFactor = c.ReconnectJitter
	}
	b.MaxElapsedTime = c.ReconnectMaxElapsed
	b.Reset()
	return b
}
