// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AuthPolicy holds the tunable knobs of the authentication core. The
// upstream deployments disagreed on several of these values, so none is
// hard-coded.
type AuthPolicy struct {
	LockoutThreshold         int
	LockoutDuration          time.Duration
	IdleTimeout              time.Duration
	CSRFTTL                  time.Duration
	RequireEmailVerification bool
	// LoginRate/LoginBurst bound login attempts per client key.
	LoginRate  float64
	LoginBurst int
	// PhonePattern validates donor phone numbers; the default matches
	// Indian mobile numbers.
	PhonePattern string
	// RememberTTL bounds persistent-login tokens.
	RememberTTL time.Duration
}

// PhonePe holds payment gateway credentials and endpoints.
type PhonePe struct {
	MerchantID  string
	SaltKey     string
	SaltIndex   string
	BaseURL     string
	PayPath     string
	RedirectURL string
	CallbackURL string
}

// OIDC holds optional single-sign-on provider settings.
type OIDC struct {
	Enabled      bool
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Config is the full process configuration.
type Config struct {
	Addr        string
	DatabaseURL string
	// SessionBackend selects where sessions live: "postgres", "redis"
	// or "memory".
	SessionBackend string
	RedisAddr      string
	RedisPassword  string
	SendGridKey    string
	MailFrom       string
	// Debug opts into detailed error responses. Never enable in
	// production.
	Debug bool

	Auth    AuthPolicy
	PhonePe PhonePe
	OIDC    OIDC
}

// Load reads configuration from NGO_-prefixed environment variables,
// falling back to defaults suitable for local development.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("NGO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("addr", ":8080")
	v.SetDefault("session_backend", "postgres")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("debug", false)

	v.SetDefault("auth.lockout_threshold", 5)
	v.SetDefault("auth.lockout_duration_s", 900)
	v.SetDefault("auth.idle_timeout_s", 3600)
	v.SetDefault("auth.csrf_ttl_s", 3600)
	v.SetDefault("auth.require_email_verification", false)
	v.SetDefault("auth.login_rate", 1.0)
	v.SetDefault("auth.login_burst", 5)
	v.SetDefault("auth.phone_pattern", `^[6-9][0-9]{9}$`)
	v.SetDefault("auth.remember_ttl_s", 30*24*3600)

	v.SetDefault("phonepe.salt_index", "1")
	v.SetDefault("phonepe.base_url", "https://api-preprod.phonepe.com/apis/pg-sandbox")
	v.SetDefault("phonepe.pay_path", "/pg/v1/pay")

	cfg := &Config{
		Addr:           v.GetString("addr"),
		DatabaseURL:    v.GetString("database_url"),
		SessionBackend: v.GetString("session_backend"),
		RedisAddr:      v.GetString("redis_addr"),
		RedisPassword:  v.GetString("redis_password"),
		SendGridKey:    v.GetString("sendgrid_key"),
		MailFrom:       v.GetString("mail_from"),
		Debug:          v.GetBool("debug"),
		Auth: AuthPolicy{
			LockoutThreshold:         v.GetInt("auth.lockout_threshold"),
			LockoutDuration:          time.Duration(v.GetInt("auth.lockout_duration_s")) * time.Second,
			IdleTimeout:              time.Duration(v.GetInt("auth.idle_timeout_s")) * time.Second,
			CSRFTTL:                  time.Duration(v.GetInt("auth.csrf_ttl_s")) * time.Second,
			RequireEmailVerification: v.GetBool("auth.require_email_verification"),
			LoginRate:                v.GetFloat64("auth.login_rate"),
			LoginBurst:               v.GetInt("auth.login_burst"),
			PhonePattern:             v.GetString("auth.phone_pattern"),
			RememberTTL:              time.Duration(v.GetInt("auth.remember_ttl_s")) * time.Second,
		},
		PhonePe: PhonePe{
			MerchantID:  v.GetString("phonepe.merchant_id"),
			SaltKey:     v.GetString("phonepe.salt_key"),
			SaltIndex:   v.GetString("phonepe.salt_index"),
			BaseURL:     v.GetString("phonepe.base_url"),
			PayPath:     v.GetString("phonepe.pay_path"),
			RedirectURL: v.GetString("phonepe.redirect_url"),
			CallbackURL: v.GetString("phonepe.callback_url"),
		},
		OIDC: OIDC{
			Enabled:      v.GetBool("oidc.enabled"),
			IssuerURL:    v.GetString("oidc.issuer_url"),
			ClientID:     v.GetString("oidc.client_id"),
			ClientSecret: v.GetString("oidc.client_secret"),
			RedirectURL:  v.GetString("oidc.redirect_url"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Auth.LockoutThreshold < 1 {
		return fmt.Errorf("config: auth.lockout_threshold must be >= 1")
	}
	switch c.SessionBackend {
	case "postgres", "redis", "memory":
	default:
		return fmt.Errorf("config: unknown session backend %q", c.SessionBackend)
	}
	if c.OIDC.Enabled && (c.OIDC.IssuerURL == "" || c.OIDC.ClientID == "") {
		return fmt.Errorf("config: oidc enabled but issuer_url/client_id missing")
	}
	return nil
}
