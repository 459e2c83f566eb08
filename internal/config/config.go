package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const minSecretLength = 16

type Config struct {
	Env      string `env:"APP_ENV" envDefault:"development"`
	AppPort  string `env:"APP_PORT" envDefault:"3000"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	DatabaseDSN string `env:"DATABASE_DSN,required,notEmpty"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// ClientURL is the public frontend origin that login and logout redirect to.
	ClientURL string `env:"CLIENT_URL" envDefault:"http://localhost:3001"`

	OIDC      OIDC      `envPrefix:"OIDC_"`
	Session   Session   `envPrefix:"SESSION_"`
	JWT       JWT       `envPrefix:"JWT_"`
	RateLimit RateLimit `envPrefix:"AUTH_RATE_LIMIT_"`
}

type OIDC struct {
	Issuer string `env:"ISSUER,required,notEmpty"`
	// PublicIssuer is the issuer as seen by browsers, when it differs from
	// the address the server uses to reach the provider.
	PublicIssuer          string        `env:"PUBLIC_ISSUER"`
	ClientID              string        `env:"CLIENT_ID,required,notEmpty"`
	ClientSecret          string        `env:"CLIENT_SECRET"`
	RedirectURI           string        `env:"REDIRECT_URI,required,notEmpty"`
	PostLogoutRedirectURI string        `env:"POST_LOGOUT_REDIRECT_URI"`
	Scope                 string        `env:"SCOPE" envDefault:"openid email profile"`
	UsePKCE               bool          `env:"USE_PKCE" envDefault:"true"`
	HTTPTimeout           time.Duration `env:"HTTP_TIMEOUT" envDefault:"10s"`
	PendingLoginTTL       time.Duration `env:"PENDING_LOGIN_TTL" envDefault:"10m"`
}

func (o OIDC) Scopes() []string {
	return strings.Fields(o.Scope)
}

type Session struct {
	Secret       string        `env:"SECRET,required,notEmpty"`
	CookieName   string        `env:"COOKIE_NAME" envDefault:"noces.sid"`
	MaxAge       time.Duration `env:"MAX_AGE" envDefault:"24h"`
	SecureCookie bool          `env:"SECURE_COOKIE" envDefault:"false"`
}

type JWT struct {
	Secret     string        `env:"SECRET,required,notEmpty"`
	Expiration time.Duration `env:"EXPIRATION" envDefault:"1h"`
}

type RateLimit struct {
	RequestsPerMinute int `env:"RPM" envDefault:"30"`
	Burst             int `env:"BURST" envDefault:"10"`
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {

	_ = godotenv.Load()

	var cfg Config

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil

}

func (c Config) Validate() error {

	var errs []error

	if len(c.JWT.Secret) < minSecretLength {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d characters", minSecretLength))
	}

	if len(c.Session.Secret) < minSecretLength {
		errs = append(errs, fmt.Errorf("SESSION_SECRET must be at least %d characters", minSecretLength))
	}

	hasOpenID := false
	for _, s := range c.OIDC.Scopes() {
		if s == "openid" {
			hasOpenID = true
		}
	}
	if !hasOpenID {
		errs = append(errs, errors.New("OIDC_SCOPE must include openid"))
	}

	if c.JWT.Expiration <= 0 {
		errs = append(errs, errors.New("JWT_EXPIRATION must be positive"))
	}
	if c.Session.MaxAge <= 0 {
		errs = append(errs, errors.New("SESSION_MAX_AGE must be positive"))
	}
	if c.OIDC.HTTPTimeout <= 0 {
		errs = append(errs, errors.New("OIDC_HTTP_TIMEOUT must be positive"))
	}
	if c.OIDC.PendingLoginTTL <= 0 {
		errs = append(errs, errors.New("OIDC_PENDING_LOGIN_TTL must be positive"))
	}
	if c.RateLimit.RequestsPerMinute <= 0 || c.RateLimit.Burst <= 0 {
		errs = append(errs, errors.New("AUTH_RATE_LIMIT_RPM and AUTH_RATE_LIMIT_BURST must be positive"))
	}

	return errors.Join(errs...)

}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}
