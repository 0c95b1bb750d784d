package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// App holds core runtime configuration shared across services.
type App struct {
	Name                    string        `env:"APP_NAME" envDefault:"clinic-assessments"`
	Env                     string        `env:"APP_ENV" envDefault:"development"`
	HTTPAddr                string        `env:"HTTP_ADDR" envDefault:"0.0.0.0:8080"`
	GracefulShutdownTimeout time.Duration `env:"GRACEFUL_SHUTDOWN_SECONDS" envDefault:"20s"`

	Postgres    Postgres
	Redis       Redis
	Submissions Submissions
	Runner      Runner
	Catalog     Catalog
	Access      Access
	Routes      Routes
	CORS        CORS
}

// Postgres captures connection info for the SQL database.
type Postgres struct {
	Host     string `env:"PG_HOST" envDefault:"localhost"`
	Port     int    `env:"PG_PORT" envDefault:"5432"`
	User     string `env:"PG_USER" envDefault:"postgres"`
	Password string `env:"PG_PASSWORD" envDefault:""`
	Database string `env:"PG_DATABASE" envDefault:"assessments"`
	SSLMode  string `env:"PG_SSL_MODE" envDefault:"disable"`
	MaxConns int    `env:"PG_MAX_CONNS" envDefault:"10"`
}

// DSN renders the key/value connection string understood by pgx.
func (p Postgres) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode)
}

// Redis holds the session store connection.
type Redis struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	PoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"20"`
}

// Submissions selects where completed attempts are stored.
type Submissions struct {
	Driver     string `env:"SUBMISSIONS_DRIVER" envDefault:"postgres"` // postgres | sqlite
	SQLitePath string `env:"SQLITE_PATH" envDefault:"data/assessments.db"`
}

// Runner groups attempt behavior.
type Runner struct {
	AutoAdvanceDelay time.Duration `env:"RUNNER_AUTO_ADVANCE_DELAY" envDefault:"300ms"`
	SliderPolicy     string        `env:"RUNNER_SLIDER_POLICY" envDefault:"default_answered"` // default_answered | require_touch
	SessionStore     string        `env:"SESSION_STORE" envDefault:"redis"`                   // redis | memory
	SessionTTL       time.Duration `env:"SESSION_TTL" envDefault:"2h"`
	LockWait         time.Duration `env:"SESSION_LOCK_WAIT" envDefault:"2s"`
}

// Catalog points at assessment content. An empty Dir uses the embedded files.
type Catalog struct {
	Dir string `env:"CATALOG_DIR" envDefault:""`
}

// Access configures entitlement gating for starting attempts.
type Access struct {
	Enabled bool          `env:"ACCESS_GATING_ENABLED" envDefault:"false"`
	Secret  string        `env:"ACCESS_TOKEN_SECRET" envDefault:""`
	TTL     time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"24h"`
	Issuer  string        `env:"ACCESS_TOKEN_ISSUER" envDefault:"clinic-assessments"`
}

// Routes overrides navigation targets, as "route-id=/path" pairs.
type Routes struct {
	Overrides []string `env:"ROUTES" envSeparator:"," envDefault:""`
}

// CORS holds Cross-Origin Resource Sharing configuration.
type CORS struct {
	AllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000,http://127.0.0.1:3000"`
	AllowedMethods   []string `env:"CORS_ALLOWED_METHODS" envSeparator:"," envDefault:"GET,POST,OPTIONS"`
	AllowedHeaders   []string `env:"CORS_ALLOWED_HEADERS" envSeparator:"," envDefault:"Content-Type,Authorization"`
	AllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS" envDefault:"true"`
	MaxAge           int      `env:"CORS_MAX_AGE" envDefault:"3600"`
}

// Load parses environment variables into App config.
func Load(ctx context.Context) (*App, error) {
	cfg := &App{}
	if err := env.ParseWithOptions(cfg, env.Options{RequiredIfNoDef: true}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks combinations that env tags cannot express.
func (c *App) Validate() error {
	var errs []error
	switch c.Submissions.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("SUBMISSIONS_DRIVER must be postgres or sqlite, got %q", c.Submissions.Driver))
	}
	switch c.Runner.SliderPolicy {
	case "default_answered", "require_touch":
	default:
		errs = append(errs, fmt.Errorf("RUNNER_SLIDER_POLICY must be default_answered or require_touch, got %q", c.Runner.SliderPolicy))
	}
	switch c.Runner.SessionStore {
	case "redis", "memory":
	default:
		errs = append(errs, fmt.Errorf("SESSION_STORE must be redis or memory, got %q", c.Runner.SessionStore))
	}
	if c.Runner.AutoAdvanceDelay < 0 {
		errs = append(errs, errors.New("RUNNER_AUTO_ADVANCE_DELAY must not be negative"))
	}
	if c.Access.Enabled && c.Access.Secret == "" {
		errs = append(errs, errors.New("ACCESS_TOKEN_SECRET is required when ACCESS_GATING_ENABLED is set"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
