package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "TECNOSHOP"

	AppEnvDev  = "development"
	AppEnvProd = "production"

	EnvDBDSN  = "TECNOSHOP_DB_DSN"
	EnvDBHost = "TECNOSHOP_DB_HOST"
	EnvDBUser = "TECNOSHOP_DB_USER"
	EnvDBName = "TECNOSHOP_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	Checkout      CheckoutConfig
	Cron          CronConfig
	AuthRateLimit AuthRateLimitConfig
	Square        SquareConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	Outbox        OutboxConfig
	FeatureFlags  FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"TECNOSHOP_APP_ENV" required:"true"`
	Port         string `envconfig:"TECNOSHOP_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"TECNOSHOP_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"TECNOSHOP_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"TECNOSHOP_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"TECNOSHOP_DB_DSN"`
	Driver string `envconfig:"TECNOSHOP_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"TECNOSHOP_DB_HOST"`
	LegacyPort     int    `envconfig:"TECNOSHOP_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"TECNOSHOP_DB_USER"`
	LegacyPassword string `envconfig:"TECNOSHOP_DB_PASSWORD"`
	LegacyName     string `envconfig:"TECNOSHOP_DB_NAME"`
	LegacySSLMode  string `envconfig:"TECNOSHOP_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"TECNOSHOP_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"TECNOSHOP_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"TECNOSHOP_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"TECNOSHOP_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"TECNOSHOP_REDIS_URL" required:"true"`
	Address      string        `envconfig:"TECNOSHOP_REDIS_ADDR"`
	Password     string        `envconfig:"TECNOSHOP_REDIS_PASSWORD"`
	DB           int           `envconfig:"TECNOSHOP_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"TECNOSHOP_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"TECNOSHOP_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"TECNOSHOP_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"TECNOSHOP_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"TECNOSHOP_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"TECNOSHOP_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"TECNOSHOP_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"TECNOSHOP_JWT_EXPIRATION_MINUTES" default:"60"`
}

// Expiration returns the access token TTL.
func (j JWTConfig) Expiration() time.Duration {
	if j.ExpirationMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(j.ExpirationMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"TECNOSHOP_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"TECNOSHOP_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"TECNOSHOP_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"TECNOSHOP_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"TECNOSHOP_ARGON_KEY_LEN" default:"32"`
}

type CheckoutConfig struct {
	ReservationTTL time.Duration `envconfig:"TECNOSHOP_CHECKOUT_RESERVATION_TTL" default:"15m"`
	ChargeTimeout  time.Duration `envconfig:"TECNOSHOP_CHECKOUT_CHARGE_TIMEOUT" default:"20s"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"TECNOSHOP_CRON_INTERVAL" default:"1m"`
	LockTTL  time.Duration `envconfig:"TECNOSHOP_CRON_LOCK_TTL" default:"5m"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"TECNOSHOP_AUTH_RL_LOGIN_WINDOW" default:"1m"`
	LoginIPLimit       int           `envconfig:"TECNOSHOP_AUTH_RL_LOGIN_IP_LIMIT" default:"20"`
	LoginEmailLimit    int           `envconfig:"TECNOSHOP_AUTH_RL_LOGIN_EMAIL_LIMIT" default:"5"`
	RegisterWindow     time.Duration `envconfig:"TECNOSHOP_AUTH_RL_REGISTER_WINDOW" default:"1h"`
	RegisterIPLimit    int           `envconfig:"TECNOSHOP_AUTH_RL_REGISTER_IP_LIMIT" default:"30"`
	RegisterEmailLimit int           `envconfig:"TECNOSHOP_AUTH_RL_REGISTER_EMAIL_LIMIT" default:"3"`
}

type SquareConfig struct {
	AccessToken     string `envconfig:"TECNOSHOP_SQUARE_ACCESS_TOKEN"`
	WebhookSecret   string `envconfig:"TECNOSHOP_SQUARE_WEBHOOK_SECRET"`
	NotificationURL string `envconfig:"TECNOSHOP_SQUARE_WEBHOOK_URL"`
	Env             string `envconfig:"TECNOSHOP_SQUARE_ENV" default:"sandbox"`
	PlanLocationID  string `envconfig:"TECNOSHOP_SQUARE_PLAN_LOCATION_ID"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type GCPConfig struct {
	ProjectID       string `envconfig:"TECNOSHOP_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"TECNOSHOP_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	DomainTopic        string `envconfig:"TECNOSHOP_PUBSUB_DOMAIN_TOPIC" default:"ts-domain-events"`
	DomainSubscription string `envconfig:"TECNOSHOP_PUBSUB_DOMAIN_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"TECNOSHOP_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"TECNOSHOP_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"TECNOSHOP_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"TECNOSHOP_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"TECNOSHOP_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
