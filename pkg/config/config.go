package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is the envconfig prefix shared by every PASARELA_* variable.
const EnvPrefix = "pasarela"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "PASARELA_DB_DSN"
	EnvDBHost = "PASARELA_DB_HOST"
	EnvDBUser = "PASARELA_DB_USER"
	EnvDBName = "PASARELA_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	Wompi        WompiConfig
	Payments     PaymentsConfig
	FeatureFlags FeatureFlagsConfig
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
	Env          string `envconfig:"PASARELA_APP_ENV" required:"true"`
	Port         string `envconfig:"PASARELA_APP_PORT" default:"3000"`
	LogLevel     string `envconfig:"PASARELA_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PASARELA_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"PASARELA_DB_DSN"`
	Driver string `envconfig:"PASARELA_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PASARELA_DB_HOST"`
	LegacyPort     int    `envconfig:"PASARELA_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PASARELA_DB_USER"`
	LegacyPassword string `envconfig:"PASARELA_DB_PASSWORD"`
	LegacyName     string `envconfig:"PASARELA_DB_NAME"`
	LegacySSLMode  string `envconfig:"PASARELA_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PASARELA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PASARELA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PASARELA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PASARELA_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PASARELA_REDIS_URL"`
	Address      string        `envconfig:"PASARELA_REDIS_ADDR"`
	Password     string        `envconfig:"PASARELA_REDIS_PASSWORD"`
	DB           int           `envconfig:"PASARELA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PASARELA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PASARELA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PASARELA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PASARELA_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PASARELA_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether a redis endpoint was configured at all. The API
// degrades to no request dedupe when redis is absent.
func (r RedisConfig) Enabled() bool {
	return r.URL != "" || r.Address != ""
}

type WompiConfig struct {
	APIURL       string        `envconfig:"PASARELA_WOMPI_API_URL" default:"https://sandbox.wompi.co/v1"`
	PublicKey    string        `envconfig:"PASARELA_WOMPI_PUBLIC_KEY"`
	PrivateKey   string        `envconfig:"PASARELA_WOMPI_PRIVATE_KEY" required:"true"`
	EventsKey    string        `envconfig:"PASARELA_WOMPI_EVENTS_KEY"`
	IntegrityKey string        `envconfig:"PASARELA_WOMPI_INTEGRITY_KEY" required:"true"`
	Timeout      time.Duration `envconfig:"PASARELA_WOMPI_TIMEOUT" default:"30s"`
}

type PaymentsConfig struct {
	Currency          string `envconfig:"PASARELA_PAYMENTS_CURRENCY" default:"COP"`
	TokenEncryptionKey string `envconfig:"PASARELA_PAYMENTS_TOKEN_KEY" required:"true"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"PASARELA_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"PASARELA_AUTO_MIGRATE" default:"false"`
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
