package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

const (
	ModeDebug   = "debug"
	ModeRelease = "release"
	ModeTest    = "test"

	DriverMemory   = "memory"
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"

	minSecretLen = 32
)

var (
	ErrMissingSigningKey = errors.New("jwt.secret is required outside debug mode")
	ErrWeakSigningKey    = fmt.Errorf("jwt.secret must be at least %d bytes outside debug mode", minSecretLen)
	ErrLoginLimitUnset   = errors.New("login_limit.attempts must be positive when redis.addr is set")
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
		Mode string `yaml:"mode"`
	} `yaml:"server"`
	Store struct {
		Driver string `yaml:"driver"`
	} `yaml:"store"`
	Mongo struct {
		URI        string `yaml:"uri"`
		Database   string `yaml:"database"`
		Collection string `yaml:"collection"`
	} `yaml:"mongo"`
	DB struct {
		Host     string `yaml:"host"`
		Port     string `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslmode"`
	} `yaml:"db"`
	JWT struct {
		Secret string        `yaml:"secret"`
		Issuer string        `yaml:"issuer"`
		RawTTL string        `yaml:"ttl"`
		TTL    time.Duration `yaml:"-"`
		// Generated is set when debug mode filled in a random secret.
		Generated bool `yaml:"-"`
	} `yaml:"jwt"`
	Auth struct {
		RawLookupTimeout string        `yaml:"lookup_timeout"`
		LookupTimeout    time.Duration `yaml:"-"`
	} `yaml:"auth"`
	Password struct {
		Cost int `yaml:"cost"`
	} `yaml:"password"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	LoginLimit struct {
		Attempts  int           `yaml:"attempts"`
		RawWindow string        `yaml:"window"`
		Window    time.Duration `yaml:"-"`
	} `yaml:"login_limit"`
	Telegram struct {
		Token  string `yaml:"token"`
		ChatID int64  `yaml:"chat_id"`
	} `yaml:"telegram"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Development reports whether the server runs outside production.
func (c *Config) Development() bool {
	return c.Server.Mode == ModeDebug || c.Server.Mode == ModeTest
}

// Load reads config/envs/<env>.yaml (or $CONFIG_DIR/<env>.yaml), applies
// environment overrides and validates the result.
func Load(env string) (*Config, error) {
	cfg, err := read(env)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadStore is Load for tools that only touch the credential store. Only the
// mode, store and password sections are validated, so no signing key is
// needed.
func LoadStore(env string) (*Config, error) {
	cfg, err := read(env)
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateStore(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func read(env string) (*Config, error) {
	if env == "" {
		env = "local"
	}

	// A missing .env is normal in containers.
	_ = godotenv.Load()

	dir := os.Getenv("CONFIG_DIR")
	if dir == "" {
		dir = filepath.Join("config", "envs")
	}
	configPath := filepath.Join(dir, env+".yaml")

	f, err := os.Open(configPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", configPath, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"PORT":                &c.Server.Port,
		"GIN_MODE":            &c.Server.Mode,
		"STORE_DRIVER":        &c.Store.Driver,
		"MONGO_URI":           &c.Mongo.URI,
		"MONGO_DATABASE":      &c.Mongo.Database,
		"MONGO_COLLECTION":    &c.Mongo.Collection,
		"DB_HOST":             &c.DB.Host,
		"DB_PORT":             &c.DB.Port,
		"DB_USER":             &c.DB.User,
		"DB_PASSWORD":         &c.DB.Password,
		"DB_NAME":             &c.DB.Name,
		"DB_SSLMODE":          &c.DB.SSLMode,
		"JWT_SECRET":          &c.JWT.Secret,
		"JWT_ISSUER":          &c.JWT.Issuer,
		"JWT_TTL":             &c.JWT.RawTTL,
		"AUTH_LOOKUP_TIMEOUT": &c.Auth.RawLookupTimeout,
		"REDIS_ADDR":          &c.Redis.Addr,
		"REDIS_PASSWORD":      &c.Redis.Password,
		"LOGIN_LIMIT_WINDOW":  &c.LoginLimit.RawWindow,
		"TELEGRAM_TOKEN":      &c.Telegram.Token,
		"LOG_LEVEL":           &c.Log.Level,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"PASSWORD_COST":        &c.Password.Cost,
		"REDIS_DB":             &c.Redis.DB,
		"LOGIN_LIMIT_ATTEMPTS": &c.LoginLimit.Attempts,
	}
	for key, dst := range ints {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}

	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("TELEGRAM_CHAT_ID: %w", err)
		}
		c.Telegram.ChatID = id
	}
	return nil
}

// Validate fills derived fields and rejects configurations the server must
// not start with.
func (c *Config) Validate() error {
	if err := c.ValidateStore(); err != nil {
		return err
	}

	if c.JWT.Secret == "" {
		if !c.Development() {
			return ErrMissingSigningKey
		}
		buf := make([]byte, minSecretLen)
		if _, err := rand.Read(buf); err != nil {
			return fmt.Errorf("generate development secret: %w", err)
		}
		c.JWT.Secret = hex.EncodeToString(buf)
		c.JWT.Generated = true
	} else if len(c.JWT.Secret) < minSecretLen && !c.Development() {
		return ErrWeakSigningKey
	}

	ttl, err := time.ParseDuration(c.JWT.RawTTL)
	if err != nil {
		return fmt.Errorf("jwt.ttl: %w", err)
	}
	if ttl <= 0 {
		return fmt.Errorf("jwt.ttl must be positive, got %s", ttl)
	}
	c.JWT.TTL = ttl

	if c.Auth.RawLookupTimeout != "" {
		d, err := time.ParseDuration(c.Auth.RawLookupTimeout)
		if err != nil {
			return fmt.Errorf("auth.lookup_timeout: %w", err)
		}
		c.Auth.LookupTimeout = d
	}

	if c.Redis.Addr != "" && c.LoginLimit.Attempts <= 0 {
		return ErrLoginLimitUnset
	}
	if c.LoginLimit.Attempts > 0 {
		w, err := time.ParseDuration(c.LoginLimit.RawWindow)
		if err != nil {
			return fmt.Errorf("login_limit.window: %w", err)
		}
		if w <= 0 {
			return fmt.Errorf("login_limit.window must be positive, got %s", w)
		}
		c.LoginLimit.Window = w
	}
	return nil
}

// ValidateStore checks the sections needed to open the credential store and
// hash passwords.
func (c *Config) ValidateStore() error {
	switch c.Server.Mode {
	case ModeDebug, ModeRelease, ModeTest:
	case "":
		c.Server.Mode = ModeRelease
	default:
		return fmt.Errorf("server.mode %q is not one of debug, release, test", c.Server.Mode)
	}

	switch c.Store.Driver {
	case DriverMemory, DriverMongo, DriverPostgres:
	default:
		return fmt.Errorf("store.driver %q is not one of memory, mongo, postgres", c.Store.Driver)
	}

	if c.Password.Cost < bcrypt.MinCost || c.Password.Cost > bcrypt.MaxCost {
		return fmt.Errorf("password.cost %d outside [%d, %d]", c.Password.Cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	return nil
}
