package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the call gateway process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Calls     CallsConfig
	Presence  PresenceConfig
	Signaling SignalingConfig
	Media     MediaConfig
}

type AppConfig struct {
	Env      string
	Port     int
	LogLevel string
}

type DBConfig struct {
	// Driver is "pgx" (Postgres) or "sqlite" (local runs and tests).
	Driver string

	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode is kept explicit for production posture.
	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string

	// Path is the SQLite database file; only used with the sqlite driver.
	Path string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

type CallsConfig struct {
	// RingTimeout moves an unanswered outgoing call to missed. Zero disables it.
	RingTimeout time.Duration
	// StaleAfter is the age after which the reaper marks pending/ringing rows missed.
	StaleAfter time.Duration
	// ReaperSchedule is a cron spec for the stale session and presence sweep.
	ReaperSchedule string
	// GuardTTL bounds how long the cross-instance single-call guard may be held.
	GuardTTL time.Duration
}

type PresenceConfig struct {
	HeartbeatInterval time.Duration
	StaleAfter        time.Duration
}

type SignalingConfig struct {
	// Backend is "redis" or "memory" (single-instance).
	Backend   string
	Topic     string
	FeedTopic string
}

type MediaConfig struct {
	// Source is "synthetic" or "device".
	Source                 string
	STUNURLs               []string
	ICEDisconnectedTimeout time.Duration
	ICEFailedTimeout       time.Duration
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}
	c.App.LogLevel = strings.TrimSpace(os.Getenv("LOG_LEVEL"))

	c.DB.Driver = strings.TrimSpace(os.Getenv("DB_DRIVER"))
	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := optionalInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))
	c.DB.Path = strings.TrimSpace(os.Getenv("DB_PATH"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := optionalInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in Validate() based on env.
	c.Auth.AccessTokenTTL = mustDuration("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = mustDuration("JWT_REFRESH_TTL")

	c.Calls.RingTimeout = mustDuration("CALL_RING_TIMEOUT")
	c.Calls.StaleAfter = mustDuration("CALL_STALE_AFTER")
	c.Calls.ReaperSchedule = strings.TrimSpace(os.Getenv("CALL_REAPER_SCHEDULE"))
	c.Calls.GuardTTL = mustDuration("CALL_GUARD_TTL")

	c.Presence.HeartbeatInterval = mustDuration("PRESENCE_HEARTBEAT")
	c.Presence.StaleAfter = mustDuration("PRESENCE_STALE_AFTER")

	c.Signaling.Backend = strings.TrimSpace(os.Getenv("SIGNALING_BACKEND"))
	c.Signaling.Topic = strings.TrimSpace(os.Getenv("SIGNALING_TOPIC"))
	c.Signaling.FeedTopic = strings.TrimSpace(os.Getenv("SESSION_FEED_TOPIC"))

	c.Media.Source = strings.TrimSpace(os.Getenv("MEDIA_SOURCE"))
	c.Media.STUNURLs = splitList(os.Getenv("STUN_URLS"))
	c.Media.ICEDisconnectedTimeout = mustDuration("ICE_DISCONNECTED_TIMEOUT")
	c.Media.ICEFailedTimeout = mustDuration("ICE_FAILED_TIMEOUT")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks required values and fills defaults in place.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	errs = append(errs, c.validateDB()...)
	errs = append(errs, c.validateSignaling()...)

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	if c.Calls.RingTimeout < 0 {
		errs = append(errs, errors.New("CALL_RING_TIMEOUT must not be negative"))
	} else if c.Calls.RingTimeout == 0 {
		c.Calls.RingTimeout = 45 * time.Second
	}
	if c.Calls.StaleAfter <= 0 {
		c.Calls.StaleAfter = 2 * time.Minute
	}
	if c.Calls.StaleAfter <= c.Calls.RingTimeout {
		errs = append(errs, errors.New("CALL_STALE_AFTER must be greater than CALL_RING_TIMEOUT"))
	}
	if c.Calls.ReaperSchedule == "" {
		c.Calls.ReaperSchedule = "@every 1m"
	}
	if c.Calls.GuardTTL <= 0 {
		c.Calls.GuardTTL = 4 * time.Hour
	}

	if c.Presence.HeartbeatInterval <= 0 {
		c.Presence.HeartbeatInterval = 30 * time.Second
	}
	if c.Presence.StaleAfter <= 0 {
		c.Presence.StaleAfter = 3 * c.Presence.HeartbeatInterval
	}
	if c.Presence.StaleAfter <= c.Presence.HeartbeatInterval {
		errs = append(errs, errors.New("PRESENCE_STALE_AFTER must be greater than PRESENCE_HEARTBEAT"))
	}

	switch c.Media.Source {
	case "":
		c.Media.Source = "synthetic"
	case "synthetic", "device":
	default:
		errs = append(errs, fmt.Errorf("MEDIA_SOURCE must be synthetic or device, got %q", c.Media.Source))
	}
	if len(c.Media.STUNURLs) == 0 {
		c.Media.STUNURLs = []string{"stun:stun.l.google.com:19302"}
	}
	if c.Media.ICEDisconnectedTimeout <= 0 {
		c.Media.ICEDisconnectedTimeout = 5 * time.Second
	}
	if c.Media.ICEFailedTimeout <= 0 {
		c.Media.ICEFailedTimeout = 25 * time.Second
	}

	return joinErrors(errs)
}

func (c *Config) validateDB() []error {
	var errs []error
	switch c.DB.Driver {
	case "":
		c.DB.Driver = "pgx"
	case "pgx", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER must be pgx or sqlite, got %q", c.DB.Driver))
		return errs
	}

	if c.DB.Driver == "sqlite" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_DRIVER sqlite is not allowed in production"))
		}
		if c.DB.Path == "" {
			errs = append(errs, errors.New("DB_PATH is required for the sqlite driver"))
		}
		return errs
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if c.DB.SSLMode == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}
	return errs
}

func (c *Config) validateSignaling() []error {
	var errs []error
	switch c.Signaling.Backend {
	case "":
		c.Signaling.Backend = "redis"
	case "redis", "memory":
	default:
		errs = append(errs, fmt.Errorf("SIGNALING_BACKEND must be redis or memory, got %q", c.Signaling.Backend))
	}
	if c.Signaling.Backend == "memory" && c.IsProduction() {
		errs = append(errs, errors.New("SIGNALING_BACKEND memory is not allowed in production"))
	}
	if c.Signaling.Topic == "" {
		c.Signaling.Topic = "call-signaling"
	}
	if c.Signaling.FeedTopic == "" {
		c.Signaling.FeedTopic = "call-sessions"
	}
	if c.Signaling.Topic == c.Signaling.FeedTopic {
		errs = append(errs, errors.New("SIGNALING_TOPIC and SESSION_FEED_TOPIC must differ"))
	}

	if c.Signaling.Backend == "redis" {
		if c.Redis.Host == "" {
			errs = append(errs, errors.New("REDIS_HOST is required"))
		}
		if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
			errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
		}
	}
	return errs
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) UsesRedis() bool {
	return c.Signaling.Backend == "redis"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

// DatabaseDSN returns the driver-specific connection string.
// Avoid logging it; it may contain secrets.
func (c Config) DatabaseDSN() string {
	if c.DB.Driver == "sqlite" {
		return c.DB.Path
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalInt(key string) (int, error) {
	if strings.TrimSpace(os.Getenv(key)) == "" {
		return 0, nil
	}
	return mustInt(key)
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
