package config

import (
	"testing"
	"time"
)

func localConfig() Config {
	return Config{
		App:   AppConfig{Env: "local", Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "crm"},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth:  AuthConfig{JWTSecret: "secret"},
	}
}

func TestLoad_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := localConfig()
	c.App.Env = "production"
	c.Auth.JWTIssuer = "iss"
	c.Auth.JWTAudience = "aud"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := localConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.DB.Driver != "pgx" {
		t.Fatalf("expected pgx default driver, got %q", c.DB.Driver)
	}
	if c.Calls.RingTimeout != 45*time.Second {
		t.Fatalf("expected 45s ring timeout, got %s", c.Calls.RingTimeout)
	}
	if c.Presence.HeartbeatInterval != 30*time.Second {
		t.Fatalf("expected 30s heartbeat, got %s", c.Presence.HeartbeatInterval)
	}
	if c.Signaling.Topic != "call-signaling" || c.Signaling.FeedTopic != "call-sessions" {
		t.Fatalf("unexpected topics: %+v", c.Signaling)
	}
	if len(c.Media.STUNURLs) != 1 || c.Media.Source != "synthetic" {
		t.Fatalf("unexpected media defaults: %+v", c.Media)
	}
}

func TestValidate_SQLiteNeedsPathButNotHost(t *testing.T) {
	c := Config{
		App:       AppConfig{Env: "dev", Port: 8080},
		DB:        DBConfig{Driver: "sqlite"},
		Auth:      AuthConfig{JWTSecret: "secret"},
		Signaling: SignalingConfig{Backend: "memory"},
	}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for missing DB_PATH")
	}

	c.DB.Path = "/tmp/crm.db"
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DatabaseDSN() != "/tmp/crm.db" {
		t.Fatalf("expected sqlite dsn to be the path, got %q", c.DatabaseDSN())
	}
}

func TestValidate_MemorySignalingRejectedInProduction(t *testing.T) {
	c := localConfig()
	c.App.Env = "production"
	c.DB.SSLMode = "require"
	c.Auth.JWTIssuer = "iss"
	c.Auth.JWTAudience = "aud"
	c.Signaling.Backend = "memory"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for memory signaling in production")
	}
}

func TestValidate_StaleAfterMustExceedRingTimeout(t *testing.T) {
	c := localConfig()
	c.Calls.RingTimeout = 3 * time.Minute
	c.Calls.StaleAfter = time.Minute
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error when stale window is shorter than ring timeout")
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" stun:a:1, ,stun:b:2 ")
	if len(got) != 2 || got[0] != "stun:a:1" || got[1] != "stun:b:2" {
		t.Fatalf("unexpected split: %#v", got)
	}
}
