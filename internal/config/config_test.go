package config_test

import (
	"testing"
	"time"

	"taskdesk/internal/config"
)

func TestDefaults(t *testing.T) {
	cfg := config.Default()
	if cfg.Server.Addr != ":8080" || cfg.Server.BasePath != "/v1" {
		t.Fatalf("server defaults: %+v", cfg.Server)
	}
	if cfg.Auth.AccessTTL.Std() != 15*time.Minute {
		t.Fatalf("access ttl = %s", cfg.Auth.AccessTTL.Std())
	}
	if cfg.Auth.RefreshedAccessTTL.Std() != time.Minute {
		t.Fatalf("refreshed access ttl = %s", cfg.Auth.RefreshedAccessTTL.Std())
	}
	if cfg.Auth.RefreshTTL.Std() != 7*24*time.Hour {
		t.Fatalf("refresh ttl = %s", cfg.Auth.RefreshTTL.Std())
	}
	if cfg.Auth.CookieName != "jwt" || !cfg.CookieSecure() {
		t.Fatalf("cookie defaults: %+v", cfg.Auth)
	}
}

func TestFromYAMLOverrides(t *testing.T) {
	cfg, err := config.FromYAML([]byte(`
server:
  addr: ":9999"
auth:
  access_ttl: 30m
  cookie_secure: false
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Server.Addr != ":9999" {
		t.Fatalf("addr = %s", cfg.Server.Addr)
	}
	if cfg.Auth.AccessTTL.Std() != 30*time.Minute {
		t.Fatalf("access ttl = %s", cfg.Auth.AccessTTL.Std())
	}
	if cfg.CookieSecure() {
		t.Fatal("cookie_secure override lost")
	}
	// Untouched fields keep defaults.
	if cfg.Auth.RefreshTTL.Std() != 7*24*time.Hour {
		t.Fatalf("refresh ttl = %s", cfg.Auth.RefreshTTL.Std())
	}
}

func TestFromYAMLRejectsBadDuration(t *testing.T) {
	if _, err := config.FromYAML([]byte("auth:\n  access_ttl: soon\n")); err == nil {
		t.Fatal("want parse error")
	}
}

func TestGenerateDefaultRoundTrips(t *testing.T) {
	cfg, err := config.FromYAML([]byte(config.GenerateDefault()))
	if err != nil {
		t.Fatalf("generated config should parse: %v", err)
	}
	if cfg.Auth.AccessTTL.Std() != 15*time.Minute {
		t.Fatalf("generated access ttl = %s", cfg.Auth.AccessTTL.Std())
	}
}
