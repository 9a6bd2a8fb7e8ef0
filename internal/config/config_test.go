package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "DB_PATH", "DEFAULT_CURRENCY", "MEMBER_PAYMENT_ACCOUNT", "MATCH_FUZZY_THRESHOLD", "SHUTDOWN_TIMEOUT"} {
		t.Setenv(key, "")
	}
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != 8080 || cfg.Addr() != ":8080" {
		t.Errorf("Port = %d, Addr = %s", cfg.Port, cfg.Addr())
	}
	if cfg.DBPath != "./data/verein.db" {
		t.Errorf("DBPath = %s", cfg.DBPath)
	}
	if cfg.DefaultCurrency != "EUR" {
		t.Errorf("DefaultCurrency = %s", cfg.DefaultCurrency)
	}
	if cfg.MemberPaymentAccount != "4000" {
		t.Errorf("MemberPaymentAccount = %s", cfg.MemberPaymentAccount)
	}
	if cfg.FuzzyThreshold != 0.8 {
		t.Errorf("FuzzyThreshold = %v", cfg.FuzzyThreshold)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout = %v", cfg.ShutdownTimeout)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("PORT", "9090")
	t.Setenv("DEFAULT_CURRENCY", "chf")
	t.Setenv("MATCH_FUZZY_THRESHOLD", "0.65")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != 9090 {
		t.Errorf("Port = %d", cfg.Port)
	}
	if cfg.DefaultCurrency != "CHF" {
		t.Errorf("DefaultCurrency = %s", cfg.DefaultCurrency)
	}
	if cfg.FuzzyThreshold != 0.65 {
		t.Errorf("FuzzyThreshold = %v", cfg.FuzzyThreshold)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing secret", map[string]string{"JWT_SECRET": ""}, "JWT_SECRET"},
		{"bad port", map[string]string{"PORT": "http"}, "PORT"},
		{"port out of range", map[string]string{"PORT": "70000"}, "PORT"},
		{"bad currency", map[string]string{"DEFAULT_CURRENCY": "EURO"}, "DEFAULT_CURRENCY"},
		{"threshold too high", map[string]string{"MATCH_FUZZY_THRESHOLD": "1.5"}, "MATCH_FUZZY_THRESHOLD"},
		{"bad timeout", map[string]string{"SHUTDOWN_TIMEOUT": "soon"}, "SHUTDOWN_TIMEOUT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "test-secret")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil {
				t.Fatal("Expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Error %q does not mention %s", err, tt.want)
			}
		})
	}
}
