package config

import "testing"

type testConfig struct {
	Port        string `env:"TEST_PORT" envDefault:"8083"`
	Granularity int    `env:"TEST_GRANULARITY" envDefault:"30"`
	Required    string `env:"TEST_REQUIRED,required"`
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_REQUIRED", "x")
	t.Setenv("TEST_GRANULARITY", "15")

	var cfg testConfig
	if err := Load(&cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8083" {
		t.Fatalf("expected default port, got %q", cfg.Port)
	}
	if cfg.Granularity != 15 {
		t.Fatalf("expected granularity 15, got %d", cfg.Granularity)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	var cfg struct {
		Value string `env:"MICITA_TEST_NEVER_SET,required"`
	}
	if err := Load(&cfg); err == nil {
		t.Fatal("expected error for missing required var")
	}
}

func TestValidPort(t *testing.T) {
	if err := ValidPort("PORT", "9090"); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if err := ValidPort("GRPC_PORT", ""); err != nil {
		t.Fatalf("empty port disables the listener: %v", err)
	}
	for _, bad := range []string{"70000", "0", "http"} {
		if err := ValidPort("PORT", bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestBool(t *testing.T) {
	t.Setenv("TEST_FLAG", "yes")
	if !Bool("TEST_FLAG", false) {
		t.Fatal("expected true")
	}
	if !Bool("TEST_FLAG_UNSET", true) {
		t.Fatal("expected fallback")
	}
}
