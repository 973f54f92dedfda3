package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNormalizeMode(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ModeRules},
		{"rules", ModeRules},
		{"reglas", ModeRules},
		{"external", ModeExternal},
		{"gptoss", ModeExternal},
		{"advanced", ModeExternal},
		{"algo-raro", ModeRules},
	}
	for _, tc := range cases {
		if got := NormalizeMode(tc.in); got != tc.want {
			t.Fatalf("NormalizeMode(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	for _, key := range []string{"INVEST_MODE", "MODEL_PROVIDER", "ESTIMATION_EXAMPLE_COUNT", "DB_PATH"} {
		t.Setenv(key, "")
	}

	cfg := LoadConfig()
	if cfg.Mode != ModeRules {
		t.Fatalf("expected default mode rules, got %q", cfg.Mode)
	}
	if cfg.ModelProvider != "lmstudio" {
		t.Fatalf("expected default provider lmstudio, got %q", cfg.ModelProvider)
	}
	if cfg.ExampleCount != 3 {
		t.Fatalf("expected default example count 3, got %d", cfg.ExampleCount)
	}
	if cfg.DBPath == "" || cfg.OutputPath == "" {
		t.Fatalf("expected default paths, got %+v", cfg)
	}
	if cfg.SlackConfigured() {
		t.Fatalf("slack must not be configured by default")
	}
}

func TestLoadConfigYAMLAndEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `invest_mode: external
model_provider: lmstudio
model_name: mi-modelo
estimation_example_count: 5
db_path: /tmp/from-yaml.db
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("INVEST_MODE", "reglas")
	t.Setenv("DB_PATH", "/tmp/from-env.db")
	t.Setenv("MODEL_PROVIDER", "")
	t.Setenv("ESTIMATION_EXAMPLE_COUNT", "")

	cfg := LoadConfig()
	if cfg.Mode != ModeRules {
		t.Fatalf("env must override yaml, got mode %q", cfg.Mode)
	}
	if cfg.DBPath != "/tmp/from-env.db" {
		t.Fatalf("env must override yaml, got db path %q", cfg.DBPath)
	}
	if cfg.ModelName != "mi-modelo" || cfg.ExampleCount != 5 {
		t.Fatalf("yaml values lost: %+v", cfg)
	}
}

func TestSlackConfigured(t *testing.T) {
	cfg := Config{SlackBotToken: "xoxb-x"}
	if cfg.SlackConfigured() {
		t.Fatalf("token without channel must not count as configured")
	}
	cfg.SlackChannelID = "C123"
	if !cfg.SlackConfigured() {
		t.Fatalf("expected slack to be configured")
	}
}
