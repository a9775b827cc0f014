package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"jobtrail/internal/config"
)

func TestDefaultValues(t *testing.T) {
	cfg := config.Default()
	if cfg.Reminders.FollowUpDays != 14 {
		t.Fatalf("expected follow_up_days 14, got %d", cfg.Reminders.FollowUpDays)
	}
	if cfg.Reminders.CooldownDays != 7 {
		t.Fatalf("expected cooldown_days 7, got %d", cfg.Reminders.CooldownDays)
	}
	if cfg.Reminders.BatchSize != 100 {
		t.Fatalf("expected batch_size 100, got %d", cfg.Reminders.BatchSize)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}

func TestFromYAMLOverridesDefaults(t *testing.T) {
	cfg, err := config.FromYAML([]byte("reminders:\n  follow_up_days: 21\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Reminders.FollowUpDays != 21 {
		t.Fatalf("expected override 21, got %d", cfg.Reminders.FollowUpDays)
	}
	if cfg.Reminders.CooldownDays != 7 {
		t.Fatalf("unset values keep defaults, got %d", cfg.Reminders.CooldownDays)
	}
}

func TestFromYAMLRejectsInvalid(t *testing.T) {
	if _, err := config.FromYAML([]byte("reminders:\n  follow_up_days: -3\n")); err == nil {
		t.Fatalf("expected validation error for negative follow_up_days")
	}
	if _, err := config.FromYAML([]byte("notifications:\n  webhook:\n    secret: s3cret\n")); err == nil {
		t.Fatalf("expected validation error for secret without url")
	}
	if _, err := config.FromYAML([]byte(":\tnot yaml")); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.LoadOptional(dir)
	if err != nil {
		t.Fatalf("missing file should fall back to defaults: %v", err)
	}
	if cfg.Reminders.FollowUpDays != 14 {
		t.Fatalf("expected defaults, got %d", cfg.Reminders.FollowUpDays)
	}

	path := filepath.Join(dir, "jobtrail.yml")
	if err := os.WriteFile(path, []byte("reminders:\n  cooldown_days: 3\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err = config.LoadOptional(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Reminders.CooldownDays != 3 {
		t.Fatalf("expected cooldown_days 3, got %d", cfg.Reminders.CooldownDays)
	}
}
