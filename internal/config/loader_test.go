package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Mihendy/pp-2025/internal/config"
	"github.com/Mihendy/pp-2025/internal/logutil"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(config.LoaderOptions{ModeFlag: "dev", Logger: logutil.Noop()})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Mode != "dev" {
		t.Errorf("expected mode dev, got %q", cfg.Mode)
	}
	if cfg.Auth.EmailDomain != "@urfu.me" {
		t.Errorf("expected default email domain @urfu.me, got %q", cfg.Auth.EmailDomain)
	}
	if cfg.Chat.HistoryLimit != 20 {
		t.Errorf("expected default history limit 20, got %d", cfg.Chat.HistoryLimit)
	}
	if cfg.Blob.Driver != "fs" {
		t.Errorf("expected dev blob driver fs, got %q", cfg.Blob.Driver)
	}
	if cfg.TLS.Mode != "off" {
		t.Errorf("expected dev tls mode off, got %q", cfg.TLS.Mode)
	}
}

func TestLoad_ProdRequiresSecret(t *testing.T) {
	_, err := config.Load(config.LoaderOptions{ModeFlag: "prod", Logger: logutil.Noop()})
	if err == nil {
		t.Fatal("expected error for prod mode without jwt secret")
	}
}

func TestLoad_FileOverlay(t *testing.T) {
	path := writeConfig(t, `
mode = "dev"
listen_addr = ":9999"

[auth]
email_domain = "@example.edu"
access_ttl_hours = 2

[chat]
history_limit = 50

[blob]
driver = "s3"

[blob.drivers.s3]
endpoint = "minio:9000"
bucket = "wopi"
`)

	cfg, err := config.Load(config.LoaderOptions{ConfigPath: path, Logger: logutil.Noop()})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.ListenAddr != ":9999" {
		t.Errorf("expected listen addr :9999, got %q", cfg.ListenAddr)
	}
	if cfg.Auth.EmailDomain != "@example.edu" {
		t.Errorf("expected email domain @example.edu, got %q", cfg.Auth.EmailDomain)
	}
	if cfg.Auth.AccessTTLHours != 2 {
		t.Errorf("expected access ttl 2, got %d", cfg.Auth.AccessTTLHours)
	}
	if cfg.Auth.RefreshTTLDays != 30 {
		t.Errorf("expected default refresh ttl 30, got %d", cfg.Auth.RefreshTTLDays)
	}
	if cfg.Chat.HistoryLimit != 50 {
		t.Errorf("expected history limit 50, got %d", cfg.Chat.HistoryLimit)
	}
	if cfg.Blob.Driver != "s3" {
		t.Errorf("expected blob driver s3, got %q", cfg.Blob.Driver)
	}
	if cfg.Blob.Drivers["s3"]["bucket"] != "wopi" {
		t.Errorf("expected s3 bucket option wopi, got %v", cfg.Blob.Drivers["s3"]["bucket"])
	}
}

func TestLoad_FlagOverridesFile(t *testing.T) {
	path := writeConfig(t, `
mode = "dev"
listen_addr = ":9999"
`)

	listen := ":7777"
	cfg, err := config.Load(config.LoaderOptions{
		ConfigPath:    path,
		FlagOverrides: config.FlagOverrides{ListenAddr: &listen},
		Logger:        logutil.Noop(),
	})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ListenAddr != ":7777" {
		t.Errorf("expected flag to win, got %q", cfg.ListenAddr)
	}
}

func TestLoad_InvalidEnums(t *testing.T) {
	cases := []string{
		"mode = \"dev\"\n[store]\ndriver = \"postgres\"\n",
		"mode = \"dev\"\n[blob]\ndriver = \"ftp\"\n",
		"mode = \"dev\"\n[tls]\nmode = \"maybe\"\n",
		"mode = \"dev\"\n[logging]\nlevel = \"loud\"\n",
		"mode = \"dev\"\n[auth]\nemail_domain = \"urfu.me\"\n",
	}
	for _, content := range cases {
		path := writeConfig(t, content)
		if _, err := config.Load(config.LoaderOptions{ConfigPath: path, Logger: logutil.Noop()}); err == nil {
			t.Errorf("expected error for config %q", content)
		}
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(config.LoaderOptions{ConfigPath: "/does/not/exist.toml", Logger: logutil.Noop()})
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestRedacted(t *testing.T) {
	cfg := config.DevConfig()
	cfg.Auth.JWTSecret = "supersecret"
	cfg.Blob.Drivers = map[string]map[string]any{
		"s3": {"endpoint": "minio:9000", "secret_key": "hunter2"},
	}

	red := cfg.Redacted()
	if red.Auth.JWTSecret != "[redacted]" {
		t.Errorf("expected redacted jwt secret, got %q", red.Auth.JWTSecret)
	}
	if red.Blob.Drivers["s3"]["secret_key"] != "[redacted]" {
		t.Errorf("expected redacted secret_key, got %v", red.Blob.Drivers["s3"]["secret_key"])
	}
	if red.Blob.Drivers["s3"]["endpoint"] != "minio:9000" {
		t.Errorf("expected endpoint preserved, got %v", red.Blob.Drivers["s3"]["endpoint"])
	}
	if cfg.Auth.JWTSecret != "supersecret" {
		t.Error("Redacted must not mutate the original")
	}
}
