package server

import (
	"crypto/tls"
	"path/filepath"
	"testing"

	"github.com/Mihendy/pp-2025/internal/config"
)

func TestExtractHostname(t *testing.T) {
	cases := []struct {
		origin string
		want   string
	}{
		{"https://collab.urfu.me", "collab.urfu.me"},
		{"https://collab.urfu.me:8443", "collab.urfu.me"},
		{"http://localhost:8000", "localhost"},
		{"http://localhost:8000/", "localhost"},
		{"https://[::1]:8443", "[::1]"},
	}
	for _, tc := range cases {
		if got := extractHostname(tc.origin); got != tc.want {
			t.Errorf("extractHostname(%q) = %q, want %q", tc.origin, got, tc.want)
		}
	}
}

func TestExtractProviderFQDN(t *testing.T) {
	if got := extractProviderFQDN("https://collab.urfu.me:8443/"); got != "collab.urfu.me:8443" {
		t.Errorf("expected host:port, got %q", got)
	}
}

func TestValidateDeps(t *testing.T) {
	if err := validateDeps(nil); err == nil {
		t.Error("expected error for nil deps")
	}
	if err := validateDeps(&Deps{}); err == nil {
		t.Error("expected error for empty deps")
	}
}

func TestSelfSignedCertificate_GeneratedAndReloaded(t *testing.T) {
	dir := t.TempDir()
	cfg := &config.TLSConfig{Mode: "selfsigned", SelfSignedDir: dir}
	mgr := NewTLSManager(cfg, nil)

	tlsCfg, err := mgr.GetTLSConfig("collab.urfu.me")
	if err != nil {
		t.Fatalf("GetTLSConfig failed: %v", err)
	}
	if len(tlsCfg.Certificates) != 1 {
		t.Fatalf("expected one certificate, got %d", len(tlsCfg.Certificates))
	}
	if tlsCfg.MinVersion != tls.VersionTLS12 {
		t.Error("expected minimum TLS 1.2")
	}

	// A second call loads the stored pair instead of regenerating.
	again, err := NewTLSManager(cfg, nil).GetTLSConfig("collab.urfu.me")
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if len(again.Certificates) != 1 {
		t.Fatal("expected reloaded certificate")
	}

	if _, err := tls.LoadX509KeyPair(filepath.Join(dir, "cert.pem"), filepath.Join(dir, "key.pem")); err != nil {
		t.Errorf("stored key pair should parse: %v", err)
	}
}

func TestTLSMode_Invalid(t *testing.T) {
	mgr := NewTLSManager(&config.TLSConfig{Mode: "bogus"}, nil)
	if _, err := mgr.GetTLSConfig("localhost"); err == nil {
		t.Error("expected error for invalid mode")
	}
}

func TestStaticMode_RequiresFiles(t *testing.T) {
	mgr := NewTLSManager(&config.TLSConfig{Mode: "static"}, nil)
	if _, err := mgr.GetTLSConfig("localhost"); err == nil {
		t.Error("expected error when cert_file and key_file are missing")
	}
}
