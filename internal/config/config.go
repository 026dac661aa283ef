// Package config provides configuration loading and validation.
package config

// Config holds the server configuration.
type Config struct {
	// Mode is the effective operating mode: dev or prod.
	Mode string `json:"mode"`

	// ListenAddr is the address to listen on. Example: ":8000"
	ListenAddr string `json:"listen_addr"`

	// ExternalOrigin is the public origin (scheme + host + port) for this
	// instance. The document bridge embeds it in editor-session URLs.
	ExternalOrigin string `json:"external_origin"`

	// DataDir is the base directory for persistent state (sqlite db,
	// fs blobs, generated certificates).
	DataDir string `json:"data_dir"`

	Auth    AuthConfig    `json:"auth"`
	Store   StoreConfig   `json:"store"`
	Blob    BlobConfig    `json:"blob"`
	Chat    ChatConfig    `json:"chat"`
	Wopi    WopiConfig    `json:"wopi"`
	TLS     TLSConfig     `json:"tls"`
	Logging LoggingConfig `json:"logging"`
}

// AuthConfig holds credential and token settings.
type AuthConfig struct {
	// EmailDomain is the required suffix for registration emails.
	EmailDomain string `json:"email_domain"`

	// JWTSecret is the HMAC key for signing tokens. Required in prod mode.
	JWTSecret string `json:"jwt_secret"`

	// AccessTTLHours is the access token lifetime in hours.
	AccessTTLHours int `json:"access_ttl_hours"`

	// RefreshTTLDays is the refresh token lifetime in days.
	RefreshTTLDays int `json:"refresh_ttl_days"`

	// BcryptCost is the bcrypt cost factor for password hashing.
	BcryptCost int `json:"bcrypt_cost"`

	// LoginRatePerMinute limits login/register attempts per client IP.
	LoginRatePerMinute int `json:"login_rate_per_minute"`
}

// StoreConfig selects and configures the relational store driver.
type StoreConfig struct {
	// Driver is one of: sqlite, memory.
	Driver string `json:"driver"`
}

// BlobConfig selects and configures the object storage driver.
type BlobConfig struct {
	// Driver is one of: fs, s3.
	Driver string `json:"driver"`

	// Drivers holds driver-specific option maps keyed by driver name,
	// e.g. [blob.drivers.s3] endpoint, access_key, secret_key, bucket.
	Drivers map[string]map[string]any `json:"drivers"`
}

// ChatConfig holds chat settings.
type ChatConfig struct {
	// HistoryLimit is the number of backlog messages sent on connect.
	HistoryLimit int `json:"history_limit"`
}

// WopiConfig holds document bridge settings.
type WopiConfig struct {
	// AllowedExtensions is the extension allow-list for collaborative
	// editing. Empty means the built-in office-document defaults.
	AllowedExtensions []string `json:"allowed_extensions"`
}

// TLSConfig holds TLS-related settings.
type TLSConfig struct {
	// Mode is one of: off, static, selfsigned, acme
	Mode string `json:"mode"`

	// CertFile and KeyFile for static mode
	CertFile string `json:"cert_file"`
	KeyFile  string `json:"key_file"`

	// SelfSignedDir is where generated certificates are stored.
	SelfSignedDir string `json:"self_signed_dir"`

	// ACME settings for acme mode.
	ACME ACMEConfig `json:"acme"`
}

// ACMEConfig holds ACME certificate settings.
type ACMEConfig struct {
	Email      string `json:"email"`
	Domain     string `json:"domain"`
	Directory  string `json:"directory"`
	StorageDir string `json:"storage_dir"`
	UseStaging bool   `json:"use_staging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is one of: debug, info, warn, error
	Level string `json:"level"`
}

// Redacted returns a copy of the config with secrets blanked for logging.
func (c *Config) Redacted() Config {
	out := *c
	if out.Auth.JWTSecret != "" {
		out.Auth.JWTSecret = "[redacted]"
	}
	redacted := make(map[string]map[string]any, len(out.Blob.Drivers))
	for name, opts := range out.Blob.Drivers {
		ro := make(map[string]any, len(opts))
		for k, v := range opts {
			if k == "secret_key" || k == "access_key" || k == "password" {
				ro[k] = "[redacted]"
			} else {
				ro[k] = v
			}
		}
		redacted[name] = ro
	}
	out.Blob.Drivers = redacted
	return out
}
