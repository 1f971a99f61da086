package config

type Config struct {
	Server  ServerConfig  `json:"server"`
	Logging LoggingConfig `json:"logging"`

	// Storage backs the persisted record list and the router's processed-set.
	Storage StorageConfig `json:"storage"`

	Feed   FeedConfig   `json:"feed"`
	Alerts AlertsConfig `json:"alerts"`
	Popups PopupsConfig `json:"popups"`
	Push   PushConfig   `json:"push"`
	Agent  AgentConfig  `json:"agent"`

	History HistoryConfig `json:"history"`
	Pprof   PprofConfig   `json:"pprof,omitempty"`
}

// ServerConfig points at the bank's API. TokenFile is preferred over Token
// so the bearer credential stays out of the config file proper.
type ServerConfig struct {
	BaseURL   string `json:"base_url"`
	WSURL     string `json:"ws_url,omitempty"`
	Token     string `json:"token,omitempty"`
	TokenFile string `json:"token_file,omitempty"`
}

type LoggingConfig struct {
	Level   string       `json:"level"`
	Console bool         `json:"console"`
	File    LoggingFile  `json:"file"`
	Toast   LoggingToast `json:"toast"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingToast surfaces warn+ log lines in the in-app toast queue.
type LoggingToast struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig controls the persistence layer.
//
// Driver values:
//   - "file": two JSON blobs plus a processed-id journal
//   - "sqlite": SQLite database file
//
// Example:
//
//	"storage": { "driver": "file", "path": "./nyordd_state" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// FeedConfig controls the remote feed client.
//
// All durations are Go duration strings (e.g. "10s", "1m").
type FeedConfig struct {
	Enabled bool `json:"enabled"`

	// Stream enables the WebSocket stream; when it cannot be established the
	// client falls back to polling regardless of this flag being true.
	Stream bool `json:"stream"`

	// PollInterval is the fallback polling cadence (default "10s").
	PollInterval string `json:"poll_interval,omitempty"`

	// RefreshSpec is a cron spec for the periodic full refresh
	// (default "@every 30s").
	RefreshSpec string `json:"refresh_spec,omitempty"`

	ReconnectMax int `json:"reconnect_max,omitempty"` // default 3
}

// AlertsConfig controls the native alert channel.
type AlertsConfig struct {
	Enabled bool `json:"enabled"`

	// StateDir holds the consent file (the persisted tri-state permission).
	StateDir string `json:"state_dir,omitempty"`

	// AutoClose is how long non-interactive alerts stay up (default "5s").
	AutoClose string `json:"auto_close,omitempty"`

	RatePerSec int `json:"rate_per_sec,omitempty"` // default 3
}

type PopupsConfig struct {
	// MaxVisible bounds the popup queue (default 3).
	MaxVisible int `json:"max_visible,omitempty"`
	// AutoHide applies to all categories except loan/kyc (default "6s").
	AutoHide string `json:"auto_hide,omitempty"`
}

type PushConfig struct {
	Enabled bool `json:"enabled"`
	// VAPIDPublicKey is the server's application key, URL-safe base64.
	VAPIDPublicKey string `json:"vapid_public_key,omitempty"`
}

// AgentConfig locates the background agent.
type AgentConfig struct {
	// Unit is the systemd user unit name (default "nyord-agent.service").
	Unit string `json:"unit,omitempty"`
	// Socket is the agent's unix control socket path.
	Socket string `json:"socket,omitempty"`
}

// HistoryConfig bounds the persisted record list.
type HistoryConfig struct {
	// MaxRecords caps the stored list (default 200, 0 = default).
	MaxRecords int `json:"max_records,omitempty"`
	// MaxAge evicts older records (Go duration string, default "720h").
	MaxAge string `json:"max_age,omitempty"`
	// EvictSpec is a cron spec for the eviction pass (default "@every 1h").
	EvictSpec string `json:"evict_spec,omitempty"`
}

// PprofConfig controls the optional pprof HTTP server.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:6060").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type PprofConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default: "127.0.0.1:6060"
	Token         string `json:"token,omitempty"` // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
}
