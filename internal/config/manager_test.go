package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

const sampleJSON = `{
  "server": {"base_url": "https://bank.example", "token": "t0"},
  "logging": {"level": "DEBUG", "console": true,
    "file": {"enabled": false, "path": ""},
    "toast": {"enabled": true, "min_level": "WARN", "rate_per_sec": 2}},
  "storage": {"driver": "file", "path": "./state"},
  "feed": {"enabled": true, "stream": true, "poll_interval": "10s"},
  "alerts": {"enabled": true, "auto_close": "5s"},
  "popups": {"max_visible": 3, "auto_hide": "6s"},
  "push": {"enabled": false},
  "agent": {"unit": "nyord-agent.service"},
  "history": {"max_records": 100}
}`

const sampleYAML = `server:
  base_url: https://bank.example
  token: t0
logging:
  level: DEBUG
  console: true
  file:
    enabled: false
    path: ""
  toast:
    enabled: true
    min_level: WARN
    rate_per_sec: 2
storage:
  driver: file
  path: ./state
feed:
  enabled: true
  stream: true
  poll_interval: 10s
alerts:
  enabled: true
  auto_close: 5s
popups:
  max_visible: 3
  auto_hide: 6s
push:
  enabled: false
agent:
  unit: nyord-agent.service
history:
  max_records: 100
`

func writeTemp(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestParseJSONAndYAMLEquivalent(t *testing.T) {
	jp := writeTemp(t, "cfg.json", sampleJSON)
	yp := writeTemp(t, "cfg.yaml", sampleYAML)

	jm := NewManager(jp)
	jc, err := jm.Parse()
	if err != nil {
		t.Fatalf("parse json: %v", err)
	}
	ym := NewManager(yp)
	yc, err := ym.Parse()
	if err != nil {
		t.Fatalf("parse yaml: %v", err)
	}
	if !reflect.DeepEqual(jc, yc) {
		t.Fatalf("json and yaml configs differ:\n%+v\n%+v", jc, yc)
	}
	if jc.Server.BaseURL != "https://bank.example" {
		t.Fatalf("unexpected base_url: %q", jc.Server.BaseURL)
	}
	if !jc.Logging.Toast.Enabled || jc.Logging.Toast.RatePerSec != 2 {
		t.Fatalf("toast sink config not parsed: %+v", jc.Logging.Toast)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	p := writeTemp(t, "cfg.json", `{"server": {"base_url": "x"}, "bogus": 1}`)
	if _, err := NewManager(p).Parse(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	p := writeTemp(t, "cfg.json", `{"server": {"base_url": "x"}}{"again": true}`)
	if _, err := NewManager(p).Parse(); err == nil {
		t.Fatal("expected error for trailing data")
	}
}

func TestParseDurationField(t *testing.T) {
	tests := []struct {
		raw     string
		wantErr bool
	}{
		{"", false},
		{"10s", false},
		{"1m30s", false},
		{"-5s", true},
		{"banana", true},
	}
	for _, tt := range tests {
		_, err := ParseDurationField("x", tt.raw)
		if (err != nil) != tt.wantErr {
			t.Fatalf("%q: err=%v wantErr=%v", tt.raw, err, tt.wantErr)
		}
	}
}

func TestBearerTokenFileWins(t *testing.T) {
	tf := writeTemp(t, "token", "  secret-from-file\n")
	s := ServerConfig{Token: "inline", TokenFile: tf}
	tok, err := s.BearerToken()
	if err != nil {
		t.Fatalf("BearerToken: %v", err)
	}
	if tok != "secret-from-file" {
		t.Fatalf("got %q", tok)
	}

	s = ServerConfig{Token: "inline"}
	tok, err = s.BearerToken()
	if err != nil || tok != "inline" {
		t.Fatalf("got %q err=%v", tok, err)
	}
}
