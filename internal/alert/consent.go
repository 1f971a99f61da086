package alert

import (
	"os"
	"path/filepath"
	"strings"

	"nyordd/internal/notif"
)

const consentFile = "consent"

// Consent persists the tri-state alert permission as a single word on disk.
// Reads always hit the file: an external edit (or deletion, which means
// "default") is picked up at the next decision point.
type Consent struct {
	dir string
}

func NewConsent(stateDir string) *Consent {
	return &Consent{dir: stateDir}
}

func (c *Consent) path() string { return filepath.Join(c.dir, consentFile) }

// Get returns the persisted permission. Missing or unreadable file reads as
// default, never as an error.
func (c *Consent) Get() notif.Permission {
	if c == nil || c.dir == "" {
		return notif.PermissionDefault
	}
	b, err := os.ReadFile(c.path())
	if err != nil {
		return notif.PermissionDefault
	}
	return notif.ParsePermission(strings.TrimSpace(string(b)))
}

// Set persists the permission. Setting default removes the file.
func (c *Consent) Set(p notif.Permission) error {
	if c == nil || c.dir == "" {
		return nil
	}
	if p == notif.PermissionDefault {
		if err := os.Remove(c.path()); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}
	if err := os.MkdirAll(c.dir, 0o700); err != nil {
		return err
	}
	tmp := c.path() + ".tmp"
	if err := os.WriteFile(tmp, []byte(string(p)+"\n"), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, c.path())
}
