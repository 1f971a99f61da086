package config

import (
	"fmt"
	"os"
	"strings"
)

// BearerToken resolves the server credential. TokenFile wins over the inline
// Token so the secret can live outside the config file.
func (s ServerConfig) BearerToken() (string, error) {
	if p := strings.TrimSpace(s.TokenFile); p != "" {
		b, err := os.ReadFile(p)
		if err != nil {
			return "", fmt.Errorf("server.token_file: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	return strings.TrimSpace(s.Token), nil
}
