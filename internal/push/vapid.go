package push

import (
	"encoding/base64"
	"errors"
	"strings"
)

// DecodeVAPIDKey decodes an application server key from its URL-safe base64
// form, with or without padding.
func DecodeVAPIDKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("empty application server key")
	}
	s = strings.TrimRight(s, "=")
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return b, nil
}
