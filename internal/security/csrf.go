package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// CSRFToken binds a form token to the session cookie it was rendered for.
func CSRFToken(secret string, sessionToken string) string {
	return signResource(secret, "csrf", sessionToken)
}

func ValidCSRFToken(secret string, sessionToken string, token string) bool {
	if sessionToken == "" || token == "" {
		return false
	}
	expected := CSRFToken(secret, sessionToken)
	return hmac.Equal([]byte(token), []byte(expected))
}

func signResource(secret string, parts ...string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strings.Join(parts, ":")))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
