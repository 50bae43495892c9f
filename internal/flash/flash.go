// Package flash carries one-shot notices across a redirect in a signed
// cookie.
package flash

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	KindSuccess = "success"
	KindError   = "error"
)

const (
	CookieName = "flash"
	DefaultTTL = 5 * time.Minute

	managerKey = "flash.manager"
	pendingKey = "flash.pending"
)

type Message struct {
	Kind string `json:"k"`
	Text string `json:"t"`
}

type flashClaims struct {
	Messages []Message `json:"msgs"`
	jwt.RegisteredClaims
}

type Manager struct {
	secret []byte
	secure bool
	ttl    time.Duration
}

func NewManager(secret string, secure bool) *Manager {
	return &Manager{secret: []byte(secret), secure: secure, ttl: DefaultTTL}
}

// Middleware loads pending messages from the cookie. A cookie that fails
// verification is dropped.
func (m *Manager) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(managerKey, m)

		if raw, err := c.Cookie(CookieName); err == nil && raw != "" {
			msgs, err := m.decode(raw)
			if err != nil {
				m.clear(c)
			} else {
				c.Set(pendingKey, msgs)
			}
		}

		c.Next()
	}
}

// Set queues a message for the next rendered page.
func Set(c *gin.Context, kind, text string) {
	m := managerFrom(c)
	if m == nil {
		return
	}

	msgs := append(pending(c), Message{Kind: kind, Text: text})
	c.Set(pendingKey, msgs)

	signed, err := m.encode(msgs)
	if err != nil {
		return
	}
	m.write(c, signed, int(m.ttl.Seconds()))
}

// Messages returns the queued messages and clears them.
func Messages(c *gin.Context) []Message {
	msgs := pending(c)
	if len(msgs) == 0 {
		return nil
	}
	c.Set(pendingKey, []Message(nil))
	if m := managerFrom(c); m != nil {
		m.clear(c)
	}
	return msgs
}

func (m *Manager) encode(msgs []Message) (string, error) {
	now := time.Now()
	claims := flashClaims{
		Messages: msgs,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign flash: %w", err)
	}
	return signed, nil
}

func (m *Manager) decode(raw string) ([]Message, error) {
	token, err := jwt.ParseWithClaims(raw, &flashClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*flashClaims); ok && token.Valid {
		return claims.Messages, nil
	}
	return nil, fmt.Errorf("invalid flash")
}

func (m *Manager) clear(c *gin.Context) {
	m.write(c, "", -1)
}

func (m *Manager) write(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CookieName, value, maxAge, "/", "", m.secure, true)
}

func managerFrom(c *gin.Context) *Manager {
	v, ok := c.Get(managerKey)
	if !ok {
		return nil
	}
	m, _ := v.(*Manager)
	return m
}

func pending(c *gin.Context) []Message {
	v, ok := c.Get(pendingKey)
	if !ok {
		return nil
	}
	msgs, _ := v.([]Message)
	return msgs
}
