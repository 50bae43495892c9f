// Package session holds server-side login sessions. A session is addressed
// by an opaque random token carried in a cookie; stores only ever see the
// SHA-256 digest of that token.
package session

import (
	"context"
	"errors"
	"time"

	"studio/web/internal/models"
)

// ErrSessionNotFound is returned for absent, destroyed and expired tokens
// alike.
var ErrSessionNotFound = errors.New("session not found")

const DefaultTTL = 14 * 24 * time.Hour

type Store interface {
	// Create issues a new token for identity. Tokens are never reused.
	Create(ctx context.Context, identity models.Identity) (models.Session, error)
	Get(ctx context.Context, token string) (models.Session, error)
	// Destroy is idempotent.
	Destroy(ctx context.Context, token string) error
	// DestroyUser revokes every session belonging to userID.
	DestroyUser(ctx context.Context, userID string) (int, error)
	// Sweep purges expired state and reports how many entries it removed.
	Sweep(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
}

type Options struct {
	TTL time.Duration
	// Sliding pushes ExpiresAt forward on every successful Get.
	Sliding bool
}

func (o Options) ttl() time.Duration {
	if o.TTL <= 0 {
		return DefaultTTL
	}
	return o.TTL
}
