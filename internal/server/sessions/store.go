// Package sessions keeps short-lived per-browser-session values, such as the
// CSRF state of an in-flight OAuth login, between two HTTP requests.
package sessions

import (
	"context"
	"time"
)

// Store holds string values keyed by (session ID, key). Values expire after
// the TTL given to Put and are removed by the first Take.
type Store interface {
	Put(ctx context.Context, sessionID, key, value string, ttl time.Duration) error
	// Take returns and deletes the value. ok is false when nothing (or
	// only an expired value) was stored.
	Take(ctx context.Context, sessionID, key string) (value string, ok bool, err error)
	Close() error
}

// StateKey names the CSRF state slot for one provider, so flows started
// for different providers in the same browser session do not collide.
func StateKey(provider string) string {
	return "oauth_state:" + provider
}
