// Package keydir resolves an account id to the public key that signs for it.
package keydir

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	cache "github.com/Code-Hex/go-generics-cache"
	"github.com/Code-Hex/go-generics-cache/policy/lru"

	"github.com/R3E-Network/relay_layer/internal/errors"
)

// Directory returns the hex public key registered for an account.
type Directory interface {
	PublicKey(ctx context.Context, accountID string) (string, error)
}

// ErrUnknownAccount is returned when no directory knows the account.
var ErrUnknownAccount = stderrors.New("unknown account")

// LookupError wraps a failed lookup.
type LookupError struct {
	Account string
	Err     error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("public key lookup for %s: %v", e.Account, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

// ErrorKind implements errors.Kinded.
func (e *LookupError) ErrorKind() errors.Kind {
	if stderrors.Is(e.Err, ErrUnknownAccount) {
		return errors.KindAuthentication
	}
	return errors.KindTransient
}

// Func adapts a function to Directory.
type Func func(ctx context.Context, accountID string) (string, error)

func (f Func) PublicKey(ctx context.Context, accountID string) (string, error) {
	return f(ctx, accountID)
}

// Chain asks each directory in order and returns the first key found. An
// unknown account moves on to the next directory; any other error stops.
type Chain []Directory

func (c Chain) PublicKey(ctx context.Context, accountID string) (string, error) {
	for _, d := range c {
		key, err := d.PublicKey(ctx, accountID)
		if err == nil {
			return key, nil
		}
		if !stderrors.Is(err, ErrUnknownAccount) {
			return "", err
		}
	}
	return "", &LookupError{Account: accountID, Err: ErrUnknownAccount}
}

// Cached remembers successful lookups for a TTL.
type Cached struct {
	inner Directory
	ttl   time.Duration
	keys  *cache.Cache[string, string]
}

// DefaultCacheCapacity bounds the number of cached keys.
const DefaultCacheCapacity = 10_000

// NewCached wraps inner. Failed lookups are never cached.
func NewCached(inner Directory, ttl time.Duration, capacity int) *Cached {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	return &Cached{
		inner: inner,
		ttl:   ttl,
		keys:  cache.New(cache.AsLRU[string, string](lru.WithCapacity(capacity))),
	}
}

func (c *Cached) PublicKey(ctx context.Context, accountID string) (string, error) {
	accountID = strings.TrimSpace(accountID)
	if key, ok := c.keys.Get(accountID); ok {
		return key, nil
	}
	key, err := c.inner.PublicKey(ctx, accountID)
	if err != nil {
		return "", err
	}
	c.keys.Set(accountID, key, cache.WithExpiration(c.ttl))
	return key, nil
}

// Invalidate drops a cached key, e.g. after a key rotation.
func (c *Cached) Invalidate(accountID string) {
	c.keys.Delete(accountID)
}
