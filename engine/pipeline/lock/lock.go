// Package lock implements the per-resource distributed lock worker tasks
// use to serialize updates to one (item, field) pair. The source system
// built this on Redis (SET NX EX to acquire, a Lua script comparing a
// nonce before DEL to release). NATS has no server-side scripting, so the
// same guarantee is re-derived on JetStream KV's native revision-gated
// CAS primitives: Create is the NX-equivalent acquire, and a
// revision-checked Delete is the atomic compare-and-delete release.
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// ErrAcquireTimeout is returned when a lock could not be acquired within
// the caller's timeout.
var ErrAcquireTimeout = errors.New("lock acquire timeout")

// value is the JSON payload stored at a lock key.
type value struct {
	Nonce     string `json:"nonce"`
	ExpiresAt int64  `json:"expires_at"` // unix nanoseconds
}

// Lock is a distributed mutual-exclusion primitive backed by a JetStream
// KV bucket.
type Lock struct {
	kv jetstream.KeyValue
}

// New wraps an existing JetStream KV bucket as a Lock. The bucket should
// be created once at startup (e.g. via js.CreateKeyValue with Bucket:
// "pipeline-locks").
func New(kv jetstream.KeyValue) *Lock {
	return &Lock{kv: kv}
}

// Held represents an acquired lock. Release must be called to give it up;
// it is also safe to let the TTL expire and skip Release if the holder
// crashes.
type Held struct {
	lock  *Lock
	key   string
	nonce string
}

// key formats a resource key into its bus lock key.
func key(resourceKey string) string {
	return "lock." + resourceKey
}

// Acquire attempts to take the lock for resourceKey, retrying every
// retryInterval until it succeeds or timeout elapses. ttl bounds how long
// the holder may keep the lock before another acquirer may steal it.
func (l *Lock) Acquire(ctx context.Context, resourceKey string, ttl, retryInterval time.Duration, timeout time.Duration) (*Held, error) {
	deadline := time.Now().Add(timeout)
	k := key(resourceKey)

	for {
		nonce, err := freshNonce()
		if err != nil {
			return nil, err
		}
		v := value{Nonce: nonce, ExpiresAt: time.Now().Add(ttl).UnixNano()}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}

		_, err = l.kv.Create(ctx, k, data)
		if err == nil {
			return &Held{lock: l, key: k, nonce: nonce}, nil
		}
		if !errors.Is(err, jetstream.ErrKeyExists) {
			return nil, err
		}

		// Key exists: see if it's expired and can be stolen via CAS.
		entry, getErr := l.kv.Get(ctx, k)
		if getErr == nil {
			var existing value
			if json.Unmarshal(entry.Value(), &existing) == nil && existing.ExpiresAt <= time.Now().UnixNano() {
				if _, updErr := l.kv.Update(ctx, k, data, entry.Revision()); updErr == nil {
					return &Held{lock: l, key: k, nonce: nonce}, nil
				}
				// Lost the race to another acquirer; fall through to retry.
			}
		}

		if time.Now().After(deadline) {
			return nil, ErrAcquireTimeout
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryInterval):
		}
	}
}

// Release atomically deletes the lock, but only if the stored value's
// nonce still matches the holder's — a holder whose TTL already expired
// and was stolen by another acquirer can never delete the new holder's
// lock.
func (h *Held) Release(ctx context.Context) error {
	entry, err := h.lock.kv.Get(ctx, h.key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil // already gone (e.g. expired and reaped)
		}
		return err
	}
	var existing value
	if err := json.Unmarshal(entry.Value(), &existing); err != nil {
		return err
	}
	if existing.Nonce != h.nonce {
		// Someone else holds it now; not ours to delete.
		return nil
	}
	return h.lock.kv.Delete(ctx, h.key, jetstream.LastRevision(entry.Revision()))
}

// WithLock acquires the lock, runs fn, and releases it on exit — the
// scoped-block form spec.md §4.4 describes.
func (l *Lock) WithLock(ctx context.Context, resourceKey string, ttl, retryInterval, timeout time.Duration, fn func(ctx context.Context) error) error {
	held, err := l.Acquire(ctx, resourceKey, ttl, retryInterval, timeout)
	if err != nil {
		return err
	}
	defer held.Release(ctx)
	return fn(ctx)
}

func freshNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
