package domain

import (
	"runtime"
	"sync"
	"time"
)

// KeyMaterial bundles the secret bytes an encryption stage needs. Key bytes
// are wiped when Close is called; a finalizer is registered as a backstop
// for callers that forget, since Go has no deterministic destructor.
type KeyMaterial struct {
	Key       []byte
	Nonce     []byte
	Salt      []byte
	Algorithm string
	CreatedAt time.Time
	ExpiresAt *time.Time

	mu     sync.Mutex
	closed bool
}

// NewKeyMaterial takes ownership of key/nonce/salt and arms the zeroization
// finalizer. Callers must not retain their own reference to the slices.
func NewKeyMaterial(key, nonce, salt []byte, algorithm string, createdAt time.Time, expiresAt *time.Time) *KeyMaterial {
	km := &KeyMaterial{
		Key:       key,
		Nonce:     nonce,
		Salt:      salt,
		Algorithm: algorithm,
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
	}
	runtime.SetFinalizer(km, (*KeyMaterial).finalize)
	return km
}

// Close wipes the secret byte slices. Safe to call more than once.
func (k *KeyMaterial) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nil
	}
	zero(k.Key)
	zero(k.Nonce)
	zero(k.Salt)
	k.closed = true
	runtime.SetFinalizer(k, nil)
	return nil
}

func (k *KeyMaterial) finalize() {
	_ = k.Close()
}

// Expired reports whether the key material has passed its expiry, if any.
func (k *KeyMaterial) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && now.After(*k.ExpiresAt)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
