package custody

import (
	"crypto"
	"sync"

	"github.com/awnumar/memguard"
)

// KeyPair is a freshly generated signing key. The private half is sealed in
// a memguard Enclave (encrypted at rest in memory) and is only opened inside
// Sign. Call Destroy() when done.
type KeyPair struct {
	Public crypto.PublicKey

	mu        sync.Mutex
	private   *memguard.Enclave
	destroyed bool
}

func newKeyPair(pub crypto.PublicKey, privateDER []byte) *KeyPair {
	// NewEnclave wipes privateDER.
	return &KeyPair{
		Public:  pub,
		private: memguard.NewEnclave(privateDER),
	}
}

// open returns the private key bytes in a locked buffer. The caller must
// destroy the buffer.
func (kp *KeyPair) open() (*memguard.LockedBuffer, error) {
	kp.mu.Lock()
	defer kp.mu.Unlock()
	if kp.destroyed || kp.private == nil {
		return nil, ErrKeyDestroyed
	}
	return kp.private.Open()
}

// Destroy drops the sealed private key. It is safe to call more than once.
func (kp *KeyPair) Destroy() {
	if kp == nil {
		return
	}
	kp.mu.Lock()
	defer kp.mu.Unlock()
	kp.private = nil
	kp.destroyed = true
}

// Destroyed reports whether Destroy has been called.
func (kp *KeyPair) Destroyed() bool {
	kp.mu.Lock()
	defer kp.mu.Unlock()
	return kp.destroyed
}
