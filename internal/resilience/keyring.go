package resilience

import (
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// KeyRing rotates through a pool of API credentials. Workers call Current
// before a request and Rotate when the provider reports quota exhaustion;
// once every key has been burned the ring reports exhaustion and the
// session pauses until an operator resumes it (which resets the ring).
//
// Rotate takes the index the caller was using so that concurrent workers
// hitting quota on the same key advance the ring only once.
type KeyRing struct {
	mu     sync.Mutex
	keys   []string
	index  int
	burned map[int]bool
}

// NewKeyRing creates a ring over the given keys, starting at startIndex.
// A resumed session passes the persisted index so rotation picks up where
// it left off.
func NewKeyRing(keys []string, startIndex int) (*KeyRing, error) {
	if len(keys) == 0 {
		return nil, eris.New("keyring: no credentials configured")
	}
	if startIndex < 0 || startIndex >= len(keys) {
		startIndex = 0
	}
	return &KeyRing{
		keys:   keys,
		index:  startIndex,
		burned: make(map[int]bool),
	}, nil
}

// Current returns the active credential and its index.
func (k *KeyRing) Current() (string, int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.keys[k.index], k.index
}

// Rotate marks the credential at fromIndex as spent and advances to the
// next unburned key. Returns false when the whole pool is exhausted. If
// another worker already rotated past fromIndex, the current key is
// returned unchanged.
func (k *KeyRing) Rotate(fromIndex int) (string, int, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if fromIndex != k.index {
		// Someone else already rotated; just use the current key (unless
		// the pool died in the meantime).
		if k.burned[k.index] {
			return "", k.index, false
		}
		return k.keys[k.index], k.index, true
	}

	k.burned[k.index] = true
	for i := 1; i <= len(k.keys); i++ {
		next := (k.index + i) % len(k.keys)
		if !k.burned[next] {
			k.index = next
			zap.L().Warn("rotated api credential",
				zap.Int("spent_index", fromIndex),
				zap.Int("active_index", next),
			)
			return k.keys[next], next, true
		}
	}
	return "", k.index, false
}

// Exhausted reports whether every credential has been burned.
func (k *KeyRing) Exhausted() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.burned) >= len(k.keys)
}

// Reset clears burn state so a resumed session can try the pool again.
func (k *KeyRing) Reset() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.burned = make(map[int]bool)
}

// Size returns the number of credentials in the ring.
func (k *KeyRing) Size() int {
	return len(k.keys)
}
