package issuance

import (
	"context"
	"strings"
	"sync"
)

// NonceLocker serializes issuance per signing address so two requests never
// read the same next nonce.
type NonceLocker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func NewNonceLocker() *NonceLocker {
	return &NonceLocker{locks: make(map[string]chan struct{})}
}

// Lock blocks until key is free or ctx is done. The returned func releases it.
func (l *NonceLocker) Lock(ctx context.Context, key string) (func(), error) {
	key = strings.ToLower(key)

	l.mu.Lock()
	ch, ok := l.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[key] = ch
	}
	l.mu.Unlock()

	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { <-ch })
	}, nil
}
