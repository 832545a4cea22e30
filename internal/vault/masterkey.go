package vault

import (
	"crypto/subtle"
	"sync"
)

// masterKey хранит копию мастер-ключа сессии.
// Ключ не логируется, не попадает в ошибки и обнуляется при Destroy.
type masterKey struct {
	mu  sync.Mutex
	key []byte
}

// newMasterKey копирует src, чтобы вызывающий код не мог изменить ключ сессии.
func newMasterKey(src []byte) *masterKey {
	k := &masterKey{key: make([]byte, len(src))}
	copy(k.key, src)
	lockMemory(k.key)
	return k
}

// Copy возвращает копию ключа для одного вызова бэкенда.
// Копию нужно стереть через wipe после вызова. После Destroy возвращает nil.
func (k *masterKey) Copy() []byte {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.key == nil {
		return nil
	}
	cp := make([]byte, len(k.key))
	copy(cp, k.key)
	return cp
}

// Destroy обнуляет ключ. Повторный вызов безопасен.
func (k *masterKey) Destroy() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.key == nil {
		return
	}
	wipe(k.key)
	unlockMemory(k.key)
	k.key = nil
}

func (k *masterKey) destroyed() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.key == nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// keysEqual сравнивает ключи за постоянное время.
func keysEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
