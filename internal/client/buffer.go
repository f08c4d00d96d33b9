package client

import "sync"

// Buffer is the local copy of the shared document. The server never stores
// content; this is the only place it lives.
type Buffer struct {
	mu    sync.RWMutex
	value string
}

func NewBuffer() *Buffer {
	return &Buffer{}
}

func (b *Buffer) Value() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.value
}

// Set reports whether the value actually changed. Setting an equal payload is
// a no-op, which keeps a relayed copy of our own edit from being mistaken for
// a new edit and echoed back out.
func (b *Buffer) Set(payload string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.value == payload {
		return false
	}
	b.value = payload
	return true
}
