package booking

import "sync"

// keyedMutex serializes operations per slot id. Entries are reference
// counted and removed once the last holder releases, so the registry does
// not grow with deleted slots.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*slotLock
}

type slotLock struct {
	mu      sync.Mutex
	holders int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*slotLock)}
}

// Lock acquires the mutex for the key and returns its release function.
func (registry *keyedMutex) Lock(key string) func() {
	registry.mu.Lock()
	entry, ok := registry.locks[key]
	if !ok {
		entry = &slotLock{}
		registry.locks[key] = entry
	}
	entry.holders++
	registry.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		registry.mu.Lock()
		entry.holders--
		if entry.holders == 0 {
			delete(registry.locks, key)
		}
		registry.mu.Unlock()
	}
}
