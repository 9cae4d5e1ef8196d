package app

import (
	"sync"
	"testing"
)

func TestKeyedMutexSerializesPerKey(t *testing.T) {
	km := newKeyedMutex()

	counters := map[string]int{"a": 0, "b": 0}
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		for _, key := range []string{"a", "b"} {
			wg.Add(1)
			go func(k string) {
				defer wg.Done()
				km.Lock(k)
				counters[k]++
				km.Unlock(k)
			}(key)
		}
	}
	wg.Wait()

	if counters["a"] != 100 || counters["b"] != 100 {
		t.Errorf("expected 100 increments per key, got a=%d b=%d", counters["a"], counters["b"])
	}
}

func TestKeyedMutexReleasesEntries(t *testing.T) {
	km := newKeyedMutex()

	km.Lock("x")
	km.Unlock("x")

	km.mu.Lock()
	size := len(km.locks)
	km.mu.Unlock()

	if size != 0 {
		t.Errorf("expected lock map to be empty after release, got %d entries", size)
	}
}

func TestKeyedMutexUnlockUnheldPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on unlock of unheld key")
		}
	}()
	newKeyedMutex().Unlock("never-locked")
}
