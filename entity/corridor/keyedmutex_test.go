package corridor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutexReleasesEntries(t *testing.T) {
	k := newKeyedMutex()
	unlock := k.Lock("V1")
	assert.Equal(t, 1, k.size())
	unlock()
	assert.Equal(t, 0, k.size())

	var wg sync.WaitGroup
	// 只读map，每个计数器由对应key的锁保护
	counter := map[string]*int{"V1": new(int), "V2": new(int)}
	for i := range 50 {
		key := []string{"V1", "V2"}[i%2]
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock(key)
			defer unlock()
			*counter[key]++
		}()
	}
	wg.Wait()
	assert.Equal(t, 25, *counter["V1"])
	assert.Equal(t, 25, *counter["V2"])
	assert.Equal(t, 0, k.size())
}

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	k := newKeyedMutex()
	unlock := k.Lock("V1")

	other := make(chan struct{})
	go func() {
		defer close(other)
		u := k.Lock("V2")
		u()
	}()
	select {
	case <-other:
	case <-time.After(time.Second):
		t.Fatal("lock on another key blocked")
	}

	acquired := make(chan struct{})
	go func() {
		u := k.Lock("V1")
		close(acquired)
		u()
	}()
	select {
	case <-acquired:
		t.Fatal("same key acquired twice")
	case <-time.After(20 * time.Millisecond):
	}
	unlock()
	<-acquired
	assert.Eventually(t, func() bool { return k.size() == 0 }, time.Second, time.Millisecond)
}
