package keylock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap_SerializesSameKey(t *testing.T) {
	var (
		m       Map
		wg      sync.WaitGroup
		counter int
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := m.Lock("r-1")
			defer unlock()
			v := counter
			time.Sleep(time.Microsecond)
			counter = v + 1
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Zero(t, m.Len())
}

func TestMap_DifferentKeysDoNotBlock(t *testing.T) {
	var m Map
	unlockA := m.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := m.Lock("b")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked by a")
	}
}

func TestMap_UnlockTwiceIsSafe(t *testing.T) {
	var m Map
	unlock := m.Lock("a")
	unlock()
	unlock()
	require.Zero(t, m.Len())

	unlock = m.Lock("a")
	unlock()
}
