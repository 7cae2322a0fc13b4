package utilities

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutex(t *testing.T) {
	km := NewKeyedMutex()
	a, b := 0, 0
	counters := map[string]*int{"a": &a, "b": &b}

	wg := new(sync.WaitGroup)
	for i := 0; i < 200; i++ {
		key := "a"
		if i%2 == 0 {
			key = "b"
		}
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			unlock := km.Lock(key)
			defer unlock()
			*counters[key]++
		}(key)
	}
	wg.Wait()

	assert.Equal(t, 100, a)
	assert.Equal(t, 100, b)
	assert.Equal(t, 0, km.Len())
}
