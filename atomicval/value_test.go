package atomicval

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValue_ZeroValueLoads(t *testing.T) {
	var b Bool
	assert.False(t, b.Load())

	var n Int
	assert.Equal(t, 0, n.Load())
}

func TestValue_StoreLoad(t *testing.T) {
	v := NewValue(42)

	assert.Equal(t, 42, v.Load())
	v.Store(7)
	assert.Equal(t, 7, v.Load())
}

func TestValue_Swap(t *testing.T) {
	v := NewValue("a")

	old := v.Swap("b")
	assert.Equal(t, "a", old)
	assert.Equal(t, "b", v.Load())

	var unset Value[string]
	assert.Equal(t, "", unset.Swap("x"), "swap on unset returns zero value")
	assert.Equal(t, "x", unset.Load())
}

func TestValue_CompareAndSwap(t *testing.T) {
	v := NewValue(1)

	assert.True(t, v.CompareAndSwap(1, 2))
	assert.False(t, v.CompareAndSwap(1, 3), "stale expected value must fail")
	assert.Equal(t, 2, v.Load())
}

func TestValue_CompareAndSwap_Unset(t *testing.T) {
	var v Value[int]

	assert.False(t, v.CompareAndSwap(5, 6), "unset cell is not 5")
	assert.True(t, v.CompareAndSwap(0, 6), "unset cell compares as zero value")
	assert.Equal(t, 6, v.Load())
}

func TestValue_Snapshot_Independent(t *testing.T) {
	v := NewValue(10)

	snap := v.Snapshot()
	v.Store(20)

	assert.Equal(t, 10, snap.Load(), "snapshot is detached from the original")
	assert.Equal(t, 20, v.Load())
}

func TestValue_ConcurrentFlag(t *testing.T) {
	var connected Bool

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				connected.Store(true)
				_ = connected.Load()
			}
		}()
	}
	wg.Wait()

	assert.True(t, connected.Load())
}

func TestValue_ConcurrentCAS_OneWinner(t *testing.T) {
	v := NewValue(0)

	var wg sync.WaitGroup
	wins := make(chan int, 16)
	for i := 1; i <= 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if v.CompareAndSwap(0, i) {
				wins <- i
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	var winners []int
	for w := range wins {
		winners = append(winners, w)
	}
	assert.Len(t, winners, 1, "exactly one CAS may win")
	assert.Equal(t, winners[0], v.Load())
}
