package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFixedClock_DoesNotMove(t *testing.T) {
	clock := MustParseClock("2024-03-15T10:00:00Z")
	first := clock.Now()
	time.Sleep(time.Millisecond)
	assert.Equal(t, first, clock.Now())
}

func TestFixedClock_SetAndAdvance(t *testing.T) {
	clock := MustParseClock("2024-03-15T10:00:00Z")

	got := clock.Advance(90 * time.Minute)
	assert.Equal(t, "2024-03-15T11:30:00Z", got.Format(time.RFC3339))

	clock.Set(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 2025, clock.Now().Year())
}

func TestFixedClock_ConcurrentAdvance(t *testing.T) {
	clock := NewFixedClock(time.Unix(0, 0).UTC())

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			clock.Advance(time.Second)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(100), clock.Now().Unix())
}

func TestSequenceGenerator(t *testing.T) {
	g := NewSequenceGenerator("")
	assert.Equal(t, "evt-0001", g.Generate())
	assert.Equal(t, "evt-0002", g.Generate())

	named := NewSequenceGenerator("cart")
	assert.Equal(t, "cart-0001", named.Generate())
}

func TestMustParseClock_PanicsOnGarbage(t *testing.T) {
	assert.Panics(t, func() { MustParseClock("yesterday") })
}
