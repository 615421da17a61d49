package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeAfterFiresOnAdvance(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	fc := NewFake(start)

	ch := fc.After(5 * time.Second)
	select {
	case <-ch:
		t.Fatal("timer fired before advance")
	default:
	}

	fc.Advance(4 * time.Second)
	select {
	case <-ch:
		t.Fatal("timer fired early")
	default:
	}

	fc.Advance(time.Second)
	select {
	case at := <-ch:
		assert.Equal(t, start.Add(5*time.Second), at)
	default:
		t.Fatal("timer did not fire")
	}

	assert.Equal(t, start.Add(5*time.Second), fc.Now())
}

func TestFakeAfterNonPositiveFiresImmediately(t *testing.T) {
	fc := NewFake(time.Unix(0, 0))
	select {
	case <-fc.After(0):
	default:
		t.Fatal("zero-duration timer should fire immediately")
	}
}

func TestFakeTicker(t *testing.T) {
	fc := NewFake(time.Unix(1000, 0))
	ticker := fc.NewTicker(time.Minute)
	defer ticker.Stop()

	fc.Advance(time.Minute)
	select {
	case <-ticker.C():
	default:
		t.Fatal("expected first tick")
	}

	// A tick that was never drained is dropped, not queued.
	fc.Advance(3 * time.Minute)
	<-ticker.C()
	select {
	case <-ticker.C():
		t.Fatal("ticks should not accumulate beyond channel capacity")
	default:
	}

	ticker.Stop()
	fc.Advance(time.Minute)
	select {
	case <-ticker.C():
		t.Fatal("stopped ticker must not fire")
	default:
	}
}

func TestFakeMultipleWaitersFireInOrder(t *testing.T) {
	fc := NewFake(time.Unix(0, 0))

	first := fc.After(time.Second)
	second := fc.After(2 * time.Second)

	fc.Advance(5 * time.Second)

	at1 := <-first
	at2 := <-second
	require.True(t, at1.Before(at2))
}

func TestRealClockBasics(t *testing.T) {
	c := New()
	before := time.Now()
	now := c.Now()
	assert.False(t, now.Before(before.Add(-time.Second)))

	ticker := c.NewTicker(time.Millisecond)
	defer ticker.Stop()
	select {
	case <-ticker.C():
	case <-time.After(time.Second):
		t.Fatal("real ticker did not tick")
	}
}
