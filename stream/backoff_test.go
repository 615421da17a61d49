package stream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/tidewatch/pkg/clock"
)

func TestBackoffFailureBudget(t *testing.T) {
	fake := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	b := NewBackoff(5*time.Second, 3, fake)

	assert.False(t, b.Exhausted())
	b.Failure()
	b.Failure()
	assert.Equal(t, 2, b.Failures())
	assert.False(t, b.Exhausted())

	b.Failure()
	assert.True(t, b.Exhausted())
}

func TestBackoffSuccessResets(t *testing.T) {
	fake := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	b := NewBackoff(5*time.Second, 3, fake)

	b.Failure()
	b.Failure()
	b.Success()
	assert.Equal(t, 0, b.Failures())
	assert.False(t, b.Exhausted())

	// A fresh budget after the reset.
	b.Failure()
	b.Failure()
	assert.False(t, b.Exhausted())
}

func TestBackoffWaitRespectsDelay(t *testing.T) {
	fake := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	b := NewBackoff(5*time.Second, 3, fake)
	b.Failure()

	done := make(chan error, 1)
	go func() { done <- b.Wait(context.Background()) }()

	select {
	case <-done:
		t.Fatal("wait returned before the delay elapsed")
	case <-time.After(20 * time.Millisecond):
	}

	fake.Advance(5 * time.Second)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("wait did not return after the delay elapsed")
	}
}

func TestBackoffWaitImmediateWhenNoFailure(t *testing.T) {
	fake := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	b := NewBackoff(5*time.Second, 3, fake)
	assert.NoError(t, b.Wait(context.Background()))
}

func TestBackoffWaitCancellable(t *testing.T) {
	fake := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	b := NewBackoff(time.Hour, 3, fake)
	b.Failure()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Wait(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("wait did not observe cancellation")
	}
}
