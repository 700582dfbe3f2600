package services

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dakotastrand/BackTrack-CS-499-Team-9/apperrors"
)

func TestSchedulerRejectsNonPositiveDuration(t *testing.T) {
	s := NewScheduler(func(string) {})

	err := s.Arm("a1", 0)
	require.ErrorIs(t, err, apperrors.ErrValidation)

	err = s.Arm("a1", -time.Second)
	require.ErrorIs(t, err, apperrors.ErrValidation)

	assert.False(t, s.Armed("a1"))
}

func TestSchedulerFiresExactlyOnce(t *testing.T) {
	var fired int32
	done := make(chan string, 2)
	s := NewScheduler(func(id string) {
		atomic.AddInt32(&fired, 1)
		done <- id
	})

	require.NoError(t, s.Arm("a1", 10*time.Millisecond))
	require.True(t, s.Armed("a1"))

	select {
	case id := <-done:
		assert.Equal(t, "a1", id)
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))
	assert.False(t, s.Armed("a1"))
}

func TestSchedulerCancelBeforeExpiry(t *testing.T) {
	var fired int32
	s := NewScheduler(func(string) { atomic.AddInt32(&fired, 1) })

	require.NoError(t, s.Arm("a1", time.Hour))
	assert.True(t, s.Cancel("a1"))
	assert.False(t, s.Armed("a1"))

	// a second cancel is a no-op
	assert.False(t, s.Cancel("a1"))
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))
}

func TestSchedulerCancelUnknownAlert(t *testing.T) {
	s := NewScheduler(func(string) {})
	assert.False(t, s.Cancel("nope"))
}

// The race property: cancellation and expiry are mutually exclusive. Over
// many trials landing right on the deadline, exactly one side wins each time.
func TestSchedulerCancelExpiryRace(t *testing.T) {
	for i := 0; i < 100; i++ {
		fired := make(chan struct{}, 1)
		s := NewScheduler(func(string) { fired <- struct{}{} })

		require.NoError(t, s.Arm("race", time.Millisecond))

		won := make(chan bool, 1)
		go func() {
			time.Sleep(time.Millisecond)
			won <- s.Cancel("race")
		}()

		cancelWon := <-won
		expired := false
		select {
		case <-fired:
			expired = true
		case <-time.After(100 * time.Millisecond):
		}

		require.False(t, cancelWon && expired, "trial %d: both cancel and expiry won", i)
		require.True(t, cancelWon || expired, "trial %d: neither cancel nor expiry won", i)
	}
}

func TestSchedulerIndependentTimers(t *testing.T) {
	var mu sync.Mutex
	firedIDs := make(map[string]bool)
	done := make(chan struct{}, 3)
	s := NewScheduler(func(id string) {
		mu.Lock()
		firedIDs[id] = true
		mu.Unlock()
		done <- struct{}{}
	})

	require.NoError(t, s.Arm("a1", 10*time.Millisecond))
	require.NoError(t, s.Arm("a2", 15*time.Millisecond))
	require.NoError(t, s.Arm("a3", time.Hour))

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("short timers did not fire")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, firedIDs["a1"])
	assert.True(t, firedIDs["a2"])
	assert.False(t, firedIDs["a3"])
	assert.True(t, s.Armed("a3"))
}
