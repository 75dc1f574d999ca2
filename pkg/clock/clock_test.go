package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMidnight(t *testing.T) {
	ts := time.Date(2026, 3, 14, 15, 9, 26, 535, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), Midnight(ts))
}

func TestFakeClock_SleepAdvances(t *testing.T) {
	fc := NewFakeClock(time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC))

	fc.Sleep(context.Background(), 2*time.Second)

	assert.Equal(t, time.Date(2026, 1, 1, 8, 0, 2, 0, time.UTC), fc.Now())
	assert.Equal(t, []time.Duration{2 * time.Second}, fc.SleptFor)
}

func TestPacer_FirstCallDoesNotSleep(t *testing.T) {
	fc := NewFakeClock(time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC))
	pacer := NewPacer(fc, 2*time.Second)

	pacer.Wait(context.Background())

	assert.Empty(t, fc.SleptFor)
}

func TestPacer_EnforcesMinimumGap(t *testing.T) {
	fc := NewFakeClock(time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC))
	pacer := NewPacer(fc, 2*time.Second)

	pacer.Wait(context.Background())
	fc.Advance(500 * time.Millisecond)
	pacer.Wait(context.Background())

	// 1500ms of sleep tops up the 500ms that already elapsed
	assert.Equal(t, []time.Duration{1500 * time.Millisecond}, fc.SleptFor)
}

func TestPacer_NoSleepWhenGapAlreadyElapsed(t *testing.T) {
	fc := NewFakeClock(time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC))
	pacer := NewPacer(fc, 500*time.Millisecond)

	pacer.Wait(context.Background())
	fc.Advance(3 * time.Second)
	pacer.Wait(context.Background())

	assert.Empty(t, fc.SleptFor)
}

func TestPacer_StagesAreIndependent(t *testing.T) {
	fc := NewFakeClock(time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC))
	users := NewPacer(fc, 2*time.Second)
	terms := NewPacer(fc, 500*time.Millisecond)

	users.Wait(context.Background())
	terms.Wait(context.Background())

	// Neither stage slept; each tracks its own last call
	assert.Empty(t, fc.SleptFor)
}
