package pace

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextDelayBounds(t *testing.T) {
	t.Parallel()

	p := NewPolicy(DefaultConfig(), 1)
	cfg := DefaultConfig()

	kinds := map[DelayKind]Bounds{
		DelayRequest: cfg.Request,
		DelayScroll:  cfg.Scroll,
		DelayZone:    cfg.Zone,
		DelayRegion:  cfg.Region,
	}
	for kind, b := range kinds {
		for i := 0; i < 200; i++ {
			d := p.NextDelay(kind)
			assert.GreaterOrEqual(t, d, b.Min)
			assert.Less(t, d, b.Max)
		}
	}
}

func TestNextDelayDegenerateBounds(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Request = Bounds{Min: time.Second, Max: time.Second}
	p := NewPolicy(cfg, 7)
	assert.Equal(t, time.Second, p.NextDelay(DelayRequest))
}

func TestSleepCancellation(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Region = Bounds{Min: time.Minute, Max: 2 * time.Minute}
	p := NewPolicy(cfg, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Sleep(ctx, DelayRegion), context.Canceled)
}

func TestWaitNavigateDisabled(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.NavPerMinute = 0
	p := NewPolicy(cfg, 1)
	require.NoError(t, p.WaitNavigate(context.Background()))
}

func TestSynthesizeMotionDeterministic(t *testing.T) {
	t.Parallel()

	a := NewPolicy(DefaultConfig(), 42).SynthesizeMotion(300)
	b := NewPolicy(DefaultConfig(), 42).SynthesizeMotion(300)
	assert.Equal(t, a, b)

	c := NewPolicy(DefaultConfig(), 43).SynthesizeMotion(300)
	assert.NotEqual(t, a, c)
}

func TestSynthesizeMotionShape(t *testing.T) {
	t.Parallel()

	p := NewPolicy(DefaultConfig(), 99)
	for _, trackLen := range []int{50, 300, 517} {
		steps := p.SynthesizeMotion(trackLen)
		require.NotEmpty(t, steps)

		total := 0
		for _, s := range steps {
			assert.Positive(t, s.DX) // strictly monotone progress
			assert.LessOrEqual(t, s.DX, 50)
			assert.GreaterOrEqual(t, s.DY, -2)
			assert.LessOrEqual(t, s.DY, 2)
			assert.GreaterOrEqual(t, s.Dwell, 50*time.Millisecond)
			total += s.DX
		}
		// Terminates exactly at the track end, never past it.
		assert.Equal(t, trackLen, total)
	}
}

func TestSynthesizeMotionEmptyTrack(t *testing.T) {
	t.Parallel()

	p := NewPolicy(DefaultConfig(), 1)
	assert.Nil(t, p.SynthesizeMotion(0))
	assert.Nil(t, p.SynthesizeMotion(-5))
}
