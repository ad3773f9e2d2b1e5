package pace

import "time"

// MotionStep is one pointer movement while holding a slider: horizontal
// advance, lateral jitter, and the dwell before the next step.
type MotionStep struct {
	DX    int
	DY    int
	Dwell time.Duration
}

// SynthesizeMotion produces a human-shaped drag path for a slider challenge
// of the given track length. Progress is strictly monotone and the summed DX
// never exceeds trackLength; step sizes, lateral jitter and timing vary per
// step, with occasional longer micro-pauses. The output depends only on the
// policy's seed and trackLength.
func (p *Policy) SynthesizeMotion(trackLength int) []MotionStep {
	if trackLength <= 0 {
		return nil
	}

	var steps []MotionStep
	pos := 0
	for pos < trackLength {
		dx := 20 + p.rng.IntN(31) // 20..50 px
		if pos+dx > trackLength {
			dx = trackLength - pos
		}
		dy := p.rng.IntN(5) - 2 // -2..2 px lateral jitter

		dwell := 50*time.Millisecond + time.Duration(p.rng.Int64N(int64(100*time.Millisecond)))
		// Roughly a third of steps pause noticeably longer.
		if p.rng.Float64() < 0.3 {
			dwell += 50*time.Millisecond + time.Duration(p.rng.Int64N(int64(50*time.Millisecond)))
		}

		steps = append(steps, MotionStep{DX: dx, DY: dy, Dwell: dwell})
		pos += dx
	}
	return steps
}
