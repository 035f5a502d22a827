package rawaccel

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSensitivity_Off(t *testing.T) {
	args := DefaultAccelArgs()
	for _, v := range []float64{0, 1, 50, 1e6} {
		assert.Equal(t, 1.0, Sensitivity(ModeOff, args, v))
	}
	assert.Equal(t, 1.0, Sensitivity(Mode(99), args, 10))
}

func TestSensitivity_LinearOffset(t *testing.T) {
	args := DefaultAccelArgs()
	args.Accel = 0.5
	args.Offset = 2

	assert.Equal(t, 1.0, Sensitivity(ModeLinear, args, 1))
	assert.Equal(t, 1.0, Sensitivity(ModeLinear, args, 2))
	assert.InDelta(t, 1+0.5*3, Sensitivity(ModeLinear, args, 5), 1e-12)
}

func TestSensitivity_ClassicExponentTwoIsLinear(t *testing.T) {
	args := DefaultAccelArgs()
	args.Accel = 0.1
	args.Exponent = 2

	for _, v := range []float64{0, 0.5, 3, 40} {
		assert.InDelta(t, Sensitivity(ModeLinear, args, v), Sensitivity(ModeClassic, args, v), 1e-12, "speed %v", v)
	}
}

func TestSensitivity_NaturalApproachesLimit(t *testing.T) {
	args := DefaultAccelArgs()
	args.Accel = 0.3
	args.Limit = 1.8

	prev := Sensitivity(ModeNatural, args, 0)
	assert.Equal(t, 1.0, prev)
	for v := 1.0; v < 100; v++ {
		s := Sensitivity(ModeNatural, args, v)
		assert.GreaterOrEqual(t, s, prev)
		assert.LessOrEqual(t, s, 1.8)
		prev = s
	}
	assert.InDelta(t, 1.8, prev, 1e-6)
}

func TestSensitivity_GainModes(t *testing.T) {
	args := DefaultAccelArgs()
	args.Accel = 0.2
	args.Limit = 2
	args.Midpoint = 8

	for _, mode := range []Mode{ModeNaturalGain, ModeSigmoidGain} {
		assert.Equal(t, 1.0, Sensitivity(mode, args, 0), mode.String())

		prev := 1.0
		for v := 0.5; v < 200; v += 0.5 {
			s := Sensitivity(mode, args, v)
			assert.False(t, math.IsNaN(s))
			assert.GreaterOrEqual(t, s, prev-1e-12, "%s at %v", mode, v)
			assert.Less(t, s, 2.0)
			prev = s
		}
		assert.Greater(t, prev, 1.5, mode.String())
	}
}

func TestSensitivity_PowerAndCap(t *testing.T) {
	args := DefaultAccelArgs()
	args.PowerScale = 0.5
	args.Exponent = 0.5

	assert.Equal(t, 0.0, Sensitivity(ModePower, args, 0))
	assert.InDelta(t, 2.0, Sensitivity(ModePower, args, 8), 1e-12)

	args.ScaleCap = 1.5
	assert.Equal(t, 1.5, Sensitivity(ModePower, args, 8))
}

func TestSensitivity_BadSpeed(t *testing.T) {
	args := DefaultAccelArgs()
	args.Accel = 1
	assert.Equal(t, 1.0, Sensitivity(ModeLinear, args, math.NaN()))
	assert.Equal(t, 1.0, Sensitivity(ModeLinear, args, -5))
}
