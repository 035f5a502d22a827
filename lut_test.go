package rawaccel

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLUT(t *testing.T) *LUT {
	t.Helper()
	p, err := newLUTPair(DefaultLUTAllocator, LUTSize)
	require.NoError(t, err)
	return &p[0]
}

func TestLUT_ZeroedAtAllocation(t *testing.T) {
	dirty := func(n int) ([]LUTSample, error) {
		s := make([]LUTSample, n)
		for i := range s {
			s[i] = LUTSample{Speed: 3, Gain: 4}
		}
		return s, nil
	}
	p, err := newLUTPair(dirty, 16)
	require.NoError(t, err)
	for axis := range p {
		require.Equal(t, 16, p[axis].Len())
		for i := 0; i < p[axis].Len(); i++ {
			assert.Equal(t, LUTSample{}, p[axis].At(i))
		}
	}
}

func TestLUT_FillSpeedsIncreasing(t *testing.T) {
	lut := newTestLUT(t)
	args := DefaultAccelArgs()
	args.Accel = 0.05
	lut.Fill(ModeLinear, args)

	assert.Equal(t, 0.0, lut.At(0).Speed)
	assert.Equal(t, MaxLUTSpeed, lut.At(lut.Len()-1).Speed)
	for i := 1; i < lut.Len(); i++ {
		assert.Greater(t, lut.At(i).Speed, lut.At(i-1).Speed, "index %d", i)
	}
}

func TestLUT_InterpolatesStrictlyBetween(t *testing.T) {
	lut := newTestLUT(t)
	args := DefaultAccelArgs()
	args.Accel = 0.05
	lut.Fill(ModeNatural, args)

	for _, i := range []int{1, 10, 100, 400, LUTSize - 2} {
		a, b := lut.At(i), lut.At(i+1)
		require.Less(t, a.Gain, b.Gain)

		mid := (a.Speed + b.Speed) / 2
		g := lut.Lookup(mid)
		assert.Greater(t, g, a.Gain, "index %d", i)
		assert.Less(t, g, b.Gain, "index %d", i)
	}
}

func TestLUT_ExactSamplesAndClamp(t *testing.T) {
	lut := newTestLUT(t)
	args := DefaultAccelArgs()
	args.Accel = 0.1
	lut.Fill(ModeLinear, args)

	s := lut.At(200)
	assert.InDelta(t, s.Gain, lut.Lookup(s.Speed), 1e-12)

	assert.Equal(t, lut.At(0).Gain, lut.Lookup(-4))
	last := lut.At(lut.Len() - 1).Gain
	assert.Equal(t, last, lut.Lookup(MaxLUTSpeed))
	assert.Equal(t, last, lut.Lookup(MaxLUTSpeed*10))
}

func TestLUT_LinearCurveReproduced(t *testing.T) {
	lut := newTestLUT(t)
	args := DefaultAccelArgs()
	args.Accel = 0.25
	lut.Fill(ModeLinear, args)

	for _, v := range []float64{0.01, 0.3, 2, 17.5, 100} {
		assert.InDelta(t, Sensitivity(ModeLinear, args, v), lut.Lookup(v), 1e-9, "speed %v", v)
	}
}

func TestLUT_DuplicateSpeeds(t *testing.T) {
	lut := LUT{samples: []LUTSample{
		{Speed: 0, Gain: 1},
		{Speed: 1, Gain: 2},
		{Speed: 1, Gain: 3},
		{Speed: 2, Gain: 4},
	}}
	assert.InDelta(t, 1.5, lut.Lookup(0.5), 1e-12)
	assert.InDelta(t, 3.5, lut.Lookup(1.5), 1e-12)
	assert.Equal(t, 2.0, lut.Lookup(1))
}

func TestLUT_EmptyIsInert(t *testing.T) {
	var lut LUT
	lut.Fill(ModeLinear, AccelArgs{Accel: 10, Weight: 1})
	assert.Equal(t, 0, lut.Len())
	assert.Equal(t, 1.0, lut.Lookup(50))
}

func TestNewLUTPair_AllocationFailure(t *testing.T) {
	fail := func(n int) ([]LUTSample, error) { return nil, errors.New("no memory") }
	p, err := newLUTPair(fail, LUTSize)
	require.Error(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 0, p[0].Len())
	assert.Equal(t, 1.0, p[1].Lookup(3))

	short := func(n int) ([]LUTSample, error) { return make([]LUTSample, n-1), nil }
	_, err = newLUTPair(short, LUTSize)
	assert.Error(t, err)
}
