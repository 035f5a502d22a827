package rawaccel

import (
	"errors"
	"fmt"
)

const (
	// LUTSize is the number of samples per axis.
	LUTSize = 601

	// MaxLUTSpeed is the last sampled speed, in counts/ms. Faster motion is
	// evaluated at this speed.
	MaxLUTSpeed = 256.0
)

// LUTSample is one (speed, gain) point of a lookup table.
type LUTSample struct {
	Speed float64
	Gain  float64
}

// LUTAllocator returns zeroed storage for n samples.
type LUTAllocator func(n int) ([]LUTSample, error)

// DefaultLUTAllocator allocates on the Go heap.
func DefaultLUTAllocator(n int) ([]LUTSample, error) {
	if n <= 0 {
		return nil, fmt.Errorf("invalid lut size %d", n)
	}
	return make([]LUTSample, n), nil
}

// LUT is the lookup table for one axis. The zero value (no storage) is
// inert: every lookup yields 1.
type LUT struct {
	samples []LUTSample
}

// LUTPair holds the X and Y tables.
type LUTPair [2]LUT

// newLUTPair allocates both axes. On failure the returned pair is inert and
// the error says why.
func newLUTPair(alloc LUTAllocator, n int) (*LUTPair, error) {
	if alloc == nil {
		alloc = DefaultLUTAllocator
	}
	var p LUTPair
	var errs []error
	for i := range p {
		s, err := alloc(n)
		if err == nil && len(s) != n {
			err = fmt.Errorf("allocator returned %d samples, want %d", len(s), n)
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		clear(s)
		p[i].samples = s
	}
	if len(errs) > 0 {
		return &LUTPair{}, fmt.Errorf("allocate lut: %w", errors.Join(errs...))
	}
	return &p, nil
}

// LUTSpeed returns the speed sampled at index i of an n-sample table.
// Samples are spaced quadratically so low speeds get finer resolution.
func LUTSpeed(i, n int) float64 {
	if n <= 1 {
		return 0
	}
	f := float64(i) / float64(n-1)
	return MaxLUTSpeed * f * f
}

// Len returns the number of samples.
func (t *LUT) Len() int { return len(t.samples) }

// At returns sample i.
func (t *LUT) At(i int) LUTSample { return t.samples[i] }

// Fill overwrites the table in place with the curve's samples.
func (t *LUT) Fill(mode Mode, args AccelArgs) {
	n := len(t.samples)
	for i := range t.samples {
		v := LUTSpeed(i, n)
		t.samples[i] = LUTSample{Speed: v, Gain: Sensitivity(mode, args, v)}
	}
}

// Lookup interpolates the gain at speed. Speeds outside the sampled range
// take the first or last sample's gain.
func (t *LUT) Lookup(speed float64) float64 {
	s := t.samples
	n := len(s)
	if n == 0 {
		return 1
	}
	if !(speed > s[0].Speed) {
		return s[0].Gain
	}
	if speed >= s[n-1].Speed {
		return s[n-1].Gain
	}

	// first index whose speed is >= the query; s[0] < speed < s[n-1]
	lo, hi := 0, n-1
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if s[mid].Speed < speed {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	a, b := s[hi-1], s[hi]
	f := (speed - a.Speed) / (b.Speed - a.Speed)
	return a.Gain + f*(b.Gain-a.Gain)
}
