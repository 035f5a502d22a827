package rawaccel

import (
	"errors"
	"math"
)

// MoveAbsolute marks a sample as absolute (tablet-style) motion. Batches
// whose first sample carries it are forwarded untouched.
const MoveAbsolute uint16 = 0x0001

// Motion is one raw displacement sample.
type Motion struct {
	Flags uint16
	X     int32
	Y     int32
}

// Sink receives transformed batches and reports how many samples it
// consumed.
type Sink interface {
	Consume(batch []Motion) int
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(batch []Motion) int

func (f SinkFunc) Consume(batch []Motion) int { return f(batch) }

// Stream is the per-source state: the sub-pixel carry, the counter value of
// the last accelerated sample, and the downstream sink.
//
// A stream's batches must be delivered in order and never concurrently with
// each other. Different streams may run in parallel.
type Stream struct {
	state *State
	sink  Sink

	carry   Vec2
	counter int64
}

// Connect attaches the downstream sink and zeroes the carry and timestamp.
// A stream accepts a single connection.
func (s *Stream) Connect(sink Sink) error {
	if s.sink != nil {
		return ErrSharingViolation
	}
	if sink == nil {
		return errors.New("connect: nil sink")
	}
	s.counter = 0
	s.carry = Vec2{}
	s.sink = sink
	return nil
}

// Disconnect always fails: a connected stream stays connected for its
// lifetime.
func (s *Stream) Disconnect() error {
	return ErrNotSupported
}

// Connected reports whether a sink is attached.
func (s *Stream) Connected() bool { return s.sink != nil }

// Carry returns the fractional remainder carried into the next sample.
func (s *Stream) Carry() Vec2 { return s.carry }

// Process rewrites batch in place and forwards it to the sink, returning the
// sink's consumed count. It never blocks or allocates.
func (s *Stream) Process(batch []Motion) (int, error) {
	if s.sink == nil {
		return 0, ErrNotConnected
	}
	if len(batch) > 0 && batch[0].Flags&MoveAbsolute == 0 {
		s.transform(batch)
	}
	return s.sink.Consume(batch), nil
}

func (s *Stream) transform(batch []Motion) {
	m := s.state.Modifier()

	// With a backlog there is no meaningful per-sample interval, so only
	// single-sample batches are accelerated.
	accel := len(batch) == 1 && m.AccelEnabled()

	carry := s.carry
	for i := range batch {
		in := Vec2{X: float64(batch[i].X), Y: float64(batch[i].Y)}

		m.ApplyRotation(&in)
		if accel {
			m.ApplyAcceleration(&in, s.elapsedMS(m.TimeMin()))
		}
		m.ApplySensitivity(&in)

		var ox, oy int32
		ox, carry.X = truncCarry(in.X + carry.X)
		oy, carry.Y = truncCarry(in.Y + carry.Y)
		batch[i].X = ox
		batch[i].Y = oy
	}
	s.carry = carry
}

// elapsedMS advances the stream's timestamp and returns the clamped interval
// since the previous accelerated sample.
func (s *Stream) elapsedMS(timeMin float64) float64 {
	now := s.state.clock.Counter()
	ticks := now - s.counter
	s.counter = now

	ms := float64(ticks) * s.state.tickInterval
	if ms > MaxTimeMS {
		ms = MaxTimeMS
	}
	if !(ms >= timeMin) {
		ms = timeMin
	}
	return ms
}

// truncCarry truncates v toward zero, saturating at the int32 range, and
// returns the fractional remainder.
func truncCarry(v float64) (int32, float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, 0
	}
	t := math.Trunc(v)
	rem := v - t
	switch {
	case t > math.MaxInt32:
		return math.MaxInt32, rem
	case t < math.MinInt32:
		return math.MinInt32, rem
	}
	return int32(t), rem
}
