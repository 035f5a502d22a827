package rawaccel

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// WriteDelay is the default settle delay a write waits before committing.
const WriteDelay = time.Second

// ============================================================================
// State - process-wide configuration and pipeline
// ============================================================================
// State owns the active Settings, the LUT storage and the published Modifier.
// It is shared by every Stream (readers) and by the configuration channel
// (the single writer path).
//
// Readers never lock: Modifier() is one atomic load. Writers are serialized
// by writeMu and build a complete Modifier before publishing it.
//
// LUT storage is double-buffered. A write fills the buffer the published
// Modifier does not reference, then swaps. A reader still holding the
// previous Modifier can only observe a partially filled table if another
// write begins before it finishes its batch; the settle delay makes that
// unlikely but does not rule it out.
// ============================================================================

// State is the configuration service shared by streams and the config
// channel. Create it with NewState.
type State struct {
	clock        Clock
	tickInterval float64 // ms per counter tick
	settleDelay  time.Duration
	alloc        LUTAllocator
	logger       *slog.Logger
	initial      Settings

	mod atomic.Pointer[Modifier]

	writeMu  sync.Mutex
	luts     [2]*LUTPair
	active   int
	degraded bool

	subMu sync.Mutex
	subs  []func(Settings)
}

// Option configures a State.
type Option func(*State)

// WithClock sets the sample time source.
func WithClock(c Clock) Option {
	return func(s *State) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithSettleDelay sets how long a write waits before committing.
func WithSettleDelay(d time.Duration) Option {
	return func(s *State) {
		if d >= 0 {
			s.settleDelay = d
		}
	}
}

// WithLUTAllocator replaces the LUT storage allocator.
func WithLUTAllocator(a LUTAllocator) Option {
	return func(s *State) {
		if a != nil {
			s.alloc = a
		}
	}
}

// WithSettings sets the record the state starts with instead of
// DefaultSettings. It is committed without the settle delay.
func WithSettings(settings Settings) Option {
	return func(s *State) {
		s.initial = settings
	}
}

// WithLogger sets the logger used on the write path.
func WithLogger(l *slog.Logger) Option {
	return func(s *State) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewState initializes the starting settings, the time base and the LUT
// storage. If the LUTs cannot be allocated the state still works, with an
// inert acceleration stage, and Degraded reports true.
func NewState(opts ...Option) *State {
	s := &State{
		settleDelay: WriteDelay,
		alloc:       DefaultLUTAllocator,
		logger:      slog.Default(),
		initial:     DefaultSettings(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.clock == nil {
		s.clock = NewMonotonicClock()
	}
	s.tickInterval = tickIntervalMS(s.clock)

	for i := range s.luts {
		p, err := newLUTPair(s.alloc, LUTSize)
		if err != nil {
			s.logger.Warn("lut allocation failed, acceleration disabled", "error", err)
			s.degraded = true
		}
		s.luts[i] = p
	}
	if s.degraded {
		// Never mix a usable buffer with an inert one.
		s.luts[0], s.luts[1] = &LUTPair{}, &LUTPair{}
	}

	initial := s.initial
	initial.Normalize()
	lut := s.luts[s.active]
	for axis := range lut {
		lut[axis].Fill(initial.Modes[axis], initial.Args[axis])
	}
	s.mod.Store(NewModifier(initial, lut))
	return s
}

// Degraded reports whether LUT allocation failed at startup.
func (s *State) Degraded() bool { return s.degraded }

// TickInterval returns the milliseconds per clock tick.
func (s *State) TickInterval() float64 { return s.tickInterval }

// Modifier returns the current pipeline snapshot.
func (s *State) Modifier() *Modifier { return s.mod.Load() }

// Read returns a copy of the active settings.
func (s *State) Read() Settings { return s.mod.Load().Settings() }

// ReadRaw writes the binary form of the active settings into dst, which must
// be exactly SettingsSize bytes.
func (s *State) ReadRaw(dst []byte) (int, error) {
	if len(dst) != SettingsSize {
		return 0, fmt.Errorf("%w: got %d bytes, want %d", ErrBadRequestSize, len(dst), SettingsSize)
	}
	b, err := s.Read().MarshalBinary()
	if err != nil {
		return 0, err
	}
	return copy(dst, b), nil
}

// Write replaces the active settings. It waits for the settle delay,
// normalizes TimeMin, regenerates the LUTs and publishes a new Modifier.
// The committed record is returned.
//
// Subscribers run before Write returns and must not call Write.
func (s *State) Write(settings Settings) Settings {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.settleDelay > 0 {
		time.Sleep(s.settleDelay)
	}

	if settings.Normalize() {
		s.logger.Debug("time_min replaced with default", "time_min", settings.TimeMin)
	}

	next := 1 - s.active
	lut := s.luts[next]
	for axis := range lut {
		lut[axis].Fill(settings.Modes[axis], settings.Args[axis])
	}
	s.mod.Store(NewModifier(settings, lut))
	s.active = next

	s.logger.Info("settings applied",
		"rotation", settings.DegreesRotation,
		"mode_x", settings.Modes[0].String(),
		"mode_y", settings.Modes[1].String(),
		"sens_x", settings.Sensitivity.X,
		"sens_y", settings.Sensitivity.Y,
		"time_min", settings.TimeMin)

	s.subMu.Lock()
	subs := slices.Clone(s.subs)
	s.subMu.Unlock()
	for _, fn := range subs {
		fn(settings)
	}
	return settings
}

// WriteRaw decodes a binary settings record and writes it. A buffer of the
// wrong size is rejected before any delay and without side effects.
func (s *State) WriteRaw(b []byte) (Settings, error) {
	if len(b) != SettingsSize {
		return Settings{}, fmt.Errorf("%w: got %d bytes, want %d", ErrBadRequestSize, len(b), SettingsSize)
	}
	var settings Settings
	if err := settings.UnmarshalBinary(b); err != nil {
		return Settings{}, err
	}
	return s.Write(settings), nil
}

// Subscribe registers fn to be called with every committed record.
func (s *State) Subscribe(fn func(Settings)) {
	if fn == nil {
		return
	}
	s.subMu.Lock()
	s.subs = append(s.subs, fn)
	s.subMu.Unlock()
}

// NewStream returns a disconnected stream reading from this state.
func (s *State) NewStream() *Stream {
	return &Stream{state: s}
}
