package rawaccel

import "math"

// Modifier is the transform pipeline built from one Settings snapshot. It is
// immutable once built; the stages are applied in the order rotation,
// acceleration, sensitivity.
type Modifier struct {
	settings Settings
	lut      *LUTPair

	applyRotation bool
	rotCos        float64
	rotSin        float64

	accelEnabled bool
	combine      bool
	speedCap     float64
	timeMin      float64

	sens   Vec2
	dirMul Vec2
}

// NewModifier builds a pipeline over settings and the tables in lut. The
// tables are expected to already hold the settings' curves.
func NewModifier(settings Settings, lut *LUTPair) *Modifier {
	if lut == nil {
		lut = &LUTPair{}
	}
	m := &Modifier{
		settings: settings,
		lut:      lut,
		combine:  settings.CombineMagnitudes,
		speedCap: settings.SpeedCap,
		timeMin:  settings.TimeMin,
		sens:     settings.Sensitivity,
		dirMul:   settings.DirMultipliers,
	}

	if settings.DegreesRotation != 0 {
		rad := settings.DegreesRotation * math.Pi / 180
		m.applyRotation = true
		m.rotCos = math.Cos(rad)
		m.rotSin = math.Sin(rad)
	}

	if m.combine {
		m.accelEnabled = settings.Modes[0] != ModeOff
	} else {
		m.accelEnabled = settings.Modes[0] != ModeOff || settings.Modes[1] != ModeOff
	}
	return m
}

// Settings returns a copy of the record the modifier was built from.
func (m *Modifier) Settings() Settings { return m.settings }

// AccelEnabled reports whether the acceleration stage does anything.
func (m *Modifier) AccelEnabled() bool { return m.accelEnabled }

// TimeMin is the lower clamp for the elapsed time, in ms.
func (m *Modifier) TimeMin() float64 { return m.timeMin }

// ApplyRotation rotates v counter-clockwise by the configured angle.
func (m *Modifier) ApplyRotation(v *Vec2) {
	if !m.applyRotation {
		return
	}
	x, y := v.X, v.Y
	v.X = x*m.rotCos - y*m.rotSin
	v.Y = x*m.rotSin + y*m.rotCos
}

// ApplyAcceleration scales v by the curve gain at the speed implied by its
// magnitude over ms milliseconds. ms must already be clamped.
func (m *Modifier) ApplyAcceleration(v *Vec2, ms float64) {
	if !m.accelEnabled || ms <= 0 {
		return
	}
	speed := math.Hypot(v.X, v.Y) / ms
	if m.speedCap > 0 && speed > m.speedCap {
		speed = m.speedCap
	}

	gx := m.gain(0, speed)
	gy := gx
	if !m.combine {
		gy = m.gain(1, speed)
	}
	v.X *= gx
	v.Y *= gy
}

func (m *Modifier) gain(axis int, speed float64) float64 {
	if m.settings.Modes[axis] == ModeOff {
		return 1
	}
	return m.lut[axis].Lookup(speed)
}

// ApplySensitivity applies the per-axis multipliers, then the directional
// multipliers to leftward (negative X) and upward (negative Y) motion.
func (m *Modifier) ApplySensitivity(v *Vec2) {
	v.X *= m.sens.X
	v.Y *= m.sens.Y
	if v.X < 0 {
		v.X *= m.dirMul.X
	}
	if v.Y < 0 {
		v.Y *= m.dirMul.Y
	}
}

// Apply runs all three stages on v. ms is only consulted when acceleration
// is enabled and accel is true.
func (m *Modifier) Apply(v *Vec2, accel bool, ms float64) {
	m.ApplyRotation(v)
	if accel {
		m.ApplyAcceleration(v, ms)
	}
	m.ApplySensitivity(v)
}
