package rawaccel

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"gopkg.in/yaml.v3"
)

// Mode selects the acceleration curve for one axis.
type Mode uint32

const (
	ModeOff Mode = iota
	ModeLinear
	ModeClassic
	ModeNatural
	ModePower
	ModeNaturalGain
	ModeSigmoidGain

	modeCount
)

var modeNames = [...]string{
	ModeOff:         "off",
	ModeLinear:      "linear",
	ModeClassic:     "classic",
	ModeNatural:     "natural",
	ModePower:       "power",
	ModeNaturalGain: "naturalgain",
	ModeSigmoidGain: "sigmoidgain",
}

func (m Mode) String() string {
	if m < modeCount {
		return modeNames[m]
	}
	return fmt.Sprintf("mode(%d)", uint32(m))
}

// Valid reports whether m names a known curve.
func (m Mode) Valid() bool { return m < modeCount }

// ParseMode converts a curve name (case-insensitive) to a Mode.
func ParseMode(name string) (Mode, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return ModeOff, nil
	}
	for i, s := range modeNames {
		if s == n {
			return Mode(i), nil
		}
	}
	return ModeOff, fmt.Errorf("unknown accel mode: %s", name)
}

// MarshalText encodes the mode by name for the config formats.
func (m Mode) MarshalText() ([]byte, error) {
	if m >= modeCount {
		return nil, fmt.Errorf("unknown accel mode: %d", uint32(m))
	}
	return []byte(modeNames[m]), nil
}

// UnmarshalText accepts the names ParseMode accepts.
func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Vec2 is a pair of per-axis values.
type Vec2 struct {
	X float64 `json:"x" yaml:"x" toml:"x"`
	Y float64 `json:"y" yaml:"y" toml:"y"`
}

// AccelArgs are the coefficients of one axis' curve. Which fields matter
// depends on the Mode.
type AccelArgs struct {
	Offset     float64 `json:"offset" yaml:"offset" toml:"offset"`                // speed (counts/ms) below which the curve is flat
	Accel      float64 `json:"accel" yaml:"accel" toml:"accel"`                   // linear/classic/natural rate, sigmoid steepness
	Limit      float64 `json:"limit" yaml:"limit" toml:"limit"`                   // natural and gain curves: sensitivity/gain at infinity
	Exponent   float64 `json:"exponent" yaml:"exponent" toml:"exponent"`          // classic and power
	Midpoint   float64 `json:"midpoint" yaml:"midpoint" toml:"midpoint"`          // sigmoid centre (counts/ms)
	PowerScale float64 `json:"power_scale" yaml:"power_scale" toml:"power_scale"` // power: speed scale
	Weight     float64 `json:"weight" yaml:"weight" toml:"weight"`                // scales the additive part of the curve
	ScaleCap   float64 `json:"scale_cap" yaml:"scale_cap" toml:"scale_cap"`       // if > 0, caps the sensitivity multiplier
}

var accelArgsKeys = map[string]bool{
	"offset": true, "accel": true, "limit": true, "exponent": true,
	"midpoint": true, "power_scale": true, "weight": true, "scale_cap": true,
}

// UnmarshalYAML starts from DefaultAccelArgs so keys missing from the
// document keep their defaults. Unknown keys are rejected.
func (a *AccelArgs) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(value.Content); i += 2 {
			k := value.Content[i]
			if !accelArgsKeys[k.Value] {
				return fmt.Errorf("line %d: field %s not found in type rawaccel.AccelArgs", k.Line, k.Value)
			}
		}
	}
	type plain AccelArgs
	v := plain(DefaultAccelArgs())
	if err := value.Decode(&v); err != nil {
		return err
	}
	*a = AccelArgs(v)
	return nil
}

// Settings is the active configuration record. It is a plain value: it is
// copied on read and replaced wholesale on write.
type Settings struct {
	DegreesRotation   float64      `json:"degrees_rotation" yaml:"degrees_rotation" toml:"degrees_rotation"`
	CombineMagnitudes bool         `json:"combine_magnitudes" yaml:"combine_magnitudes" toml:"combine_magnitudes"`
	Modes             [2]Mode      `json:"modes" yaml:"modes" toml:"modes"`
	Args              [2]AccelArgs `json:"args" yaml:"args" toml:"args"`
	Sensitivity       Vec2         `json:"sensitivity" yaml:"sensitivity" toml:"sensitivity"`
	DirMultipliers    Vec2         `json:"dir_multipliers" yaml:"dir_multipliers" toml:"dir_multipliers"`
	SpeedCap          float64      `json:"speed_cap" yaml:"speed_cap" toml:"speed_cap"`
	TimeMin           float64      `json:"time_min" yaml:"time_min" toml:"time_min"`
}

const (
	// DefaultTimeMin is the minimum elapsed time between samples, in ms.
	DefaultTimeMin = 0.4

	// MaxTimeMS is the upper clamp for the elapsed time between samples.
	MaxTimeMS = 100.0
)

// SettingsSize is the exact size of the binary form of Settings.
var SettingsSize = binary.Size(Settings{})

// DefaultAccelArgs returns the curve coefficients used for a fresh record.
func DefaultAccelArgs() AccelArgs {
	return AccelArgs{
		Offset:     0,
		Accel:      0,
		Limit:      2,
		Exponent:   2,
		Midpoint:   10,
		PowerScale: 1,
		Weight:     1,
		ScaleCap:   0,
	}
}

// DefaultSettings returns the record the state starts with: no rotation,
// acceleration off, unity sensitivity.
func DefaultSettings() Settings {
	return Settings{
		DegreesRotation:   0,
		CombineMagnitudes: true,
		Modes:             [2]Mode{ModeOff, ModeOff},
		Args:              [2]AccelArgs{DefaultAccelArgs(), DefaultAccelArgs()},
		Sensitivity:       Vec2{X: 1, Y: 1},
		DirMultipliers:    Vec2{X: 1, Y: 1},
		SpeedCap:          0,
		TimeMin:           DefaultTimeMin,
	}
}

// Normalize replaces an unusable TimeMin with DefaultTimeMin. It reports
// whether anything changed. No other field is touched.
func (s *Settings) Normalize() bool {
	t := s.TimeMin
	if math.IsNaN(t) || math.IsInf(t, 0) || t <= 0 {
		s.TimeMin = DefaultTimeMin
		return true
	}
	return false
}

// MarshalBinary encodes the record in its fixed little-endian layout.
func (s Settings) MarshalBinary() ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, SettingsSize))
	if err := binary.Write(buf, binary.LittleEndian, &s); err != nil {
		return nil, fmt.Errorf("encode settings: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a record. The input must be exactly SettingsSize
// bytes long.
func (s *Settings) UnmarshalBinary(b []byte) error {
	if len(b) != SettingsSize {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrBadRequestSize, len(b), SettingsSize)
	}
	var out Settings
	if err := binary.Read(bytes.NewReader(b), binary.LittleEndian, &out); err != nil {
		return fmt.Errorf("%w: %v", ErrMessageLost, err)
	}
	*s = out
	return nil
}
