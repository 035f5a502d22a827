package rawaccel

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestSettings_NormalizeTimeMin(t *testing.T) {
	for _, bad := range []float64{-1, 0, math.NaN(), math.Inf(1), math.Inf(-1)} {
		s := DefaultSettings()
		s.DegreesRotation = 12
		s.TimeMin = bad

		assert.True(t, s.Normalize(), "time_min=%v", bad)
		assert.Equal(t, DefaultTimeMin, s.TimeMin)
		assert.Equal(t, 12.0, s.DegreesRotation)
	}

	s := DefaultSettings()
	s.TimeMin = 5
	assert.False(t, s.Normalize())
	assert.Equal(t, 5.0, s.TimeMin)
}

func TestSettings_BinaryRoundTrip(t *testing.T) {
	in := DefaultSettings()
	in.DegreesRotation = -3.5
	in.CombineMagnitudes = false
	in.Modes = [2]Mode{ModeClassic, ModeNatural}
	in.Args[0].Accel = 0.02
	in.Args[1].Limit = 1.7
	in.Sensitivity = Vec2{X: 0.8, Y: 1.2}
	in.SpeedCap = 40
	in.TimeMin = 2

	b, err := in.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, b, SettingsSize)

	var out Settings
	require.NoError(t, out.UnmarshalBinary(b))
	assert.Equal(t, in, out)
}

func TestSettings_UnmarshalBadSize(t *testing.T) {
	b, err := DefaultSettings().MarshalBinary()
	require.NoError(t, err)

	out := DefaultSettings()
	out.DegreesRotation = 7

	err = out.UnmarshalBinary(b[:len(b)-1])
	require.ErrorIs(t, err, ErrBadRequestSize)

	err = out.UnmarshalBinary(append(b, 0))
	require.ErrorIs(t, err, ErrBadRequestSize)

	assert.Equal(t, 7.0, out.DegreesRotation, "failed decode must not modify the record")
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("Classic")
	require.NoError(t, err)
	assert.Equal(t, ModeClassic, m)

	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeOff, m)

	_, err = ParseMode("jump")
	assert.Error(t, err)

	assert.Equal(t, "sigmoidgain", ModeSigmoidGain.String())
	assert.Equal(t, "mode(42)", Mode(42).String())
}

func TestMode_Text(t *testing.T) {
	b, err := ModeNaturalGain.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "naturalgain", string(b))

	_, err = Mode(42).MarshalText()
	assert.Error(t, err)

	var m Mode
	require.NoError(t, m.UnmarshalText([]byte("Power")))
	assert.Equal(t, ModePower, m)
	assert.Error(t, m.UnmarshalText([]byte("jump")))
	assert.Equal(t, ModePower, m)
}

func TestAccelArgs_YAMLDefaults(t *testing.T) {
	var args [2]AccelArgs
	require.NoError(t, yaml.Unmarshal([]byte("- accel: 0.3\n- {limit: 1.5, weight: 0.5}\n"), &args))

	want0 := DefaultAccelArgs()
	want0.Accel = 0.3
	assert.Equal(t, want0, args[0])

	want1 := DefaultAccelArgs()
	want1.Limit = 1.5
	want1.Weight = 0.5
	assert.Equal(t, want1, args[1])

	err := yaml.Unmarshal([]byte("- {acel: 1}\n- {}\n"), &args)
	assert.ErrorContains(t, err, "acel")
}
