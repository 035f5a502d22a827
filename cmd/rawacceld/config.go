package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"rawaccel"
)

// Config is the top-level configuration for the rawacceld daemon.
//
// The file is YAML by default; a ".toml" extension selects TOML. Both forms
// share the same keys. Defaults and validation live here so the rest of the
// daemon can assume a well-formed config.
type Config struct {
	// Input devices and the virtual output device
	Devices DevicesConfig `yaml:"devices" toml:"devices"`

	// Filter settings applied at startup and on reload
	Accel rawaccel.Settings `yaml:"accel" toml:"accel"`

	// Delay a settings write waits before it is committed
	SettleDelayMS int `yaml:"settle_delay_ms" toml:"settle_delay_ms"`

	IPC     IPCConfig     `yaml:"ipc" toml:"ipc"`
	HTTP    HTTPConfig    `yaml:"http" toml:"http"`
	Watch   WatchConfig   `yaml:"watch" toml:"watch"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
}

type DevicesConfig struct {
	Paths       []string `yaml:"paths" toml:"paths"`               // evdev nodes to filter
	Grab        bool     `yaml:"grab" toml:"grab"`                 // take exclusive access with EVIOCGRAB
	Uinput      string   `yaml:"uinput" toml:"uinput"`             // uinput control node
	VirtualName string   `yaml:"virtual_name" toml:"virtual_name"` // name of the virtual mouse
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path" toml:"socket_path"`
}

type HTTPConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Addr    string `yaml:"addr" toml:"addr"`
}

type WatchConfig struct {
	Enabled    bool `yaml:"enabled" toml:"enabled"`
	DebounceMS int  `yaml:"debounce_ms" toml:"debounce_ms"`
}

type LoggingConfig struct {
	Level string `yaml:"level" toml:"level"`
}

// DefaultConfig returns a fully-populated Config with defaults.
func DefaultConfig() Config {
	return Config{
		Devices: DevicesConfig{
			Paths:       nil,
			Grab:        true,
			Uinput:      defaultUinputPath,
			VirtualName: defaultVirtualName,
		},
		Accel:         rawaccel.DefaultSettings(),
		SettleDelayMS: defaultSettleDelayMS,
		IPC: IPCConfig{
			SocketPath: defaultSocketPath,
		},
		HTTP: HTTPConfig{
			Enabled: false,
			Addr:    defaultHTTPAddr,
		},
		Watch: WatchConfig{
			Enabled:    true,
			DebounceMS: defaultWatchDebounce,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// isTOML reports whether path selects the TOML format.
func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// LoadConfigFile reads and parses a config file on top of DefaultConfig.
//
// Unknown keys are rejected in both formats to catch typos.
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	cfg := DefaultConfig()
	if isTOML(path) {
		err = decodeTOML(b, &cfg)
	} else {
		err = decodeYAML(b, &cfg)
	}
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeYAML(b []byte, v any) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode config yaml: %w", err)
	}

	// Only whitespace/comments are allowed after the document.
	if err := dec.Decode(new(yaml.Node)); !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode config yaml: unexpected trailing document")
	}
	return nil
}

func decodeTOML(b []byte, v any) error {
	md, err := toml.Decode(string(b), v)
	if err != nil {
		return fmt.Errorf("decode config toml: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("decode config toml: unknown keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

// FlagOverrides holds flag values that take precedence over the file.
// Each override is only applied if its pointer is non-nil.
type FlagOverrides struct {
	Devices       *string // comma separated
	Grab          *bool
	Uinput        *string
	SettleDelayMS *int
	IPCSocketPath *string
	HTTPAddr      *string
	HTTPEnabled   *bool
	Watch         *bool
	LogLevel      *string
}

// Apply merges the overrides into cfg.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.Devices != nil {
		var paths []string
		for _, p := range strings.Split(*o.Devices, ",") {
			if p = strings.TrimSpace(p); p != "" {
				paths = append(paths, p)
			}
		}
		cfg.Devices.Paths = paths
	}
	if o.Grab != nil {
		cfg.Devices.Grab = *o.Grab
	}
	if o.Uinput != nil {
		cfg.Devices.Uinput = *o.Uinput
	}
	if o.SettleDelayMS != nil {
		cfg.SettleDelayMS = *o.SettleDelayMS
	}
	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.HTTPAddr != nil {
		cfg.HTTP.Addr = *o.HTTPAddr
		cfg.HTTP.Enabled = true
	}
	if o.HTTPEnabled != nil {
		cfg.HTTP.Enabled = *o.HTTPEnabled
	}
	if o.Watch != nil {
		cfg.Watch.Enabled = *o.Watch
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
// Call it after defaults, file and overrides are applied.
func (c *Config) Validate() error {
	if len(c.Devices.Paths) == 0 {
		return errors.New("devices.paths must not be empty")
	}
	for i, p := range c.Devices.Paths {
		if p == "" {
			return fmt.Errorf("devices.paths[%d] is empty", i)
		}
	}
	if c.Devices.Uinput == "" {
		return errors.New("devices.uinput must not be empty")
	}
	if len(c.Devices.VirtualName) >= uinputMaxNameSize {
		return fmt.Errorf("devices.virtual_name must be shorter than %d bytes", uinputMaxNameSize)
	}

	if err := validateSettings(c.Accel); err != nil {
		return fmt.Errorf("accel.%w", err)
	}

	if c.SettleDelayMS < 0 {
		return errors.New("settle_delay_ms must be >= 0")
	}
	if c.IPC.SocketPath == "" {
		return errors.New("ipc.socket_path must not be empty")
	}
	if c.HTTP.Enabled && c.HTTP.Addr == "" {
		return errors.New("http.enabled is true but http.addr is empty")
	}
	if c.Watch.DebounceMS < 0 {
		return errors.New("watch.debounce_ms must be >= 0")
	}
	if _, err := parseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}

// validateSettings rejects records a config file should never produce.
// time_min is left alone: the filter replaces unusable values itself.
func validateSettings(s rawaccel.Settings) error {
	for axis, m := range s.Modes {
		if !m.Valid() {
			return fmt.Errorf("modes[%d]: unknown mode %d", axis, uint32(m))
		}
	}
	finite := map[string]float64{
		"degrees_rotation":  s.DegreesRotation,
		"sensitivity.x":     s.Sensitivity.X,
		"sensitivity.y":     s.Sensitivity.Y,
		"dir_multipliers.x": s.DirMultipliers.X,
		"dir_multipliers.y": s.DirMultipliers.Y,
		"speed_cap":         s.SpeedCap,
	}
	for axis, a := range s.Args {
		for name, v := range map[string]float64{
			"offset": a.Offset, "accel": a.Accel, "limit": a.Limit, "exponent": a.Exponent,
			"midpoint": a.Midpoint, "power_scale": a.PowerScale, "weight": a.Weight, "scale_cap": a.ScaleCap,
		} {
			finite[fmt.Sprintf("args[%d].%s", axis, name)] = v
		}
	}
	for name, v := range finite {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s must be finite", name)
		}
	}
	if s.SpeedCap < 0 {
		return errors.New("speed_cap must be >= 0")
	}
	return nil
}

// patchSettings decodes a JSON settings document over base and validates the
// result. Keys absent from the document keep base's values. modes and args
// are patched per element, so a one-element array changes only the X axis.
func patchSettings(base rawaccel.Settings, doc []byte) (rawaccel.Settings, error) {
	var arrays struct {
		Modes []json.RawMessage `json:"modes"`
		Args  []json.RawMessage `json:"args"`
	}
	if err := json.Unmarshal(doc, &arrays); err != nil {
		return rawaccel.Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	if len(arrays.Modes) > len(base.Modes) || len(arrays.Args) > len(base.Args) {
		return rawaccel.Settings{}, errors.New("decode settings: modes and args take at most 2 entries")
	}

	s := base
	if err := json.Unmarshal(doc, &s); err != nil {
		return rawaccel.Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	// encoding/json zeroes the array tail the document did not fill.
	s.Modes, s.Args = base.Modes, base.Args
	for i, raw := range arrays.Modes {
		if err := json.Unmarshal(raw, &s.Modes[i]); err != nil {
			return rawaccel.Settings{}, fmt.Errorf("decode settings: modes[%d]: %w", i, err)
		}
	}
	for i, raw := range arrays.Args {
		if err := json.Unmarshal(raw, &s.Args[i]); err != nil {
			return rawaccel.Settings{}, fmt.Errorf("decode settings: args[%d]: %w", i, err)
		}
	}

	if err := validateSettings(s); err != nil {
		return rawaccel.Settings{}, err
	}
	return s, nil
}

// ToSettings returns the filter record the config describes.
func (c *Config) ToSettings() rawaccel.Settings {
	return c.Accel
}

// SettleDelay converts settle_delay_ms to a duration.
func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.SettleDelayMS) * time.Millisecond
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
