package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration for the smoothscroll daemon.
//
// The config file is the primary configuration surface; flags exist for
// small overrides and environments where a file is awkward. Defaults and
// validation are centralized so the rest of the code can assume a
// well-formed config.
type Config struct {
	Input    InputConfig        `yaml:"input"`
	Output   OutputConfig       `yaml:"output"`
	Smoother SmootherFileConfig `yaml:"smoother"`
	IPC      IPCConfig          `yaml:"ipc"`
	StateWS  StateWSConfig      `yaml:"state_ws"`
	Logging  LoggingConfig      `yaml:"logging"`
}

type InputConfig struct {
	// Device is a /dev/input/eventN path, or "auto" to scan for the first
	// mouse advertising a vertical wheel.
	Device string `yaml:"device"`

	// FreeSpinKey is an EV_KEY code that toggles free spin instead of
	// stopping the animation. 0 disables the toggle; every key press then
	// stops the animation.
	FreeSpinKey int `yaml:"free_spin_key"`
}

type OutputConfig struct {
	Name    string `yaml:"name"`
	Vendor  uint16 `yaml:"vendor"`
	Product uint16 `yaml:"product"`
	Version uint16 `yaml:"version"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"`
}

type StateWSConfig struct {
	// Port for the state websocket listener; 0 disables it.
	Port int `yaml:"port"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// SmootherFileConfig is the user-facing smoother configuration as
// represented in YAML. It maps 1:1 to SmootherOptions but uses
// YAML-friendly units (microseconds for durations). The `.inf` YAML
// literal is valid for the two per-event decrement tunables and means an
// opposite notch / any effective pointer motion stops the animation
// instantly.
type SmootherFileConfig struct {
	TickIntervalUS int `yaml:"tick_interval_us"`

	MinSpeed            float64 `yaml:"min_speed"`
	MinDeceleration     float64 `yaml:"min_deceleration"`
	MaxDeceleration     float64 `yaml:"max_deceleration"`
	InitialSpeed        float64 `yaml:"initial_speed"`
	SpeedFactor         float64 `yaml:"speed_factor"`
	SpeedSmoothWindowUS int     `yaml:"speed_smooth_window_us"`

	MaxSpeedIncreasePerWheelEvent float64 `yaml:"max_speed_increase_per_wheel_event"`
	MaxSpeedDecreasePerWheelEvent float64 `yaml:"max_speed_decrease_per_wheel_event"`
	Damping                       float64 `yaml:"damping"`

	UseBraking              bool    `yaml:"use_braking"`
	BrakingDejitterUS       int     `yaml:"braking_dejitter_us"`
	MaxBrakingTimes         int     `yaml:"max_braking_times"`
	BrakingCutOffSpeed      float64 `yaml:"braking_cut_off_speed"`
	SpeedDecreasePerBraking float64 `yaml:"speed_decrease_per_braking"`

	UseMouseMovementBraking         bool    `yaml:"use_mouse_movement_braking"`
	MouseMovementDejitterDistance   int     `yaml:"mouse_movement_dejitter_distance"`
	MaxMouseMovementEventIntervalUS int     `yaml:"max_mouse_movement_event_interval_us"`
	MouseMovementBrakingCutOffSpeed float64 `yaml:"mouse_movement_braking_cut_off_speed"`
	SpeedDecreasePerMouseMovement   float64 `yaml:"speed_decrease_per_mouse_movement"`
}

// DefaultConfig returns a fully-populated Config with defaults.
// Keep this aligned with constants.go.
func DefaultConfig() Config {
	return Config{
		Input: InputConfig{
			Device:      "auto",
			FreeSpinKey: 0,
		},
		Output: OutputConfig{
			Name:    defaultOutputName,
			Vendor:  defaultOutputVendor,
			Product: defaultOutputProduct,
			Version: defaultOutputVersion,
		},
		Smoother: SmootherFileConfig{
			TickIntervalUS: defaultTickIntervalUS,

			MinSpeed:            defaultMinSpeed,
			MinDeceleration:     defaultMinDeceleration,
			MaxDeceleration:     defaultMaxDeceleration,
			InitialSpeed:        defaultInitialSpeed,
			SpeedFactor:         defaultSpeedFactor,
			SpeedSmoothWindowUS: defaultSpeedSmoothWindowUS,

			MaxSpeedIncreasePerWheelEvent: defaultMaxSpeedIncreasePerWheelEvent,
			MaxSpeedDecreasePerWheelEvent: defaultMaxSpeedDecreasePerWheelEvent,
			Damping:                       defaultDamping,

			UseBraking:              true,
			BrakingDejitterUS:       defaultBrakingDejitterUS,
			MaxBrakingTimes:         defaultMaxBrakingTimes,
			BrakingCutOffSpeed:      defaultBrakingCutOffSpeed,
			SpeedDecreasePerBraking: math.Inf(1),

			UseMouseMovementBraking:         true,
			MouseMovementDejitterDistance:   defaultMouseMovementDejitterDistance,
			MaxMouseMovementEventIntervalUS: defaultMaxMouseMovementEventIntervalUS,
			MouseMovementBrakingCutOffSpeed: defaultMouseMovementBrakingCutOffSpeed,
			SpeedDecreasePerMouseMovement:   math.Inf(1),
		},
		IPC: IPCConfig{
			SocketPath: "/tmp/smoothscroll.sock",
		},
		StateWS: StateWSConfig{
			Port: 0,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file on top of defaults.
// Unknown fields are rejected (helps catch typos) via KnownFields(true).
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Ensure there's no trailing garbage after the document.
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides applies flag values on top of a loaded config. Each
// override is applied only when its pointer is non-nil, so a config file
// value survives an unset flag.
type FlagOverrides struct {
	Device      *string
	FreeSpinKey *int

	OutputName *string

	TickIntervalUS *int
	InitialSpeed   *float64
	Damping        *float64
	SpeedFactor    *float64

	UseBraking              *bool
	UseMouseMovementBraking *bool

	IPCSocketPath *string
	StateWSPort   *int
	LogLevel      *string
}

// Apply merges the overrides into cfg. Nil pointers are ignored.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.Device != nil {
		cfg.Input.Device = *o.Device
	}
	if o.FreeSpinKey != nil {
		cfg.Input.FreeSpinKey = *o.FreeSpinKey
	}
	if o.OutputName != nil {
		cfg.Output.Name = *o.OutputName
	}
	if o.TickIntervalUS != nil {
		cfg.Smoother.TickIntervalUS = *o.TickIntervalUS
	}
	if o.InitialSpeed != nil {
		cfg.Smoother.InitialSpeed = *o.InitialSpeed
	}
	if o.Damping != nil {
		cfg.Smoother.Damping = *o.Damping
	}
	if o.SpeedFactor != nil {
		cfg.Smoother.SpeedFactor = *o.SpeedFactor
	}
	if o.UseBraking != nil {
		cfg.Smoother.UseBraking = *o.UseBraking
	}
	if o.UseMouseMovementBraking != nil {
		cfg.Smoother.UseMouseMovementBraking = *o.UseMouseMovementBraking
	}
	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.StateWSPort != nil {
		cfg.StateWS.Port = *o.StateWSPort
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
// Call after defaults + file + overrides are applied.
func (c *Config) Validate() error {
	if c.Input.Device == "" {
		return errors.New("input.device must not be empty (use \"auto\" to scan)")
	}
	if c.Input.FreeSpinKey < 0 || c.Input.FreeSpinKey > KEY_MAX {
		return fmt.Errorf("input.free_spin_key must be in [0, %d]", KEY_MAX)
	}

	if c.Output.Name == "" {
		return errors.New("output.name must not be empty")
	}
	if len(c.Output.Name) >= uinputMaxNameSize {
		return fmt.Errorf("output.name must be shorter than %d bytes", uinputMaxNameSize)
	}

	s := &c.Smoother
	if s.TickIntervalUS <= 0 {
		return errors.New("smoother.tick_interval_us must be > 0")
	}
	if s.MinSpeed < 0 {
		return errors.New("smoother.min_speed must be >= 0")
	}
	if s.MinDeceleration < 0 || s.MaxDeceleration < 0 {
		return errors.New("smoother.min_deceleration and max_deceleration must be >= 0")
	}
	if s.MinDeceleration > s.MaxDeceleration {
		return errors.New("smoother.min_deceleration must be <= smoother.max_deceleration")
	}
	if s.InitialSpeed <= 0 {
		return errors.New("smoother.initial_speed must be > 0")
	}
	if s.SpeedFactor <= 0 {
		return errors.New("smoother.speed_factor must be > 0")
	}
	if s.SpeedSmoothWindowUS <= 0 {
		return errors.New("smoother.speed_smooth_window_us must be > 0")
	}
	if s.MaxSpeedIncreasePerWheelEvent < 0 || s.MaxSpeedDecreasePerWheelEvent < 0 {
		return errors.New("smoother per-event speed caps must be >= 0")
	}
	if s.Damping < 0 {
		return errors.New("smoother.damping must be >= 0")
	}
	if s.BrakingDejitterUS < 0 {
		return errors.New("smoother.braking_dejitter_us must be >= 0")
	}
	if s.MaxBrakingTimes < 1 {
		return errors.New("smoother.max_braking_times must be >= 1")
	}
	if s.BrakingCutOffSpeed < 0 {
		return errors.New("smoother.braking_cut_off_speed must be >= 0")
	}
	if s.SpeedDecreasePerBraking < 0 {
		return errors.New("smoother.speed_decrease_per_braking must be >= 0 (.inf for instant stop)")
	}
	if s.MouseMovementDejitterDistance < 0 {
		return errors.New("smoother.mouse_movement_dejitter_distance must be >= 0")
	}
	if s.MaxMouseMovementEventIntervalUS < 0 {
		return errors.New("smoother.max_mouse_movement_event_interval_us must be >= 0")
	}
	if s.MouseMovementBrakingCutOffSpeed < 0 {
		return errors.New("smoother.mouse_movement_braking_cut_off_speed must be >= 0")
	}
	if s.SpeedDecreasePerMouseMovement < 0 {
		return errors.New("smoother.speed_decrease_per_mouse_movement must be >= 0 (.inf for instant stop)")
	}

	if c.IPC.SocketPath == "" {
		return errors.New("ipc.socket_path must not be empty")
	}
	if c.StateWS.Port < 0 || c.StateWS.Port > 65535 {
		return errors.New("state_ws.port must be in [0, 65535]")
	}
	if c.Logging.Level == "" {
		return errors.New("logging.level must not be empty")
	}

	return nil
}

// ToSmootherOptions converts the file config into the engine options.
func (c *Config) ToSmootherOptions() SmootherOptions {
	s := c.Smoother
	return SmootherOptions{
		TickInterval: time.Duration(s.TickIntervalUS) * time.Microsecond,

		MinSpeed:          s.MinSpeed,
		MinDeceleration:   s.MinDeceleration,
		MaxDeceleration:   s.MaxDeceleration,
		InitialSpeed:      s.InitialSpeed,
		SpeedFactor:       s.SpeedFactor,
		SpeedSmoothWindow: time.Duration(s.SpeedSmoothWindowUS) * time.Microsecond,

		MaxSpeedIncreasePerWheelEvent: s.MaxSpeedIncreasePerWheelEvent,
		MaxSpeedDecreasePerWheelEvent: s.MaxSpeedDecreasePerWheelEvent,
		Damping:                       s.Damping,

		UseBraking:              s.UseBraking,
		BrakingDejitter:         time.Duration(s.BrakingDejitterUS) * time.Microsecond,
		MaxBrakingTimes:         s.MaxBrakingTimes,
		BrakingCutOffSpeed:      s.BrakingCutOffSpeed,
		SpeedDecreasePerBraking: s.SpeedDecreasePerBraking,

		UseMouseMovementBraking:         s.UseMouseMovementBraking,
		MouseMovementDejitterDistance:   int32(s.MouseMovementDejitterDistance),
		MaxMouseMovementEventInterval:   time.Duration(s.MaxMouseMovementEventIntervalUS) * time.Microsecond,
		MouseMovementBrakingCutOffSpeed: s.MouseMovementBrakingCutOffSpeed,
		SpeedDecreasePerMouseMovement:   s.SpeedDecreasePerMouseMovement,
	}
}
