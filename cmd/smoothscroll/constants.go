package main

// Linux input event types and codes (from <linux/input-event-codes.h>)
const (
	EV_SYN = 0x00
	EV_KEY = 0x01
	EV_REL = 0x02
	EV_MSC = 0x04

	EV_MAX  = 0x1f
	KEY_MAX = 0x2ff
	REL_MAX = 0x0f
	MSC_MAX = 0x07

	SYN_REPORT = 0x00

	REL_X            = 0x00
	REL_Y            = 0x01
	REL_HWHEEL       = 0x06
	REL_WHEEL        = 0x08
	REL_WHEEL_HI_RES = 0x0b
)

// Input event value constants for EV_KEY
const (
	evValueRelease = 0
	evValuePress   = 1
	evValueRepeat  = 2
)

// Smoother tunable defaults.
//
// Speeds are in high-resolution wheel units per second (120 units = one
// notch), accelerations in units/s^2. All durations are microseconds so the
// config file surface matches the kernel's timestamp granularity.
const (
	defaultTickIntervalUS = 2000

	defaultMinSpeed            = 0.0
	defaultMinDeceleration     = 1420.0
	defaultMaxDeceleration     = 6000.0
	defaultInitialSpeed        = 600.0
	defaultSpeedFactor         = 40.0
	defaultSpeedSmoothWindowUS = 200000

	defaultMaxSpeedIncreasePerWheelEvent = 1200.0
	defaultMaxSpeedDecreasePerWheelEvent = 0.0
	defaultDamping                       = 3.1

	defaultBrakingDejitterUS  = 100000
	defaultMaxBrakingTimes    = 3
	defaultBrakingCutOffSpeed = 1000.0

	defaultMouseMovementDejitterDistance   = 200
	defaultMaxMouseMovementEventIntervalUS = 50000
	defaultMouseMovementBrakingCutOffSpeed = 200.0
)

// Virtual output device identity defaults
const (
	defaultOutputName    = "smoothscroll virtual mouse"
	defaultOutputVendor  = 0x1234
	defaultOutputProduct = 0x5678
	defaultOutputVersion = 1
)

// maxEventDevices bounds the /dev/input/event* scan during auto-detection.
const maxEventDevices = 32
