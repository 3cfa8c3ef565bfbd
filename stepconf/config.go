// Package stepconf holds the compile-time configuration for the stepper
// motion core: axis count, ring sizes, AMASS levels, and timer frequencies.
// These mirror the #define knobs of the distilled specification; Go has no
// user-level compile-time assertion, so the one static invariant the spec
// calls out (MaxAmassLevel >= 1) is checked by stepper.NewCore instead.
package stepconf

const (
	// NAxis is the number of stepper axes this build is compiled for.
	NAxis = 3

	// SegmentBufferSize is N_SEG, the segment ring capacity. The block pool
	// is sized one smaller (see block.Pool) so that a fresh block entry can
	// never overrun a still-referenced one.
	SegmentBufferSize = 12

	// MaxAmassLevel is the highest step-smoothing level AMASS may select.
	MaxAmassLevel = 3

	// AccelerationTicksPerSecond is how often the Preparer re-evaluates the
	// velocity profile: one segment covers 1/AccelerationTicksPerSecond
	// seconds of nominal motion.
	AccelerationTicksPerSecond = 100

	// FTimerStepper is the step timer's tick frequency in Hz.
	FTimerStepper = 24_000_000

	// TicksPerMicrosecond derives from FTimerStepper.
	TicksPerMicrosecond = FTimerStepper / 1_000_000

	// MaxStepRateHz bounds how fast the timer is ever asked to tick.
	MaxStepRateHz = 30_000

	// DualXAxis and DualYAxis enable pulse fan-out to a second motor on the
	// named axis. Pure output-time concern; the Bresenham tracer is
	// unaffected (distilled spec §9).
	DualXAxis = false
	DualYAxis = false

	// ParkingEnable turns on the snapshot/restore machinery that lets a
	// parking interlude suspend and later resume a partially-consumed block.
	ParkingEnable = true

	// StepTimerMin is the minimum timer reload value, chosen so the tick
	// handler is never asked to run faster than the CPU can service it.
	StepTimerMin = FTimerStepper / MaxStepRateHz

	// AMASS cutoffs, in cycles_per_tick (timer ticks between steps, before
	// the segment's amass shift). Below AmassLevel1 the dominant-axis rate
	// is already high enough that no interleaving is needed; above
	// AmassLevel3 the step rate is low enough to need the full three levels
	// of sub-step interleaving. Chosen so no level drives the tick handler
	// past roughly 16 kHz.
	AmassLevel1 = FTimerStepper / 8000
	AmassLevel2 = FTimerStepper / 4000
	AmassLevel3 = FTimerStepper / 2000

	// DtSegment is the nominal duration of one segment, in minutes (the
	// Preparer's internal time unit, matching planner speeds in mm/min).
	DtSegment = 1.0 / (AccelerationTicksPerSecond * 60.0)

	// ReqMMIncrementScalar sets the minimum guaranteed distance per segment,
	// expressed as a multiple of one step's worth of travel, so that even
	// the slowest segment always contains at least one step.
	ReqMMIncrementScalar = 1.25

	// TicksPerMinute converts a duration in minutes to step-timer ticks.
	TicksPerMinute = FTimerStepper * 60
)
