package planner

import "github.com/hrcornwell/stepcore/stepconf"

// StaticPlanner is a minimal in-memory Planner backed by a FIFO of
// pre-built blocks, used by tests to drive stepper.Core end-to-end without
// a real look-ahead planner.
type StaticPlanner struct {
	queue        []*Block
	current      *Block
	exitSpeedSqr float64
	feedOverride float64 // 1.0 = no override
}

// NewStaticPlanner returns a StaticPlanner with no feed override applied.
func NewStaticPlanner() *StaticPlanner {
	return &StaticPlanner{feedOverride: 1.0}
}

// Push appends a block to the planner's queue.
func (p *StaticPlanner) Push(b *Block) {
	p.queue = append(p.queue, b)
}

// SetExitSpeedSqr sets the value ExecBlockExitSpeedSqr returns, simulating
// a look-ahead recalculation of the block currently executing.
func (p *StaticPlanner) SetExitSpeedSqr(v float64) {
	p.exitSpeedSqr = v
}

// SetFeedOverride scales nominal speed returned by ComputeProfileNominalSpeed.
func (p *StaticPlanner) SetFeedOverride(pct float64) {
	p.feedOverride = pct
}

func (p *StaticPlanner) CurrentBlock() *Block {
	if p.current == nil {
		if len(p.queue) == 0 {
			return nil
		}
		p.current = p.queue[0]
		p.exitSpeedSqr = p.current.NominalSpeed * p.current.NominalSpeed
	}
	return p.current
}

func (p *StaticPlanner) SystemMotionBlock(distance [stepconf.NAxis]float64, rate float64) *Block {
	var steps [stepconf.NAxis]uint32
	var dirBits uint8
	var mm float64
	for axis, d := range distance {
		if d < 0 {
			dirBits |= 1 << uint(axis)
			d = -d
		}
		if d > mm {
			mm = d
		}
		steps[axis] = uint32(d + 0.5)
	}
	return &Block{
		StepCount:      steps,
		DirectionBits:  dirBits,
		StepsPerMM:     1.0,
		Millimeters:    mm,
		EntrySpeed:     0,
		NominalSpeed:   rate,
		Acceleration:   500 * 60, // mm/min^2
		IsSystemMotion: true,
	}
}

func (p *StaticPlanner) DiscardCurrentBlock() {
	if len(p.queue) > 0 {
		p.queue = p.queue[1:]
	}
	p.current = nil
}

func (p *StaticPlanner) ExecBlockExitSpeedSqr() float64 {
	return p.exitSpeedSqr
}

func (p *StaticPlanner) ComputeProfileNominalSpeed(b *Block) float64 {
	return b.NominalSpeed * p.feedOverride
}
