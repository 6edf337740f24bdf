package vm

// Step costs.
const (
	CostInstruction = uint64(1) // Any dispatched instruction
	CostLoopCheck   = uint64(1) // Each evaluation of a loop condition
)

// StepMeter counts executed steps against an optional limit.
type StepMeter struct {
	used  uint64
	limit uint64
}

// NewStepMeter creates a meter. A zero limit never runs out.
func NewStepMeter(limit uint64) *StepMeter {
	return &StepMeter{limit: limit}
}

// Consume charges cost steps.
func (m *StepMeter) Consume(cost uint64) error {
	if m.limit > 0 && m.limit-m.used < cost {
		m.used = m.limit
		return ErrStepLimit
	}
	m.used += cost
	return nil
}

// Used returns the steps consumed so far.
func (m *StepMeter) Used() uint64 {
	return m.used
}

// Remaining returns the steps left, or 0 for an unlimited meter.
func (m *StepMeter) Remaining() uint64 {
	if m.limit == 0 {
		return 0
	}
	return m.limit - m.used
}

// Limit returns the configured limit.
func (m *StepMeter) Limit() uint64 {
	return m.limit
}
