package routine

// RunState is the accumulated run information of one routine invocation:
// every recorded node result plus the read-only constant inputs (hardware
// constants and the qubit's stored parameters at run start). It is owned
// by a single orchestrator invocation and never shared across concurrent
// qubit calibrations.
type RunState struct {
	hw     map[string]float64
	qubit  map[string]float64
	result map[string]*Result
	order  []string
}

// NewRunState creates a fresh run state seeded with hardware constants and
// the qubit parameter snapshot taken at run start.
func NewRunState(hw, qubitParams map[string]float64) *RunState {
	return &RunState{
		hw:     hw,
		qubit:  qubitParams,
		result: make(map[string]*Result),
	}
}

// Record appends a terminal result for a node. Recording a node twice is a
// programming error; results are immutable history.
func (s *RunState) Record(res *Result) {
	if _, exists := s.result[res.NodeID]; exists {
		panic("routine: result recorded twice for node " + res.NodeID)
	}
	s.result[res.NodeID] = res
	s.order = append(s.order, res.NodeID)
}

// Result returns the recorded result for a node, if any.
func (s *RunState) Result(nodeID string) (*Result, bool) {
	res, ok := s.result[nodeID]
	return res, ok
}

// Terminal reports whether a node already holds a terminal result.
func (s *RunState) Terminal(nodeID string) bool {
	_, ok := s.result[nodeID]
	return ok
}

// Results returns all recorded results in record order.
func (s *RunState) Results() []*Result {
	out := make([]*Result, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.result[id])
	}
	return out
}

// Hardware returns the hardware constants visible to formulas.
func (s *RunState) Hardware() map[string]float64 { return s.hw }

// QubitParams returns the qubit parameter snapshot taken at run start.
func (s *RunState) QubitParams() map[string]float64 { return s.qubit }
