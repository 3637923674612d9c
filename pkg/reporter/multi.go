package reporter

import "github.com/openfroyo/sous/pkg/engine"

// Multi forwards every event to each reporter in order.
type Multi []engine.Reporter

var _ engine.Reporter = Multi(nil)

// NewMulti drops nil reporters.
func NewMulti(reporters ...engine.Reporter) Multi {
	m := make(Multi, 0, len(reporters))
	for _, r := range reporters {
		if r != nil {
			m = append(m, r)
		}
	}
	return m
}

func (m Multi) PhaseStart(phase string) {
	for _, r := range m {
		r.PhaseStart(phase)
	}
}

func (m Multi) PhaseEnd(phase string, err error) {
	for _, r := range m {
		r.PhaseEnd(phase, err)
	}
}

func (m Multi) FeatureStart(feature string) {
	for _, r := range m {
		r.FeatureStart(feature)
	}
}

func (m Multi) FeatureEnd(feature string, stats engine.FeatureStats) {
	for _, r := range m {
		r.FeatureEnd(feature, stats)
	}
}

func (m Multi) FileOperation(op engine.FileOperation) {
	for _, r := range m {
		r.FileOperation(op)
	}
}

func (m Multi) DependencyOperation(op engine.DependencyOperation) {
	for _, r := range m {
		r.DependencyOperation(op)
	}
}

func (m Multi) Summary(s *engine.Summary) {
	for _, r := range m {
		r.Summary(s)
	}
}
