package bridge

import "sync"

// HealthAggregator tracks the connectedness of both bridge halves and
// publishes only on transition of the overall "up"/"down" status: both
// halves up is the only "up" state, either half down makes the bridge
// overall "down".
type HealthAggregator struct {
	mu        sync.Mutex
	localUp   bool
	cloudUp   bool
	published string // "", "up", or "down"
	onChange  func(status string)
}

// NewHealthAggregator builds an aggregator that calls onChange exactly
// once per status transition.
func NewHealthAggregator(onChange func(status string)) *HealthAggregator {
	return &HealthAggregator{onChange: onChange}
}

func (h *HealthAggregator) SetLocal(up bool) {
	h.mu.Lock()
	h.localUp = up
	h.mu.Unlock()
	h.recompute()
}

func (h *HealthAggregator) SetCloud(up bool) {
	h.mu.Lock()
	h.cloudUp = up
	h.mu.Unlock()
	h.recompute()
}

func (h *HealthAggregator) recompute() {
	h.mu.Lock()
	status := "down"
	if h.localUp && h.cloudUp {
		status = "up"
	}
	changed := status != h.published
	if changed {
		h.published = status
	}
	h.mu.Unlock()

	if changed && h.onChange != nil {
		h.onChange(status)
	}
}
