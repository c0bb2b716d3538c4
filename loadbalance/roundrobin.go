package loadbalance

import (
	"sync"

	"kvbridge/registry"
)

// RoundRobin cycles through endpoints in order across successive picks.
type RoundRobin struct {
	mu   sync.Mutex
	next int
}

func (r *RoundRobin) Pick(endpoints []registry.Endpoint) (registry.Endpoint, error) {
	if len(endpoints) == 0 {
		return registry.Endpoint{}, ErrNoEndpoints
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ep := endpoints[r.next%len(endpoints)]
	r.next++
	return ep, nil
}
