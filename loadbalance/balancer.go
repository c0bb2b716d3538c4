// Package loadbalance picks one hub endpoint out of the set discovery
// returned. Selection happens once, at dial time: a channel stays bound to
// the endpoint it was opened against for its whole lifetime.
package loadbalance

import (
	"errors"

	"kvbridge/registry"
)

// ErrNoEndpoints is returned when discovery produced nothing to pick from.
var ErrNoEndpoints = errors.New("loadbalance: no endpoints available")

// Balancer picks one endpoint from a non-empty list.
type Balancer interface {
	Pick(endpoints []registry.Endpoint) (registry.Endpoint, error)
}
