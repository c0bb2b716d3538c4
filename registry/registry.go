// Package registry lets hubs advertise their transport address and clients
// find one to dial. It sits entirely outside the channel core: openChannel
// takes whatever address discovery produced.
package registry

// Endpoint describes one reachable hub instance.
type Endpoint struct {
	Addr   string // dialable transport address, e.g. "wss://hub.example:8443/channel"
	Weight int    // relative preference for balancing, optional
}

// Registry is the discovery collaborator: hubs register themselves under a
// logical name, clients discover the instances behind it.
type Registry interface {
	Register(name string, ep Endpoint, ttl int64) error
	Deregister(name string, addr string) error
	Discover(name string) ([]Endpoint, error)
	Watch(name string) <-chan []Endpoint
}
