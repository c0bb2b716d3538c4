package registry

import (
	"context"
	"encoding/json"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const keyPrefix = "/kvbridge/"

// EtcdRegistry implements Registry on etcd v3. Hubs live under
//
//	Key:   /kvbridge/{name}/{addr}
//	Value: JSON-encoded Endpoint
//
// Registration uses TTL leases: when a hub dies without deregistering, its
// lease expires and the entry disappears on its own, so clients never
// discover ghost hubs.
type EtcdRegistry struct {
	client *clientv3.Client // thread-safe, shared across goroutines
}

// NewEtcdRegistry connects to the given etcd endpoints.
func NewEtcdRegistry(endpoints []string) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints: endpoints,
	})
	if err != nil {
		return nil, err
	}
	return &EtcdRegistry{client: c}, nil
}

// Register advertises a hub endpoint with a TTL lease and keeps the lease
// alive in the background until Deregister or process death.
func (r *EtcdRegistry) Register(name string, ep Endpoint, ttl int64) error {
	ctx := context.TODO()

	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}

	val, err := json.Marshal(ep)
	if err != nil {
		return err
	}

	_, err = r.client.Put(ctx, keyPrefix+name+"/"+ep.Addr, string(val), clientv3.WithLease(lease.ID))
	if err != nil {
		return err
	}

	ch, err := r.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return err
	}

	// Drain KeepAlive responses so the channel never fills up.
	go func() {
		for range ch {
		}
	}()
	return nil
}

// Deregister removes a hub endpoint. Called during graceful shutdown so
// clients stop dialing this instance before it closes its listener.
func (r *EtcdRegistry) Deregister(name string, addr string) error {
	_, err := r.client.Delete(context.TODO(), keyPrefix+name+"/"+addr)
	return err
}

// Discover returns all currently advertised endpoints for a hub name.
func (r *EtcdRegistry) Discover(name string) ([]Endpoint, error) {
	resp, err := r.client.Get(context.TODO(), keyPrefix+name+"/", clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	endpoints := make([]Endpoint, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var ep Endpoint
		if err := json.Unmarshal(kv.Value, &ep); err != nil {
			continue // skip malformed entries
		}
		endpoints = append(endpoints, ep)
	}
	return endpoints, nil
}

// Watch emits the full endpoint list whenever anything under the hub name
// changes (registration, deregistration, lease expiry).
func (r *EtcdRegistry) Watch(name string) <-chan []Endpoint {
	ch := make(chan []Endpoint, 1)

	go func() {
		watchChan := r.client.Watch(context.TODO(), keyPrefix+name+"/", clientv3.WithPrefix())
		for range watchChan {
			// Re-fetch the full list on any change rather than patching it
			// from individual events.
			endpoints, _ := r.Discover(name)
			ch <- endpoints
		}
	}()

	return ch
}
