package fetch

import "sync"

// call is one outstanding network operation. Concurrent callers for the
// same key block on wg and then read val/err.
type call struct {
	wg  sync.WaitGroup
	val []byte
	err error
}

// registry tracks in-flight operations by key so that at most one
// network call per key is outstanding at any instant. The check-and-
// register step in Fetcher.Do happens under mu, before the network call
// is issued; without that ordering two callers could both observe
// "no cache, no in-flight" and issue duplicate requests.
type registry struct {
	mu    sync.Mutex
	calls map[string]*call
}

func newRegistry() *registry {
	return &registry{
		calls: make(map[string]*call),
	}
}

// forget removes the in-flight marker for key, but only if it still
// refers to c. After a clear() a settling call's key may have been
// re-registered by a newer operation; that newer marker must survive.
// Callers already waiting on c keep their reference and still see its
// result.
func (r *registry) forget(key string, c *call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.calls[key] == c {
		delete(r.calls, key)
	}
}

// clear drops all in-flight markers.
func (r *registry) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = make(map[string]*call)
}

// pending returns the number of outstanding operations.
func (r *registry) pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}
