package server

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cheezgi/piccolo/vm"
)

// handle is a server-side reference to a pinned VM value.
type handle struct {
	id        string
	pin       *vm.Handle
	kind      string
	display   string
	sessionID string
	created   time.Time
	lastUsed  time.Time
}

// HandleStore maps opaque string IDs to VM root handles, so values handed
// to clients survive collections until released or expired.
//
// Create and Lookup run on the worker goroutine (inside VMWorker.Do).
// Release, ReleaseSession and Sweep must be called outside it; they hop
// onto the worker to unpin.
type HandleStore struct {
	mu      sync.Mutex
	handles map[string]*handle
	worker  *VMWorker
}

// NewHandleStore creates an empty handle store.
func NewHandleStore(worker *VMWorker) *HandleStore {
	return &HandleStore{
		handles: make(map[string]*handle),
		worker:  worker,
	}
}

// Create pins value and returns its handle ID.
func (s *HandleStore) Create(v *vm.VM, value vm.Value, sessionID string) string {
	id := "h-" + uuid.NewString()
	now := time.Now()
	h := &handle{
		id:        id,
		pin:       v.NewHandle(value),
		kind:      value.TypeName(),
		display:   value.Repr(),
		sessionID: sessionID,
		created:   now,
		lastUsed:  now,
	}

	s.mu.Lock()
	s.handles[id] = h
	s.mu.Unlock()
	return id
}

// Lookup returns the pinned value and refreshes the handle's TTL.
func (s *HandleStore) Lookup(id string) (vm.Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.handles[id]
	if !ok {
		return vm.Nil, false
	}
	h.lastUsed = time.Now()
	return h.pin.Value(), true
}

// Len returns the number of live handles.
func (s *HandleStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

// Release drops a handle. It reports whether the handle existed.
func (s *HandleStore) Release(id string) bool {
	s.mu.Lock()
	h, ok := s.handles[id]
	if ok {
		delete(s.handles, id)
	}
	s.mu.Unlock()

	if ok {
		s.unpin([]*handle{h})
	}
	return ok
}

// ReleaseSession drops every handle owned by a session.
func (s *HandleStore) ReleaseSession(sessionID string) int {
	return s.removeWhere(func(h *handle) bool { return h.sessionID == sessionID })
}

// Sweep drops handles not used within ttl.
func (s *HandleStore) Sweep(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)
	return s.removeWhere(func(h *handle) bool { return h.lastUsed.Before(cutoff) })
}

// ReleaseAll drops every handle.
func (s *HandleStore) ReleaseAll() int {
	return s.removeWhere(func(*handle) bool { return true })
}

func (s *HandleStore) removeWhere(match func(*handle) bool) int {
	s.mu.Lock()
	var removed []*handle
	for id, h := range s.handles {
		if match(h) {
			removed = append(removed, h)
			delete(s.handles, id)
		}
	}
	s.mu.Unlock()

	if len(removed) > 0 {
		s.unpin(removed)
	}
	return len(removed)
}

func (s *HandleStore) unpin(hs []*handle) {
	_, err := s.worker.Do(func(*vm.VM) interface{} {
		for _, h := range hs {
			h.pin.Release()
		}
		return nil
	})
	if err != nil {
		log.Warningf("could not unpin %d handles: %s", len(hs), err.Error())
	}
}

// StartSweeper runs periodic TTL sweeps in the background and returns a
// stop function.
func (s *HandleStore) StartSweeper(interval, ttl time.Duration) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				if n := s.Sweep(ttl); n > 0 {
					log.Infof("swept %d expired handles", n)
				}
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}
