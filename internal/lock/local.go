package lock

import (
	"context"
	"sync"
	"time"
)

// Local is an in-process Locker. ttl is ignored: a lease lives until released.
type Local struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewLocal returns an empty in-process locker.
func NewLocal() *Local { return &Local{slots: make(map[string]*slot)} }

// Obtain waits for key to be free.
func (l *Local) Obtain(ctx context.Context, key string, _ time.Duration) (Lease, error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
		return &localLease{l: l, key: key, s: s}, nil
	case <-ctx.Done():
		l.unref(key, s)
		return nil, ErrNotObtained
	}
}

func (l *Local) unref(key string, s *slot) {
	l.mu.Lock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
	l.mu.Unlock()
}

type localLease struct {
	l    *Local
	key  string
	s    *slot
	once sync.Once
}

func (ll *localLease) Release(context.Context) error {
	ll.once.Do(func() {
		<-ll.s.ch
		ll.l.unref(ll.key, ll.s)
	})
	return nil
}
