package checkout

import "sync"

// cartLocks serializes checkouts per cart id. Without it two concurrent
// checkout calls could both snapshot the cart before either clears it and
// create two orders from one cart.
type cartLocks struct {
	mu    sync.Mutex
	locks map[string]*cartLock
}

type cartLock struct {
	sync.Mutex
	refs int
}

func (c *cartLocks) lock(cartID string) func() {
	c.mu.Lock()
	if c.locks == nil {
		c.locks = make(map[string]*cartLock)
	}
	l, ok := c.locks[cartID]
	if !ok {
		l = &cartLock{}
		c.locks[cartID] = l
	}
	l.refs++
	c.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()

		c.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(c.locks, cartID)
		}
		c.mu.Unlock()
	}
}
