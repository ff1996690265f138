package knot

import (
	"sync"
	"time"

	"golang.org/x/exp/slices"
)

// Monitor coalesces update notifications. Waiters take the current
// notify channel and block on it; `NotifyAll` closes the channel and
// swaps in a new one, waking every waiter at once.
type Monitor struct {
	mutex  sync.Mutex
	update chan struct{}
}

func NewMonitor() *Monitor {
	return &Monitor{
		update: make(chan struct{}),
	}
}

func (self *Monitor) NotifyChannel() chan struct{} {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.update
}

func (self *Monitor) NotifyAll() {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	close(self.update)
	self.update = make(chan struct{})
}

// makes a copy of the list on update,
// so that a snapshot from `get` is safe to iterate concurrently
type CallbackList[T comparable] struct {
	mutex     sync.Mutex
	callbacks []T
}

func NewCallbackList[T comparable]() *CallbackList[T] {
	return &CallbackList[T]{}
}

func (self *CallbackList[T]) Get() []T {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.callbacks
}

func (self *CallbackList[T]) Add(callback T) func() {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	i := slices.Index(self.callbacks, callback)
	if 0 <= i {
		// already present
		return func() {
			self.Remove(callback)
		}
	}
	nextCallbacks := slices.Clone(self.callbacks)
	nextCallbacks = append(nextCallbacks, callback)
	self.callbacks = nextCallbacks
	return func() {
		self.Remove(callback)
	}
}

func (self *CallbackList[T]) Remove(callback T) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	i := slices.Index(self.callbacks, callback)
	if i < 0 {
		// not present
		return
	}
	nextCallbacks := slices.Clone(self.callbacks)
	nextCallbacks = slices.Delete(nextCallbacks, i, i+1)
	self.callbacks = nextCallbacks
}

// Reconnect spaces out connection attempts so that a failing endpoint
// is retried at most once per timeout, measured from creation.
type Reconnect struct {
	startTime time.Time
	timeout   time.Duration
}

func NewReconnect(timeout time.Duration) *Reconnect {
	return &Reconnect{
		startTime: time.Now(),
		timeout:   timeout,
	}
}

func (self *Reconnect) After() <-chan time.Time {
	elapsed := time.Since(self.startTime)
	if self.timeout <= elapsed {
		c := make(chan time.Time, 1)
		c <- time.Now()
		return c
	}
	return time.After(self.timeout - elapsed)
}
