package session

import "sync"

// notifier runs host-facing calls (media playback, score callbacks) one at a
// time, in the order they were queued, on its own goroutine. The controller
// queues them while holding its lock, so the host may call straight back
// into the controller from any of them.
type notifier struct {
	mu      sync.Mutex
	queue   []func()
	stopped bool

	wake chan struct{}
	done chan struct{}
}

func newNotifier() *notifier {
	n := &notifier{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go n.run()
	return n
}

// push queues fns. It never blocks. Calls pushed after stop are dropped.
func (n *notifier) push(fns ...func()) {
	if len(fns) == 0 {
		return
	}
	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		return
	}
	n.queue = append(n.queue, fns...)
	n.mu.Unlock()

	select {
	case n.wake <- struct{}{}:
	default:
	}
}

// stop drops every call that has not started yet and makes the goroutine
// exit. A call already running finishes. stop does not wait for it, so it is
// safe to call from a queued function.
func (n *notifier) stop() {
	n.mu.Lock()
	n.stopped = true
	n.queue = nil
	n.mu.Unlock()

	select {
	case n.wake <- struct{}{}:
	default:
	}
}

func (n *notifier) run() {
	defer close(n.done)
	for range n.wake {
		for {
			n.mu.Lock()
			if len(n.queue) == 0 {
				stopped := n.stopped
				n.mu.Unlock()
				if stopped {
					return
				}
				break
			}
			fn := n.queue[0]
			n.queue[0] = nil
			n.queue = n.queue[1:]
			n.mu.Unlock()

			fn()
		}
	}
}
