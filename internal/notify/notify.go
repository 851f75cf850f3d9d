package notify

import "sync"

// Event tells the interface layer a rate limit was hit. The core renders
// nothing itself; subscribers decide the UI treatment.
type Event struct {
	Category          string `json:"category"`
	Message           string `json:"message"`
	RetryAfterSeconds int    `json:"retry_after_seconds"`
}

// Dispatcher fans events out to subscribers. Publish never blocks; a
// subscriber whose buffer is full misses the event.
type Dispatcher struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{subs: make(map[int]chan Event)}
}

// Subscribe registers a listener. The returned func cancels the
// subscription and closes the channel.
func (d *Dispatcher) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		close(ch)
		return ch, func() {}
	}
	id := d.nextID
	d.nextID++
	d.subs[id] = ch

	cancel := func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if _, ok := d.subs[id]; ok {
			delete(d.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

func (d *Dispatcher) Publish(e Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, ch := range d.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Close drops all subscribers. Further Publish calls are no-ops.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	for id, ch := range d.subs {
		delete(d.subs, id)
		close(ch)
	}
}
