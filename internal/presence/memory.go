package presence

import (
	"context" // Subscription lifetime
	"sync"    // Record and queue guards
)

// MemorySource is an in-process presence source. Each subscription gets its
// own delivery goroutine, so values arrive in write order and never on the
// writer's stack.
type MemorySource struct {
	mu      sync.Mutex
	records map[string]string                  // Identity key to signal
	subs    map[string]map[*memorySub]struct{} // Open subscriptions per identity key
}

// NewMemorySource creates an empty source
func NewMemorySource() *MemorySource {
	return &MemorySource{
		records: make(map[string]string),
		subs:    make(map[string]map[*memorySub]struct{}),
	}
}

type memoryEvent struct {
	signal string
	err    error
}

type memorySub struct {
	source   *MemorySource
	key      string
	onChange ChangeFunc
	onError  ErrorFunc

	mu     sync.Mutex
	queue  []memoryEvent // Pending deliveries in write order
	wake   chan struct{} // Nudges run, buffered 1
	done   chan struct{} // Closed by Unsubscribe
	closed bool
}

// Subscribe delivers the current value (if the record exists) and every later write
func (s *MemorySource) Subscribe(ctx context.Context, identityKey string, onChange ChangeFunc, onError ErrorFunc) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub := &memorySub{
		source:   s,
		key:      identityKey,
		onChange: onChange,
		onError:  onError,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}

	s.mu.Lock()
	if s.subs[identityKey] == nil {
		s.subs[identityKey] = make(map[*memorySub]struct{})
	}
	s.subs[identityKey][sub] = struct{}{}
	if signal, ok := s.records[identityKey]; ok {
		sub.push(memoryEvent{signal: signal})
	}
	s.mu.Unlock()

	go sub.run(ctx)
	return sub, nil
}

// Set writes the signal for identityKey and fans it out to subscribers
func (s *MemorySource) Set(identityKey, signal string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[identityKey] = signal
	for sub := range s.subs[identityKey] {
		sub.push(memoryEvent{signal: signal})
	}
}

// Delete removes the record; subscribers observe an empty signal
func (s *MemorySource) Delete(identityKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, identityKey)
	for sub := range s.subs[identityKey] {
		sub.push(memoryEvent{})
	}
}

// Get returns the stored signal
func (s *MemorySource) Get(identityKey string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	signal, ok := s.records[identityKey]
	return signal, ok
}

// Fail reports a transport error to every subscriber of identityKey
func (s *MemorySource) Fail(identityKey string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subs[identityKey] {
		sub.push(memoryEvent{err: err})
	}
}

// Subscribers returns the number of open subscriptions for identityKey
func (s *MemorySource) Subscribers(identityKey string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs[identityKey])
}

func (m *memorySub) push(ev memoryEvent) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.queue = append(m.queue, ev)
	m.mu.Unlock()
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *memorySub) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			m.Unsubscribe()
			return
		case <-m.done:
			return
		case <-m.wake:
		}
		for {
			m.mu.Lock()
			if m.closed || len(m.queue) == 0 {
				m.mu.Unlock()
				break
			}
			ev := m.queue[0]
			m.queue = m.queue[1:]
			m.mu.Unlock()

			if ev.err != nil {
				if m.onError != nil {
					m.onError(ev.err)
				}
				continue
			}
			m.onChange(ev.signal)
		}
	}
}

// Unsubscribe stops delivery; queued values are discarded
func (m *memorySub) Unsubscribe() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.queue = nil
	close(m.done)
	m.mu.Unlock()

	m.source.mu.Lock()
	delete(m.source.subs[m.key], m)
	if len(m.source.subs[m.key]) == 0 {
		delete(m.source.subs, m.key)
	}
	m.source.mu.Unlock()
}
