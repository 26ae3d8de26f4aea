package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the service.
const (
	// ReadingIngested carries an Ingested payload once a pipeline run ends.
	ReadingIngested = "reading.ingested"
	// DeviceRegistered carries a Registered payload.
	DeviceRegistered = "device.registered"
	// ConfigReloaded carries no payload; subscribers re-read the config manager.
	ConfigReloaded = "config.reloaded"
)

// Event is an in-memory signal used to decouple the pipeline from its
// observers (audit log, metrics).
//
// Publish never blocks. Subscribers use buffered channels and slow
// subscribers drop events.
type Event struct {
	Type string
	Time time.Time
	Data any
}

// Ingested summarises one ingestion. It holds counts only; per-destination
// detail stays in the HTTP response.
type Ingested struct {
	RequestID  string
	DeviceID   string
	Persisted  bool
	Eligible   bool
	Delivered  int
	Failed     int
	Skipped    int
	SkipReason string
	Took       time.Duration
}

// Registered summarises one register form submission.
type Registered struct {
	DeviceID    string
	Destination string
	ConfigErr   string
	SubErr      string
	Took        time.Duration
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory fanout bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	chs := make([]chan Event, 0, len(b.subs))
	for _, ch := range b.subs {
		chs = append(chs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range chs {
		// A concurrent unsubscribe may close ch.
		func() {
			defer func() { _ = recover() }()
			select {
			case ch <- e:
			default:
			}
		}()
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}
