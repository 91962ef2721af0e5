package logrelay

import (
	"context"
	stdErrors "errors"
	"sync"
	"sync/atomic"
)

const (
	defaultBufferSize    = 64
	broadcastQueueLength = 256
)

var (
	errHubNotStarted = stdErrors.New("log relay hub not started")
	errHubClosed     = stdErrors.New("log relay hub closed")
)

type listener struct {
	send chan []byte
}

// Hub fans payloads out to connected listeners. It is owned by the process
// that starts it; Close disconnects every listener.
type Hub struct {
	bufferSize int

	register   chan *listener
	unregister chan *listener
	broadcast  chan []byte
	done       chan struct{}
	stopped    chan struct{}

	started   atomic.Bool
	closeOnce sync.Once
	count     atomic.Int64
}

// NewHub builds a hub whose listeners buffer up to bufferSize payloads
// before they are dropped as slow consumers.
func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Hub{
		bufferSize: bufferSize,
		register:   make(chan *listener),
		unregister: make(chan *listener),
		broadcast:  make(chan []byte, broadcastQueueLength),
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
}

// Start runs the hub loop until ctx is canceled or Close is called. Calling
// Start more than once has no effect.
func (h *Hub) Start(ctx context.Context) {
	if !h.started.CompareAndSwap(false, true) {
		return
	}
	go h.run(ctx)
}

// Close stops the hub and disconnects every listener.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
	if h.started.Load() {
		<-h.stopped
	}
}

// Listeners reports how many listeners are connected.
func (h *Hub) Listeners() int {
	return int(h.count.Load())
}

// Subscribe registers a listener. The returned channel is closed when the
// listener is dropped, unsubscribed, or the hub stops.
func (h *Hub) Subscribe() (<-chan []byte, func(), error) {
	if !h.started.Load() {
		return nil, nil, errHubNotStarted
	}
	l := &listener{send: make(chan []byte, h.bufferSize)}
	select {
	case h.register <- l:
	case <-h.stopped:
		return nil, nil, errHubClosed
	}

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			select {
			case h.unregister <- l:
			case <-h.stopped:
			}
		})
	}
	return l.send, unsubscribe, nil
}

// Broadcast queues payload for every listener. It never blocks and reports
// false when the payload was dropped.
func (h *Hub) Broadcast(payload []byte) bool {
	select {
	case <-h.done:
		return false
	default:
	}
	select {
	case h.broadcast <- payload:
		return true
	default:
		return false
	}
}

func (h *Hub) run(ctx context.Context) {
	listeners := map[*listener]struct{}{}
	defer func() {
		for l := range listeners {
			close(l.send)
		}
		h.count.Store(0)
		close(h.stopped)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case l := <-h.register:
			listeners[l] = struct{}{}
			h.count.Store(int64(len(listeners)))
		case l := <-h.unregister:
			if _, ok := listeners[l]; ok {
				delete(listeners, l)
				close(l.send)
				h.count.Store(int64(len(listeners)))
			}
		case payload := <-h.broadcast:
			for l := range listeners {
				select {
				case l.send <- payload:
				default:
					delete(listeners, l)
					close(l.send)
				}
			}
			h.count.Store(int64(len(listeners)))
		}
	}
}
