// Package feed is the in-process change feed. Stores publish row changes,
// SSE and websocket subscribers receive them filtered by session.
package feed

import (
	"encoding/json"
	"sync"
	"time"
)

type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Event is a change notification for one row set. SessionID is empty for
// broadcast messages.
type Event struct {
	Table     string    `json:"table"`
	Op        Op        `json:"op"`
	SessionID string    `json:"sessionId,omitempty"`
	Message   string    `json:"message,omitempty"`
	At        time.Time `json:"at"`
}

// All subscribes to every session.
const All = ""

// Broker is an in-process pub/sub keyed by session ID.
type Broker struct {
	mu   sync.RWMutex
	subs map[string]map[chan []byte]struct{}
}

func NewBroker() *Broker {
	return &Broker{
		subs: make(map[string]map[chan []byte]struct{}),
	}
}

// Subscribe returns a channel that receives JSON-encoded events for the
// given session, or for every session when sessionID is All.
func (b *Broker) Subscribe(sessionID string) chan []byte {
	ch := make(chan []byte, 16)
	b.mu.Lock()
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[chan []byte]struct{})
	}
	b.subs[sessionID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(sessionID string, ch chan []byte) {
	b.mu.Lock()
	delete(b.subs[sessionID], ch)
	if len(b.subs[sessionID]) == 0 {
		delete(b.subs, sessionID)
	}
	b.mu.Unlock()
}

// Publish delivers e to the subscribers of its session and to the All
// subscribers. Broadcast events reach every subscriber.
func (b *Broker) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	data, _ := json.Marshal(e)

	b.mu.RLock()
	defer b.mu.RUnlock()

	if e.SessionID == All {
		for _, set := range b.subs {
			send(set, data)
		}
		return
	}
	send(b.subs[e.SessionID], data)
	send(b.subs[All], data)
}

func send(set map[chan []byte]struct{}, data []byte) {
	for ch := range set {
		select {
		case ch <- data:
		default:
			// Drop if subscriber is slow.
		}
	}
}

// Subscribers returns the number of open subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, set := range b.subs {
		n += len(set)
	}
	return n
}
