package api

import (
	"context"
	"encoding/json"
	"sync"

	"palletroute/internal/heuristic"
)

// RunEvent is one streamed run event. Data is the JSON encoding of the
// heuristic event so it crosses brokers unchanged.
type RunEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// EventBroker fans run events out to stream subscribers.
type EventBroker interface {
	Subscribe(runID string) chan RunEvent
	Unsubscribe(runID string, ch chan RunEvent)
	Publish(runID string, evt RunEvent)
}

type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan RunEvent]struct{} // runID -> set of channels
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan RunEvent]struct{}{}}
}

func (b *Broker) Subscribe(runID string) chan RunEvent {
	ch := make(chan RunEvent, 64)
	b.mu.Lock()
	if b.subs[runID] == nil {
		b.subs[runID] = map[chan RunEvent]struct{}{}
	}
	b.subs[runID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(runID string, ch chan RunEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.subs[runID]
	if _, ok := m[ch]; !ok {
		return
	}
	delete(m, ch)
	if len(m) == 0 {
		delete(b.subs, runID)
	}
	close(ch)
}

// Publish never blocks: slow subscribers drop events.
func (b *Broker) Publish(runID string, evt RunEvent) {
	b.mu.Lock()
	for ch := range b.subs[runID] {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.Unlock()
}

// BrokerObserver publishes every heuristic event of a run to broker.
func BrokerObserver(broker EventBroker) heuristic.Observer {
	return heuristic.ObserverFunc(func(_ context.Context, ev heuristic.Event) {
		if ev.RunID == "" {
			return
		}
		data, err := json.Marshal(ev)
		if err != nil {
			return
		}
		broker.Publish(ev.RunID, RunEvent{Type: ev.Type, Data: data})
	})
}

func terminalEvent(t string) bool {
	return t == heuristic.EventRunCompleted || t == heuristic.EventRunFailed
}
