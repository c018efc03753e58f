package opt

import "sync"

// MetricsStore keeps the latest ALNS metrics per label (usually the run or
// instance name). Safe for concurrent use.
type MetricsStore struct {
	mu    sync.Mutex
	store map[string]Metrics
}

func NewMetricsStore() *MetricsStore {
	return &MetricsStore{store: map[string]Metrics{}}
}

func (s *MetricsStore) Record(label string, m Metrics) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.store[label] = m
	s.mu.Unlock()
}

func (s *MetricsStore) Get(label string) (Metrics, bool) {
	if s == nil {
		return Metrics{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.store[label]
	return m, ok
}

func (s *MetricsStore) All() map[string]Metrics {
	out := map[string]Metrics{}
	if s == nil {
		return out
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range s.store {
		out[k] = v
	}
	return out
}

// Take returns and forgets the metrics recorded under label.
func (s *MetricsStore) Take(label string) (Metrics, bool) {
	if s == nil {
		return Metrics{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.store[label]
	delete(s.store, label)
	return m, ok
}
