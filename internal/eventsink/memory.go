package eventsink

import "sync"

// MemorySink is an in-process Sink for tests, recording every call
// instead of touching disk.
type MemorySink struct {
	mu      sync.Mutex
	records []Record
}

func NewMemorySink() *MemorySink { return &MemorySink{} }

func (s *MemorySink) TX(payload []byte) {
	s.append(Record{Kind: "tx", Bytes: append([]byte(nil), payload...)})
}

func (s *MemorySink) RX(payload []byte, rssiDbm *int, snrDb *float32) {
	s.append(Record{Kind: "rx", Bytes: append([]byte(nil), payload...), RssiDbm: rssiDbm, SnrDb: snrDb})
}

func (s *MemorySink) Event(tag string) {
	s.append(Record{Kind: "event", Tag: tag})
}

func (s *MemorySink) Close() error { return nil }

func (s *MemorySink) append(r Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
}

// Records returns a copy of everything recorded so far, for assertions.
func (s *MemorySink) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

var _ Sink = (*MemorySink)(nil)
