// Package eventsink is the append-only TX/RX/event log (C8): an
// external collaborator by contract (spec.md §6) that must accept
// records without applying backpressure to the core. The SQLite-backed
// implementation is adapted from the teacher's internal/storage/sqlite.go
// (database/sql + go-sqlite3 open/init/insert shape), swapping its
// upsert-by-id flows table for a strictly-append events table drained
// by a background writer goroutine off a buffered channel.
package eventsink

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/blasphemetheus/d2d-responder/internal/radio"
)

// Record is one entry of the append-only log.
type Record struct {
	Kind      string // "tx", "rx", or "event"
	Bytes     []byte
	HexString string
	RssiDbm   *int
	SnrDb     *float32
	Tag       string
	At        time.Time
}

// Sink is the C8 contract: record TX/RX/lifecycle events without ever
// blocking or erroring back to the caller.
type Sink interface {
	TX(payload []byte)
	RX(payload []byte, rssiDbm *int, snrDb *float32)
	Event(tag string)
	Close() error
}

const writeQueueCapacity = 256

// SQLiteSink is the concrete on-disk sink.
type SQLiteSink struct {
	db     *sql.DB
	log    *zap.Logger
	queue  chan Record
	done   chan struct{}
}

// NewSQLiteSink opens (creating if absent) the events database and
// starts the draining writer goroutine.
func NewSQLiteSink(dbPath string, log *zap.Logger) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("eventsink: open database: %w", err)
	}

	s := &SQLiteSink{
		db:    db,
		log:   log,
		queue: make(chan Record, writeQueueCapacity),
		done:  make(chan struct{}),
	}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	go s.run()
	return s, nil
}

func (s *SQLiteSink) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		bytes_hex TEXT,
		rssi_dbm INTEGER,
		snr_db REAL,
		tag TEXT,
		recorded_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind);
	CREATE INDEX IF NOT EXISTS idx_events_recorded_at ON events(recorded_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("eventsink: create schema: %w", err)
	}
	return nil
}

// run drains the queue on its own goroutine so TX/RX/Event never block
// the caller on disk I/O, satisfying "accept without backpressure."
func (s *SQLiteSink) run() {
	defer close(s.done)
	const insert = `
		INSERT INTO events (kind, bytes_hex, rssi_dbm, snr_db, tag, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	for r := range s.queue {
		var rssi, snr interface{}
		if r.RssiDbm != nil {
			rssi = *r.RssiDbm
		}
		if r.SnrDb != nil {
			snr = *r.SnrDb
		}
		if _, err := s.db.Exec(insert, r.Kind, r.HexString, rssi, snr, r.Tag, r.At); err != nil {
			if s.log != nil {
				s.log.Warn("eventsink: write failed", zap.Error(err), zap.String("kind", r.Kind))
			}
		}
	}
}

func (s *SQLiteSink) enqueue(r Record) {
	select {
	case s.queue <- r:
	default:
		if s.log != nil {
			s.log.Warn("eventsink: queue full, dropping record", zap.String("kind", r.Kind))
		}
	}
}

func (s *SQLiteSink) TX(payload []byte) {
	s.enqueue(Record{Kind: "tx", Bytes: payload, HexString: radio.EncodeHex(payload), At: time.Now()})
}

func (s *SQLiteSink) RX(payload []byte, rssiDbm *int, snrDb *float32) {
	s.enqueue(Record{Kind: "rx", Bytes: payload, HexString: radio.EncodeHex(payload), RssiDbm: rssiDbm, SnrDb: snrDb, At: time.Now()})
}

func (s *SQLiteSink) Event(tag string) {
	s.enqueue(Record{Kind: "event", Tag: tag, At: time.Now()})
}

// Close stops accepting new records, waits for the queue to drain, and
// closes the database handle.
func (s *SQLiteSink) Close() error {
	close(s.queue)
	<-s.done
	return s.db.Close()
}

var _ Sink = (*SQLiteSink)(nil)
