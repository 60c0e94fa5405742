package audit

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"
)

// migrations run in order on every start. Rows chain in seq order; ts is stamped
// before the sink lock and can run backwards between neighbours.
var migrations = []string{`
CREATE TABLE IF NOT EXISTS bed_audit_events (
	seq BIGSERIAL,
	id TEXT PRIMARY KEY,
	event_type TEXT NOT NULL,
	payload JSONB NOT NULL,
	prev_hash TEXT,
	hash TEXT NOT NULL,
	ts TIMESTAMPTZ NOT NULL
)`,
	`ALTER TABLE bed_audit_events ADD COLUMN IF NOT EXISTS seq BIGSERIAL`,
	`CREATE UNIQUE INDEX IF NOT EXISTS bed_audit_events_seq_idx ON bed_audit_events (seq)`,
}

// PGSink appends events to Postgres as a hash chain: hash = sha256(payload || prevHash).
type PGSink struct {
	db *sql.DB
	mu sync.Mutex
}

func NewPGSink(db *sql.DB) *PGSink {
	return &PGSink{db: db}
}

// OpenPGSink connects with the postgres driver and makes sure the table exists.
func OpenPGSink(ctx context.Context, dsn string) (*PGSink, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := NewPGSink(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (p *PGSink) Migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate audit table: %w", err)
		}
	}
	return nil
}

func (p *PGSink) lastHash(ctx context.Context) (string, error) {
	var h sql.NullString
	err := p.db.QueryRowContext(ctx, `SELECT hash FROM bed_audit_events ORDER BY seq DESC LIMIT 1`).Scan(&h)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return h.String, nil
}

// ChainHash computes the hash of payload linked to the previous hash.
func ChainHash(payload []byte, prev string) (string, error) {
	concat := append([]byte{}, payload...)
	if prev != "" {
		prevBytes, err := hex.DecodeString(prev)
		if err != nil {
			return "", fmt.Errorf("decode prev hash: %w", err)
		}
		concat = append(concat, prevBytes...)
	}
	sum := sha256.Sum256(concat)
	return hex.EncodeToString(sum[:]), nil
}

func (p *PGSink) Record(ctx context.Context, ev *Event) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	prev, err := p.lastHash(ctx)
	if err != nil {
		return fmt.Errorf("fetch last hash: %w", err)
	}
	hash, err := ChainHash(payload, prev)
	if err != nil {
		return err
	}
	ev.PrevHash = prev
	ev.Hash = hash

	var prevArg interface{}
	if prev != "" {
		prevArg = prev
	}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO bed_audit_events (id, event_type, payload, prev_hash, hash, ts) VALUES ($1, $2, $3, $4, $5, $6)`,
		ev.ID, ev.Type, payload, prevArg, ev.Hash, ev.Ts)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (p *PGSink) Close() error {
	return p.db.Close()
}
