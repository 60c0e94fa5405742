package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// VerifyChain walks bed_audit_events in insertion order and checks that every
// row links to its predecessor and that its hash matches the stored payload.
// It returns the number of verified events and the first problem found.
func VerifyChain(ctx context.Context, db *sql.DB) (int, error) {
	rows, err := db.QueryContext(ctx, `SELECT seq, id, payload, prev_hash, hash FROM bed_audit_events ORDER BY seq ASC`)
	if err != nil {
		return 0, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var (
		n        int
		lastHash string
	)
	for rows.Next() {
		var (
			seq      int64
			id       string
			raw      []byte
			prevHash sql.NullString
			hash     string
		)
		if err := rows.Scan(&seq, &id, &raw, &prevHash, &hash); err != nil {
			return n, fmt.Errorf("scan row %d: %w", n+1, err)
		}
		if prevHash.String != lastHash {
			return n, fmt.Errorf("event %s (seq %d): prev hash %q does not link to %q", id, seq, prevHash.String, lastHash)
		}

		// JSONB does not keep the inserted bytes; re-marshal to the sorted compact form.
		var payload interface{}
		if err := json.Unmarshal(raw, &payload); err != nil {
			return n, fmt.Errorf("event %s: decode payload: %w", id, err)
		}
		canon, err := json.Marshal(payload)
		if err != nil {
			return n, fmt.Errorf("event %s: encode payload: %w", id, err)
		}
		computed, err := ChainHash(canon, prevHash.String)
		if err != nil {
			return n, fmt.Errorf("event %s: %w", id, err)
		}
		if computed != hash {
			return n, fmt.Errorf("event %s: hash mismatch computed=%s stored=%s", id, computed, hash)
		}
		lastHash = hash
		n++
	}
	if err := rows.Err(); err != nil {
		return n, fmt.Errorf("iterate audit events: %w", err)
	}
	return n, nil
}

// DB exposes the underlying handle for verification.
func (p *PGSink) DB() *sql.DB { return p.db }
