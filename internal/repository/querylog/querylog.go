// Package querylog keeps a capped audit trail of answered queries in a
// Redis list. Newest records sit at the head.
package querylog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fks-trading/intel/internal/domain"
)

// DefaultCap bounds the list length so the log cannot grow unbounded.
const DefaultCap = 1000

// store is the consumer interface for the audit log (ISP).
type store interface {
	LPush(ctx context.Context, key string, values ...[]byte) error
	LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error)
	LTrim(ctx context.Context, key string, start, stop int64) error
}

// Log writes and reads query audit records.
type Log struct {
	store  store
	key    string
	cap    int64
	logger *zap.Logger
}

// New creates a query log under prefix with the given capacity.
// capacity <= 0 falls back to DefaultCap.
func New(s store, prefix string, capacity int64, logger *zap.Logger) *Log {
	if capacity <= 0 {
		capacity = DefaultCap
	}
	return &Log{store: s, key: prefix + "querylog", cap: capacity, logger: logger}
}

// Save appends a record and trims the list to capacity. A missing ID or
// timestamp is filled in. Failures are logged and swallowed so auditing
// never blocks answering.
func (l *Log) Save(ctx context.Context, rec domain.QueryRecord) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		l.logger.Error("marshal query record", zap.Error(err))
		return
	}
	if err := l.store.LPush(ctx, l.key, data); err != nil {
		l.logger.Error("append query record", zap.Error(err))
		return
	}
	if err := l.store.LTrim(ctx, l.key, 0, l.cap-1); err != nil {
		l.logger.Error("trim query log", zap.Error(err))
	}
}

// Recent returns up to n records, newest first. Records that fail to
// decode are skipped.
func (l *Log) Recent(ctx context.Context, n int64) ([]domain.QueryRecord, error) {
	if n <= 0 {
		n = 10
	}
	raw, err := l.store.LRange(ctx, l.key, 0, n-1)
	if err != nil {
		return nil, fmt.Errorf("read query log: %w", err)
	}

	out := make([]domain.QueryRecord, 0, len(raw))
	for _, item := range raw {
		var rec domain.QueryRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			l.logger.Warn("skip malformed query record", zap.Error(err))
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}
