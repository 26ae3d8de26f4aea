package storage

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	logx "htbot/pkg/logx"
)

// sqlStore is the database/sql backend shared by sqlite and postgres.
// Queries are written with ? placeholders and rebound per dialect.
type sqlStore struct {
	db      *sql.DB
	log     logx.Logger
	dollars bool // postgres-style $n placeholders
}

func (s *sqlStore) migrate(ctx context.Context, script string) error {
	_, err := s.db.ExecContext(ctx, script)
	return err
}

func (s *sqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqlStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO audit(at, request_id, action, device_id, destination, delivered, failed, skipped, err, took_ms)
		 VALUES(?,?,?,?,?,?,?,?,?,?)`),
		e.At.UTC().UnixMilli(), nullStr(e.RequestID), e.Action, nullStr(e.DeviceID), nullStr(e.Destination),
		e.Delivered, e.Failed, e.Skipped, nullStr(e.Error), e.TookMS,
	)
	return err
}

func (s *sqlStore) PruneAudit(ctx context.Context, cutoff time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM audit WHERE at < ?`), cutoff.UTC().UnixMilli())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

func (s *sqlStore) rebind(q string) string {
	if !s.dollars {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 16)
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
