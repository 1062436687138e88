package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/abhisek/redpen/internal/ledger"
)

// sessionRepo implements SessionRepo. The sessions table holds listing
// metadata; session_snapshots holds the full record after every save.
type sessionRepo struct {
	drv *entsql.Driver
	seq *sequenceCounter
}

func (r *sessionRepo) Save(ctx context.Context, rec ledger.Record) error {
	if rec.ID == "" {
		return fmt.Errorf("save session: empty id")
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal session record: %w", err)
	}

	seqNum, err := r.seq.Next(ctx)
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}
	now := formatTime(time.Now())

	tx, err := r.drv.Tx(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	q, args := builder().Insert("sessions").
		Columns("id", "student_name", "student_id", "created_at", "updated_at", "finding_count").
		Values(rec.ID, rec.Student.Name, rec.Student.ID, formatTime(rec.CreatedAt), now, len(rec.Findings)).
		OnConflict(
			entsql.ConflictColumns("id"),
			entsql.ResolveWith(func(u *entsql.UpdateSet) {
				u.SetExcluded("student_name")
				u.SetExcluded("student_id")
				u.SetExcluded("updated_at")
				u.SetExcluded("finding_count")
			}),
		).
		Query()
	var res sql.Result
	if err := tx.Exec(ctx, q, args, &res); err != nil {
		tx.Rollback()
		return fmt.Errorf("upsert session: %w", err)
	}

	q, args = builder().Insert("session_snapshots").
		Columns("session_id", "sequence", "timestamp", "record").
		Values(rec.ID, seqNum, now, string(raw)).
		Query()
	if err := tx.Exec(ctx, q, args, &res); err != nil {
		tx.Rollback()
		return fmt.Errorf("save session snapshot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session: %w", err)
	}
	return nil
}

func (r *sessionRepo) Load(ctx context.Context, id string) (ledger.Record, error) {
	q, args := builder().Select("record").
		From(entsql.Table("session_snapshots")).
		Where(entsql.EQ("session_id", id)).
		OrderBy(entsql.Desc("sequence")).
		Limit(1).
		Query()

	var rows entsql.Rows
	if err := r.drv.Query(ctx, q, args, &rows); err != nil {
		return ledger.Record{}, fmt.Errorf("query session %s: %w", id, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return ledger.Record{}, err
		}
		return ledger.Record{}, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	var raw string
	if err := rows.Scan(&raw); err != nil {
		return ledger.Record{}, fmt.Errorf("scan session %s: %w", id, err)
	}

	var rec ledger.Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return ledger.Record{}, fmt.Errorf("decode session %s: %w", id, err)
	}
	return rec, nil
}

func (r *sessionRepo) List(ctx context.Context, opts QueryOpts) ([]SessionSummary, error) {
	sel := builder().Select("id", "student_name", "student_id", "created_at", "updated_at", "finding_count").
		From(entsql.Table("sessions")).
		OrderBy(entsql.Desc("created_at"))
	if !opts.From.IsZero() {
		sel.Where(entsql.GTE("created_at", formatTime(opts.From)))
	}
	if !opts.To.IsZero() {
		sel.Where(entsql.LTE("created_at", formatTime(opts.To)))
	}
	if opts.Limit > 0 {
		sel.Limit(opts.Limit)
	}

	q, args := sel.Query()
	var rows entsql.Rows
	if err := r.drv.Query(ctx, q, args, &rows); err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var (
			s                SessionSummary
			created, updated string
		)
		if err := rows.Scan(&s.ID, &s.Student.Name, &s.Student.ID, &created, &updated, &s.FindingCount); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		var err error
		if s.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		if s.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *sessionRepo) Prune(ctx context.Context, id string, keep int) error {
	// Find the sequence threshold: the keep-th most recent snapshot.
	q, args := builder().Select("sequence").
		From(entsql.Table("session_snapshots")).
		Where(entsql.EQ("session_id", id)).
		OrderBy(entsql.Desc("sequence")).
		Offset(keep).
		Limit(1).
		Query()

	var rows entsql.Rows
	if err := r.drv.Query(ctx, q, args, &rows); err != nil {
		return fmt.Errorf("query snapshots for prune: %w", err)
	}
	var threshold int64
	found := rows.Next()
	if found {
		if err := rows.Scan(&threshold); err != nil {
			rows.Close()
			return fmt.Errorf("scan prune threshold: %w", err)
		}
	}
	rows.Close()
	if !found {
		return nil // fewer than keep snapshots exist
	}

	q, args = builder().Delete("session_snapshots").
		Where(entsql.And(
			entsql.EQ("session_id", id),
			entsql.LTE("sequence", threshold),
		)).
		Query()
	if err := execBuilt(ctx, r.drv, q, args); err != nil {
		return fmt.Errorf("prune snapshots: %w", err)
	}
	return nil
}
