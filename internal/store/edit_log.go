package store

import (
	"context"
	"encoding/json"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/abhisek/redpen/internal/ledger"
)

// AppendEditLog stores one terminal transition. The whole entry is kept as
// JSON; the scalar columns exist for ad-hoc SQL over the journal.
func (r *eventRepo) AppendEditLog(ctx context.Context, sessionID string, entry ledger.EditLogEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal edit log: %w", err)
	}

	seqNum, err := r.seq.Next(ctx)
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}

	var fixed string
	if entry.AICheck != nil {
		fixed = string(entry.AICheck.Fixed)
	}

	q, args := builder().Insert("edit_logs").
		Columns(
			"sequence", "session_id", "error_index", "error_name", "action",
			"time_used_s", "diff_insert", "diff_delete", "diff_replace",
			"fixed", "entry", "timestamp",
		).
		Values(
			seqNum, sessionID, entry.ErrorIndex, entry.ErrorName, string(entry.Action),
			entry.TimeUsedS, entry.Diff.Insert, entry.Diff.Delete, entry.Diff.Replace,
			fixed, string(raw), formatTime(entry.Timestamp),
		).
		Query()
	if err := execBuilt(ctx, r.drv, q, args); err != nil {
		return fmt.Errorf("save edit log: %w", err)
	}
	return nil
}

func (r *eventRepo) QueryEditLogs(ctx context.Context, sessionID string, opts QueryOpts) ([]EditLogRecord, error) {
	sel := builder().Select("id", "sequence", "session_id", "entry").
		From(entsql.Table("edit_logs")).
		Where(entsql.EQ("session_id", sessionID)).
		OrderBy(entsql.Asc("sequence"))
	applyQueryOpts(sel, opts)

	q, args := sel.Query()
	var rows entsql.Rows
	if err := r.drv.Query(ctx, q, args, &rows); err != nil {
		return nil, fmt.Errorf("query edit logs: %w", err)
	}
	defer rows.Close()

	var out []EditLogRecord
	for rows.Next() {
		var (
			rec EditLogRecord
			raw string
		)
		if err := rows.Scan(&rec.ID, &rec.Sequence, &rec.SessionID, &raw); err != nil {
			return nil, fmt.Errorf("scan edit log: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &rec.Entry); err != nil {
			return nil, fmt.Errorf("decode edit log %d: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
