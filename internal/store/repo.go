package store

import (
	"context"
	"errors"
	"time"

	"github.com/abhisek/redpen/internal/ledger"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// QueryOpts configures event queries with filtering and pagination.
type QueryOpts struct {
	Limit  int       // max results (0 = unlimited)
	After  int64     // sequence > After
	Before int64     // sequence < Before
	From   time.Time // timestamp >= From
	To     time.Time // timestamp <= To

	// Purpose restricts LLM events to one call purpose.
	Purpose string
}

// SessionSummary is the listing view of a stored session.
type SessionSummary struct {
	ID           string
	Student      ledger.Student
	CreatedAt    time.Time
	UpdatedAt    time.Time
	FindingCount int
}

// SessionRepo persists session records. Every Save appends a snapshot;
// Load returns the newest.
type SessionRepo interface {
	// Save stores the record as the session's latest snapshot.
	Save(ctx context.Context, rec ledger.Record) error

	// Load returns the latest snapshot, or ErrNotFound.
	Load(ctx context.Context, id string) (ledger.Record, error)

	// List returns sessions, newest first.
	List(ctx context.Context, opts QueryOpts) ([]SessionSummary, error)

	// Prune deletes all but the keep most recent snapshots of a session.
	Prune(ctx context.Context, id string, keep int) error
}

// LLMRequestEventData captures the data for a single LLM request event.
type LLMRequestEventData struct {
	Provider     string
	Model        string
	Purpose      string
	InputTokens  int
	OutputTokens int
	LatencyMs    int64
	Success      bool
	ErrorMessage string
	RequestBody  string
	ResponseBody string
}

// LLMRequestEvent is a stored LLM request event.
type LLMRequestEvent struct {
	ID        int
	Sequence  int64
	Timestamp time.Time
	LLMRequestEventData
}

// PurposeUsage aggregates model usage per purpose label.
type PurposeUsage struct {
	Purpose      string
	Calls        int
	InputTokens  int
	OutputTokens int
	AvgLatencyMs int64
}

// ModelUsage aggregates model usage per model ID.
type ModelUsage struct {
	Model        string
	Calls        int
	InputTokens  int
	OutputTokens int
}

// EditLogRecord is a stored edit log entry.
type EditLogRecord struct {
	ID        int
	Sequence  int64
	SessionID string
	Entry     ledger.EditLogEntry
}

// EventRepo provides append and query access to domain events.
type EventRepo interface {
	// AppendLLMRequest records an LLM API call event.
	AppendLLMRequest(ctx context.Context, data LLMRequestEventData) error

	// QueryLLMEvents returns events newest first.
	QueryLLMEvents(ctx context.Context, opts QueryOpts) ([]LLMRequestEvent, error)

	// GetLLMEvent returns one event, or nil if it does not exist.
	GetLLMEvent(ctx context.Context, id int) (*LLMRequestEvent, error)

	LLMUsageByPurpose(ctx context.Context) ([]PurposeUsage, error)
	LLMUsageByModel(ctx context.Context) ([]ModelUsage, error)

	// AppendEditLog journals a terminal revision transition.
	AppendEditLog(ctx context.Context, sessionID string, entry ledger.EditLogEntry) error

	// QueryEditLogs returns a session's entries in the order they happened.
	QueryEditLogs(ctx context.Context, sessionID string, opts QueryOpts) ([]EditLogRecord, error)
}
