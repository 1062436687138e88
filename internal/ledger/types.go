package ledger

import (
	"fmt"
	"time"

	"github.com/abhisek/redpen/internal/diff"
)

// Finding is one candidate writing error reported by the error scan.
// Findings are identified by their position in the scan result; a new scan
// replaces the whole sequence and invalidates earlier indices.
type Finding struct {
	Name        string `json:"name"`
	Status      Status `json:"status"`
	Location    string `json:"location"`
	Excerpt     string `json:"excerpt"`
	Explanation string `json:"explanation"`
	Suggestion  string `json:"suggestion"`
}

// Status reports whether the scan judged the error present.
type Status string

const (
	StatusYes Status = "yes"
	StatusNo  Status = "no"
)

// DefaultName is the display name for a finding the model left unnamed.
func DefaultName(index int) string {
	return fmt.Sprintf("Error %d", index+1)
}

// Phase is the revision phase of a single finding.
type Phase int

const (
	PhaseIdle    Phase = iota // Not being edited
	PhaseEditing              // Timer running, draft open
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseEditing:
		return "editing"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// ItemState is the mutable per-finding revision state.
// StartTime is set if and only if Phase is PhaseEditing.
type ItemState struct {
	Phase     Phase      `json:"phase"`
	StartTime *time.Time `json:"start_time,omitempty"`
	Draft     string     `json:"draft"`
}

// Valid reports whether the StartTime/Phase invariant holds.
func (s ItemState) Valid() bool {
	return (s.Phase == PhaseEditing) == (s.StartTime != nil)
}

// Action is the terminal transition recorded by a log entry.
type Action string

const (
	ActionAbandon Action = "abandon"
	ActionSubmit  Action = "submit"
)

// Fixed is the verification verdict for a submitted revision.
type Fixed string

const (
	FixedYes     Fixed = "yes"
	FixedNo      Fixed = "no"
	FixedUnknown Fixed = "unknown" // model output could not be parsed
	FixedError   Fixed = "error"   // the model call itself failed
)

// VerifyResult is the outcome of asking the error model whether a revision
// resolves its finding.
type VerifyResult struct {
	Fixed   Fixed  `json:"fixed"`
	Comment string `json:"comment"`
}

// EditLogEntry records one abandon or submit. Entries are immutable once
// appended to a Ledger.
type EditLogEntry struct {
	ErrorIndex int           `json:"error_index"`
	ErrorName  string        `json:"error_name"`
	Action     Action        `json:"action"`
	ExcerptOld string        `json:"excerpt_old"`
	ExcerptNew string        `json:"excerpt_new"`
	TimeUsedS  *float64      `json:"time_used_s"`
	Diff       diff.Stats    `json:"diff"`
	AICheck    *VerifyResult `json:"ai_check,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}

// Student identifies who a session belongs to.
type Student struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// Fallbacks used when the student left the fields blank.
const (
	NoName = "noname"
	NoID   = "noid"
)

// DisplayName returns the name, or NoName when empty.
func (s Student) DisplayName() string {
	if s.Name == "" {
		return NoName
	}
	return s.Name
}

// DisplayID returns the ID, or NoID when empty.
func (s Student) DisplayID() string {
	if s.ID == "" {
		return NoID
	}
	return s.ID
}
