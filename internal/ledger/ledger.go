package ledger

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// ErrNoFinding is returned when an index does not name a current finding.
var ErrNoFinding = errors.New("no such finding")

// Ledger is the record of one student session: the uploaded text, the raw
// model outputs, the current finding list with per-finding revision state,
// and the append-only edit log.
//
// A Ledger is owned by a single caller and is not safe for concurrent use.
type Ledger struct {
	id        string
	student   Student
	createdAt time.Time

	originalText string
	stepOutput   string
	errorOutput  string

	findings []Finding
	states   map[int]*ItemState
	logs     []EditLogEntry
}

// New creates an empty ledger for an uploaded text.
func New(id string, student Student, originalText string, createdAt time.Time) *Ledger {
	return &Ledger{
		id:           id,
		student:      student,
		createdAt:    createdAt.UTC(),
		originalText: originalText,
		states:       make(map[int]*ItemState),
	}
}

func (l *Ledger) ID() string           { return l.id }
func (l *Ledger) Student() Student     { return l.student }
func (l *Ledger) CreatedAt() time.Time { return l.createdAt }
func (l *Ledger) OriginalText() string { return l.originalText }
func (l *Ledger) StepOutput() string   { return l.stepOutput }
func (l *Ledger) ErrorOutput() string  { return l.errorOutput }

// SetStepOutput stores the raw step-split model output.
func (l *Ledger) SetStepOutput(raw string) { l.stepOutput = raw }

// SetErrorOutput stores the raw error-scan model output.
func (l *Ledger) SetErrorOutput(raw string) { l.errorOutput = raw }

// IngestFindings replaces the finding sequence and resets every per-finding
// state to idle with the draft seeded from the excerpt. Existing log entries
// are kept; their ErrorIndex values may now refer to different findings.
func (l *Ledger) IngestFindings(findings []Finding) {
	l.findings = slices.Clone(findings)
	l.states = make(map[int]*ItemState, len(findings))
	for i, f := range l.findings {
		l.states[i] = &ItemState{Phase: PhaseIdle, Draft: f.Excerpt}
	}
}

// Len returns the number of current findings.
func (l *Ledger) Len() int { return len(l.findings) }

// Findings returns a copy of the current finding sequence.
func (l *Ledger) Findings() []Finding {
	return slices.Clone(l.findings)
}

// Finding returns the finding at index.
func (l *Ledger) Finding(index int) (Finding, error) {
	if index < 0 || index >= len(l.findings) {
		return Finding{}, fmt.Errorf("finding %d: %w", index, ErrNoFinding)
	}
	return l.findings[index], nil
}

// State returns a copy of the revision state for the finding at index.
func (l *Ledger) State(index int) (ItemState, error) {
	if _, err := l.Finding(index); err != nil {
		return ItemState{}, err
	}
	st, ok := l.states[index]
	if !ok {
		return ItemState{Phase: PhaseIdle, Draft: l.findings[index].Excerpt}, nil
	}
	return copyState(*st), nil
}

// PutState replaces the revision state for the finding at index.
func (l *Ledger) PutState(index int, st ItemState) error {
	if _, err := l.Finding(index); err != nil {
		return err
	}
	if !st.Valid() {
		return fmt.Errorf("finding %d: start time must be set exactly when editing (phase %s)", index, st.Phase)
	}
	cp := copyState(st)
	l.states[index] = &cp
	return nil
}

// AppendLog appends an entry to the edit log.
func (l *Ledger) AppendLog(e EditLogEntry) {
	l.logs = append(l.logs, cloneEntry(e))
}

// Logs returns a copy of the edit log in append order.
func (l *Ledger) Logs() []EditLogEntry {
	out := make([]EditLogEntry, len(l.logs))
	for i, e := range l.logs {
		out[i] = cloneEntry(e)
	}
	return out
}

// LogsFor returns the entries recorded against the finding at index.
func (l *Ledger) LogsFor(index int) []EditLogEntry {
	var out []EditLogEntry
	for _, e := range l.logs {
		if e.ErrorIndex == index {
			out = append(out, cloneEntry(e))
		}
	}
	return out
}

func copyState(st ItemState) ItemState {
	if st.StartTime != nil {
		t := *st.StartTime
		st.StartTime = &t
	}
	return st
}
