package ledger

import (
	"slices"
	"time"
)

// Bundle is a read-only snapshot of everything an exporter writes.
type Bundle struct {
	SessionID    string
	Student      Student
	CreatedAt    time.Time
	OriginalText string
	StepOutput   string
	ErrorOutput  string
	Findings     []Finding
	Logs         []EditLogEntry
}

// Export snapshots the ledger. The bundle shares no memory with the ledger
// and Findings and Logs are never nil.
func (l *Ledger) Export() Bundle {
	findings := slices.Clone(l.findings)
	if findings == nil {
		findings = []Finding{}
	}
	logs := make([]EditLogEntry, len(l.logs))
	for i, e := range l.logs {
		logs[i] = cloneEntry(e)
	}
	return Bundle{
		SessionID:    l.id,
		Student:      l.student,
		CreatedAt:    l.createdAt,
		OriginalText: l.originalText,
		StepOutput:   l.stepOutput,
		ErrorOutput:  l.errorOutput,
		Findings:     findings,
		Logs:         logs,
	}
}

// Record is the persisted form of a ledger, including in-flight revision state.
type Record struct {
	ID           string            `json:"id"`
	Student      Student           `json:"student"`
	CreatedAt    time.Time         `json:"created_at"`
	OriginalText string            `json:"original_text"`
	StepOutput   string            `json:"step_output"`
	ErrorOutput  string            `json:"error_output"`
	Findings     []Finding         `json:"findings"`
	States       map[int]ItemState `json:"states"`
	Logs         []EditLogEntry    `json:"logs"`
}

// Record returns the persisted form of the ledger.
func (l *Ledger) Record() Record {
	b := l.Export()
	states := make(map[int]ItemState, len(l.states))
	for i, st := range l.states {
		states[i] = copyState(*st)
	}
	return Record{
		ID:           b.SessionID,
		Student:      b.Student,
		CreatedAt:    b.CreatedAt,
		OriginalText: b.OriginalText,
		StepOutput:   b.StepOutput,
		ErrorOutput:  b.ErrorOutput,
		Findings:     b.Findings,
		States:       states,
		Logs:         b.Logs,
	}
}

// FromRecord rebuilds a ledger from its persisted form. States that violate
// the editing invariant, or that name no finding, are reset to idle.
func FromRecord(r Record) *Ledger {
	l := New(r.ID, r.Student, r.OriginalText, r.CreatedAt)
	l.stepOutput = r.StepOutput
	l.errorOutput = r.ErrorOutput
	l.IngestFindings(r.Findings)
	for i, st := range r.States {
		if i < 0 || i >= len(l.findings) || !st.Valid() {
			continue
		}
		cp := copyState(st)
		l.states[i] = &cp
	}
	for _, e := range r.Logs {
		l.AppendLog(e)
	}
	return l
}

func cloneEntry(e EditLogEntry) EditLogEntry {
	if e.AICheck != nil {
		v := *e.AICheck
		e.AICheck = &v
	}
	if e.TimeUsedS != nil {
		v := *e.TimeUsedS
		e.TimeUsedS = &v
	}
	return e
}
