// Package revision drives the per-finding remediation cycle: a student
// starts editing a finding's excerpt, then either abandons or submits the
// revision. Every abandon and submit appends exactly one log entry to the
// session ledger.
package revision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/abhisek/redpen/internal/diff"
	"github.com/abhisek/redpen/internal/ledger"
)

// ErrNotEditing is returned by abandon, submit and draft updates when the
// finding has not been started.
var ErrNotEditing = errors.New("finding is not being edited")

// Verifier asks the error model whether a revision fixes a finding.
// Implementations never fail: transport problems come back as a result
// with Fixed set to ledger.FixedError.
type Verifier interface {
	Verify(ctx context.Context, f ledger.Finding, revised string) ledger.VerifyResult
}

// Journal durably records log entries as they are appended.
type Journal interface {
	AppendEditLog(ctx context.Context, sessionID string, entry ledger.EditLogEntry) error
}

// Machine applies start/abandon/submit transitions to the findings of one
// ledger. It is not safe for concurrent use; a session performs one
// transition at a time.
type Machine struct {
	ledger   *ledger.Ledger
	verifier Verifier
	journal  Journal
	now      func() time.Time
}

// Option configures a Machine.
type Option func(*Machine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// WithJournal mirrors every appended entry to j. Journal failures are
// logged and do not fail the transition.
func WithJournal(j Journal) Option {
	return func(m *Machine) { m.journal = j }
}

// New returns a Machine over l. A nil verifier makes every submit record
// a verification error.
func New(l *ledger.Ledger, v Verifier, opts ...Option) *Machine {
	m := &Machine{ledger: l, verifier: v, now: time.Now}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Ledger returns the ledger the machine operates on.
func (m *Machine) Ledger() *ledger.Ledger { return m.ledger }

// Start moves a finding into Editing, restarting the timer and resetting
// the draft to the original excerpt. Calling it while already Editing
// discards the current draft.
func (m *Machine) Start(index int) error {
	f, err := m.ledger.Finding(index)
	if err != nil {
		return err
	}
	now := m.now()
	return m.ledger.PutState(index, ledger.ItemState{
		Phase:     ledger.PhaseEditing,
		StartTime: &now,
		Draft:     f.Excerpt,
	})
}

// SetDraft records in-progress text for a finding being edited.
func (m *Machine) SetDraft(index int, text string) error {
	st, err := m.editing(index)
	if err != nil {
		return err
	}
	st.Draft = text
	return m.ledger.PutState(index, st)
}

// Abandon ends an edit without verification and logs it.
func (m *Machine) Abandon(ctx context.Context, index int, text string) (ledger.EditLogEntry, error) {
	f, err := m.ledger.Finding(index)
	if err != nil {
		return ledger.EditLogEntry{}, err
	}
	st, err := m.editing(index)
	if err != nil {
		return ledger.EditLogEntry{}, err
	}

	entry := ledger.EditLogEntry{
		ErrorIndex: index,
		ErrorName:  f.Name,
		Action:     ledger.ActionAbandon,
		ExcerptOld: f.Excerpt,
		ExcerptNew: text,
		TimeUsedS:  elapsedSeconds(st.StartTime, m.now()),
		Diff:       diff.Compute(f.Excerpt, text),
	}
	if err := m.finish(index, text); err != nil {
		return ledger.EditLogEntry{}, err
	}
	return m.appendLog(ctx, entry), nil
}

// Submit ends an edit, asks the verifier whether the revision fixes the
// finding and logs the outcome. Verification failures are recorded in the
// entry, never returned.
func (m *Machine) Submit(ctx context.Context, index int, text string) (ledger.EditLogEntry, error) {
	s, err := m.PrepareSubmit(index, text)
	if err != nil {
		return ledger.EditLogEntry{}, err
	}
	return m.CompleteSubmit(ctx, s, m.verify(ctx, s))
}

// Submission is a submit whose verification has not run yet. It lets a
// caller run the slow model call off its own event loop.
type Submission struct {
	index   int
	finding ledger.Finding
	text    string
	elapsed *float64
	stats   diff.Stats
}

// Index returns the finding index.
func (s *Submission) Index() int { return s.index }

// Finding returns the finding being revised.
func (s *Submission) Finding() ledger.Finding { return s.finding }

// Text returns the submitted revision.
func (s *Submission) Text() string { return s.text }

// Verify runs v for this submission. It touches no ledger state.
func (s *Submission) Verify(ctx context.Context, v Verifier) ledger.VerifyResult {
	if v == nil {
		return ledger.VerifyResult{Fixed: ledger.FixedError, Comment: "verification is not configured"}
	}
	return v.Verify(ctx, s.finding, s.text)
}

// PrepareSubmit checks the precondition, measures elapsed time and diff
// at the moment of submission and returns the finding to Idle. A second
// abandon or submit of the same edit fails with ErrNotEditing while the
// verification is pending.
func (m *Machine) PrepareSubmit(index int, text string) (*Submission, error) {
	f, err := m.ledger.Finding(index)
	if err != nil {
		return nil, err
	}
	st, err := m.editing(index)
	if err != nil {
		return nil, err
	}
	sub := &Submission{
		index:   index,
		finding: f,
		text:    text,
		elapsed: elapsedSeconds(st.StartTime, m.now()),
		stats:   diff.Compute(f.Excerpt, text),
	}
	if err := m.finish(index, text); err != nil {
		return nil, err
	}
	return sub, nil
}

// CompleteSubmit logs a prepared submission with its verification result.
// The entry is built from the submission alone, so it is logged even if
// the findings were replaced while verification ran.
func (m *Machine) CompleteSubmit(ctx context.Context, s *Submission, res ledger.VerifyResult) (ledger.EditLogEntry, error) {
	if s == nil {
		return ledger.EditLogEntry{}, fmt.Errorf("complete submit: nil submission")
	}
	check := res
	entry := ledger.EditLogEntry{
		ErrorIndex: s.index,
		ErrorName:  s.finding.Name,
		Action:     ledger.ActionSubmit,
		ExcerptOld: s.finding.Excerpt,
		ExcerptNew: s.text,
		TimeUsedS:  s.elapsed,
		Diff:       s.stats,
		AICheck:    &check,
	}
	return m.appendLog(ctx, entry), nil
}

func (m *Machine) verify(ctx context.Context, s *Submission) ledger.VerifyResult {
	return s.Verify(ctx, m.verifier)
}

// editing returns the finding's state if it is being edited.
func (m *Machine) editing(index int) (ledger.ItemState, error) {
	st, err := m.ledger.State(index)
	if err != nil {
		return ledger.ItemState{}, err
	}
	if st.Phase != ledger.PhaseEditing {
		return ledger.ItemState{}, fmt.Errorf("finding %d: %w", index, ErrNotEditing)
	}
	return st, nil
}

// finish returns a finding to Idle, keeping the final text as its draft.
func (m *Machine) finish(index int, draft string) error {
	return m.ledger.PutState(index, ledger.ItemState{Phase: ledger.PhaseIdle, Draft: draft})
}

func (m *Machine) appendLog(ctx context.Context, entry ledger.EditLogEntry) ledger.EditLogEntry {
	entry.Timestamp = m.now().UTC().Truncate(time.Second)
	m.ledger.AppendLog(entry)

	if m.journal != nil {
		if err := m.journal.AppendEditLog(context.WithoutCancel(ctx), m.ledger.ID(), entry); err != nil {
			slog.Warn("failed to journal edit log",
				"session", m.ledger.ID(), "index", entry.ErrorIndex, "action", entry.Action, "error", err)
		}
	}
	return entry
}

// elapsedSeconds is now - start in seconds, rounded to two decimals, or
// nil without a start time. Clock skew never yields a negative value.
func elapsedSeconds(start *time.Time, now time.Time) *float64 {
	if start == nil {
		return nil
	}
	s := now.Sub(*start).Seconds()
	if s < 0 {
		s = 0
	}
	s = math.Round(s*100) / 100
	return &s
}
