// Package session owns the lifecycle of stored revision sessions: upload,
// analysis, per-finding revision and export. Every mutation is saved as a
// new snapshot before the call returns.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/abhisek/redpen/internal/analysis"
	"github.com/abhisek/redpen/internal/extract"
	"github.com/abhisek/redpen/internal/ledger"
	"github.com/abhisek/redpen/internal/revision"
	"github.com/abhisek/redpen/internal/store"
)

// DefaultSnapshotKeep is how many snapshots per session survive pruning.
const DefaultSnapshotKeep = 20

// ErrEmptyText is returned when an upload yields no text.
var ErrEmptyText = errors.New("uploaded file contains no text")

// Analyzer runs analysis and verifies revisions. *analysis.Analyzer
// implements it.
type Analyzer interface {
	Run(ctx context.Context, l *ledger.Ledger) (*analysis.Result, error)
	revision.Verifier
}

// Deps are the collaborators of a Service. Journal and Extractor are
// optional.
type Deps struct {
	Sessions  store.SessionRepo
	Journal   revision.Journal
	Analyzer  Analyzer
	Extractor *extract.Registry
	Now       func() time.Time
	NewID     func() string

	// SnapshotKeep overrides DefaultSnapshotKeep. Negative disables pruning.
	SnapshotKeep int
}

// Upload is an essay file submitted for a new session.
type Upload struct {
	Filename string
	Content  []byte
	Student  ledger.Student
}

// Service is safe for concurrent use. Sessions never share state; each is
// guarded by its own lock.
type Service struct {
	deps Deps

	mu   sync.Mutex
	live map[string]*entry
}

type entry struct {
	mu      sync.Mutex
	machine *revision.Machine
}

// NewService creates a Service.
func NewService(deps Deps) *Service {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = func() string { return uuid.New().String() }
	}
	if deps.Extractor == nil {
		deps.Extractor = extract.NewRegistry()
	}
	if deps.SnapshotKeep == 0 {
		deps.SnapshotKeep = DefaultSnapshotKeep
	}
	return &Service{deps: deps, live: make(map[string]*entry)}
}

// Create extracts the upload's text and stores a new session. Nothing is
// stored when extraction fails.
func (s *Service) Create(ctx context.Context, up Upload) (ledger.Record, error) {
	text, err := s.deps.Extractor.Extract(up.Filename, up.Content)
	if err != nil {
		return ledger.Record{}, err
	}
	if text == "" {
		return ledger.Record{}, &extract.Error{Filename: up.Filename, Err: ErrEmptyText}
	}

	l := ledger.New(s.deps.NewID(), up.Student, text, s.deps.Now().UTC())
	e := s.register(l)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := s.save(ctx, l); err != nil {
		s.forget(l.ID())
		return ledger.Record{}, err
	}
	slog.Info("session created", "session", l.ID(), "student", up.Student.DisplayName(), "chars", len(text))
	return l.Record(), nil
}

// Analyze runs the analysis pipeline on a session. Outputs gathered before
// a failure are kept and saved; the failure is returned. Re-analysing a
// session replaces its findings while keeping its edit log.
func (s *Service) Analyze(ctx context.Context, id string) (ledger.Record, *analysis.Result, error) {
	e, err := s.acquire(ctx, id)
	if err != nil {
		return ledger.Record{}, nil, err
	}
	defer e.mu.Unlock()

	if s.deps.Analyzer == nil {
		return ledger.Record{}, nil, errors.New("analysis is not configured")
	}
	l := e.machine.Ledger()
	res, runErr := s.deps.Analyzer.Run(ctx, l)
	if err := s.save(ctx, l); err != nil {
		return ledger.Record{}, nil, err
	}
	return l.Record(), res, runErr
}

// Get returns a session's current record.
func (s *Service) Get(ctx context.Context, id string) (ledger.Record, error) {
	e, err := s.acquire(ctx, id)
	if err != nil {
		return ledger.Record{}, err
	}
	defer e.mu.Unlock()
	return e.machine.Ledger().Record(), nil
}

// List returns stored sessions, newest first.
func (s *Service) List(ctx context.Context, opts store.QueryOpts) ([]store.SessionSummary, error) {
	return s.deps.Sessions.List(ctx, opts)
}

// Export returns the export bundle for a session.
func (s *Service) Export(ctx context.Context, id string) (ledger.Bundle, error) {
	e, err := s.acquire(ctx, id)
	if err != nil {
		return ledger.Bundle{}, err
	}
	defer e.mu.Unlock()
	return e.machine.Ledger().Export(), nil
}

// Start opens a finding for editing.
func (s *Service) Start(ctx context.Context, id string, index int) (ledger.ItemState, error) {
	return s.mutateState(ctx, id, index, func(m *revision.Machine) error {
		return m.Start(index)
	})
}

// SetDraft records in-progress text for a finding being edited.
func (s *Service) SetDraft(ctx context.Context, id string, index int, text string) (ledger.ItemState, error) {
	return s.mutateState(ctx, id, index, func(m *revision.Machine) error {
		return m.SetDraft(index, text)
	})
}

// Abandon ends an edit without verification.
func (s *Service) Abandon(ctx context.Context, id string, index int, text string) (ledger.EditLogEntry, error) {
	e, err := s.acquire(ctx, id)
	if err != nil {
		return ledger.EditLogEntry{}, err
	}
	defer e.mu.Unlock()

	entry, err := e.machine.Abandon(ctx, index, text)
	if err != nil {
		return ledger.EditLogEntry{}, err
	}
	return entry, s.save(ctx, e.machine.Ledger())
}

// Submit ends an edit and verifies it. The finding returns to Idle and the
// elapsed time and diff are measured before the lock is released for the
// model call, so other findings stay usable while it runs.
func (s *Service) Submit(ctx context.Context, id string, index int, text string) (ledger.EditLogEntry, error) {
	e, err := s.acquire(ctx, id)
	if err != nil {
		return ledger.EditLogEntry{}, err
	}
	sub, err := e.machine.PrepareSubmit(index, text)
	if err == nil {
		err = s.save(ctx, e.machine.Ledger())
	}
	e.mu.Unlock()
	if err != nil {
		return ledger.EditLogEntry{}, err
	}

	res := sub.Verify(ctx, s.deps.Analyzer)

	e.mu.Lock()
	defer e.mu.Unlock()
	entry, err := e.machine.CompleteSubmit(ctx, sub, res)
	if err != nil {
		return ledger.EditLogEntry{}, err
	}
	return entry, s.save(ctx, e.machine.Ledger())
}

func (s *Service) mutateState(ctx context.Context, id string, index int, fn func(*revision.Machine) error) (ledger.ItemState, error) {
	e, err := s.acquire(ctx, id)
	if err != nil {
		return ledger.ItemState{}, err
	}
	defer e.mu.Unlock()

	if err := fn(e.machine); err != nil {
		return ledger.ItemState{}, err
	}
	l := e.machine.Ledger()
	if err := s.save(ctx, l); err != nil {
		return ledger.ItemState{}, err
	}
	return l.State(index)
}

// acquire returns the session's entry with its lock held, loading it from
// the store on first use.
func (s *Service) acquire(ctx context.Context, id string) (*entry, error) {
	s.mu.Lock()
	e, ok := s.live[id]
	s.mu.Unlock()
	if ok {
		e.mu.Lock()
		return e, nil
	}

	rec, err := s.deps.Sessions.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}

	s.mu.Lock()
	if existing, ok := s.live[id]; ok {
		e = existing
	} else {
		e = &entry{machine: s.newMachine(ledger.FromRecord(rec))}
		s.live[id] = e
	}
	s.mu.Unlock()

	e.mu.Lock()
	return e, nil
}

func (s *Service) register(l *ledger.Ledger) *entry {
	e := &entry{machine: s.newMachine(l)}
	s.mu.Lock()
	s.live[l.ID()] = e
	s.mu.Unlock()
	return e
}

func (s *Service) forget(id string) {
	s.mu.Lock()
	delete(s.live, id)
	s.mu.Unlock()
}

func (s *Service) newMachine(l *ledger.Ledger) *revision.Machine {
	opts := []revision.Option{revision.WithClock(s.deps.Now)}
	if s.deps.Journal != nil {
		opts = append(opts, revision.WithJournal(s.deps.Journal))
	}
	return revision.New(l, s.deps.Analyzer, opts...)
}

// save stores a snapshot. Model calls can outlive a cancelled request, so
// the write ignores cancellation.
func (s *Service) save(ctx context.Context, l *ledger.Ledger) error {
	ctx = context.WithoutCancel(ctx)
	if err := s.deps.Sessions.Save(ctx, l.Record()); err != nil {
		return fmt.Errorf("save session %s: %w", l.ID(), err)
	}
	if s.deps.SnapshotKeep > 0 {
		if err := s.deps.Sessions.Prune(ctx, l.ID(), s.deps.SnapshotKeep); err != nil {
			slog.Warn("failed to prune session snapshots", "session", l.ID(), "error", err)
		}
	}
	return nil
}
