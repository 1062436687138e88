package ledger

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/abhisek/redpen/internal/diff"
)

func sampleFindings() []Finding {
	return []Finding{
		{Name: "run-on sentence", Status: StatusYes, Excerpt: "This is a test this is bad."},
		{Name: "vague claim", Status: StatusNo, Excerpt: "Many people think so."},
	}
}

func newTestLedger() *Ledger {
	return New("sess-1", Student{Name: "Ana", ID: "42"}, "essay text", time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
}

func TestIngestFindings_ResetsState(t *testing.T) {
	l := newTestLedger()
	l.IngestFindings(sampleFindings())

	now := time.Now()
	if err := l.PutState(0, ItemState{Phase: PhaseEditing, StartTime: &now, Draft: "edited"}); err != nil {
		t.Fatalf("PutState: %v", err)
	}

	l.IngestFindings(sampleFindings()[:1])
	if l.Len() != 1 {
		t.Fatalf("Len = %d, want 1", l.Len())
	}
	st, err := l.State(0)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if st.Phase != PhaseIdle || st.StartTime != nil {
		t.Fatalf("state not reset: %+v", st)
	}
	if st.Draft != "This is a test this is bad." {
		t.Fatalf("draft = %q, want excerpt", st.Draft)
	}
}

func TestIngestFindings_KeepsLogs(t *testing.T) {
	l := newTestLedger()
	l.IngestFindings(sampleFindings())
	l.AppendLog(EditLogEntry{ErrorIndex: 1, Action: ActionAbandon})

	l.IngestFindings(nil)
	if got := len(l.Logs()); got != 1 {
		t.Fatalf("logs after rescan = %d, want 1", got)
	}
	if l.Len() != 0 {
		t.Fatalf("Len = %d, want 0", l.Len())
	}
}

func TestFindingOutOfRange(t *testing.T) {
	l := newTestLedger()
	l.IngestFindings(sampleFindings())

	for _, idx := range []int{-1, 2, 100} {
		if _, err := l.Finding(idx); !errors.Is(err, ErrNoFinding) {
			t.Errorf("Finding(%d) err = %v, want ErrNoFinding", idx, err)
		}
		if _, err := l.State(idx); !errors.Is(err, ErrNoFinding) {
			t.Errorf("State(%d) err = %v, want ErrNoFinding", idx, err)
		}
	}
}

func TestPutState_RejectsBrokenInvariant(t *testing.T) {
	l := newTestLedger()
	l.IngestFindings(sampleFindings())

	if err := l.PutState(0, ItemState{Phase: PhaseEditing}); err == nil {
		t.Fatal("expected error for editing without start time")
	}
	now := time.Now()
	if err := l.PutState(0, ItemState{Phase: PhaseIdle, StartTime: &now}); err == nil {
		t.Fatal("expected error for idle with start time")
	}
}

func TestStateIsCopied(t *testing.T) {
	l := newTestLedger()
	l.IngestFindings(sampleFindings())

	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	if err := l.PutState(0, ItemState{Phase: PhaseEditing, StartTime: &start}); err != nil {
		t.Fatalf("PutState: %v", err)
	}
	start = start.Add(time.Hour)

	st, _ := l.State(0)
	if !st.StartTime.Equal(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("stored start time aliased caller memory: %v", st.StartTime)
	}
}

func TestAppendLog_EntriesAreImmutable(t *testing.T) {
	l := newTestLedger()
	l.IngestFindings(sampleFindings())

	elapsed := 5.0
	check := &VerifyResult{Fixed: FixedYes, Comment: "ok"}
	l.AppendLog(EditLogEntry{ErrorIndex: 0, Action: ActionSubmit, TimeUsedS: &elapsed, AICheck: check})

	elapsed = 99
	check.Fixed = FixedNo

	logs := l.Logs()
	if *logs[0].TimeUsedS != 5.0 {
		t.Fatalf("time_used_s = %v, want 5.0", *logs[0].TimeUsedS)
	}
	if logs[0].AICheck.Fixed != FixedYes {
		t.Fatalf("ai_check = %v, want yes", logs[0].AICheck.Fixed)
	}

	logs[0].AICheck.Fixed = FixedError
	if l.Logs()[0].AICheck.Fixed != FixedYes {
		t.Fatal("Logs() leaked internal pointer")
	}
}

func TestLogsFor(t *testing.T) {
	l := newTestLedger()
	l.IngestFindings(sampleFindings())
	l.AppendLog(EditLogEntry{ErrorIndex: 0, Action: ActionAbandon})
	l.AppendLog(EditLogEntry{ErrorIndex: 1, Action: ActionSubmit})
	l.AppendLog(EditLogEntry{ErrorIndex: 0, Action: ActionSubmit})

	got := l.LogsFor(0)
	if len(got) != 2 || got[0].Action != ActionAbandon || got[1].Action != ActionSubmit {
		t.Fatalf("LogsFor(0) = %+v", got)
	}
}

func TestExport_DoesNotMutateAndIsStable(t *testing.T) {
	l := newTestLedger()
	l.SetStepOutput("steps")
	l.SetErrorOutput("errors")
	l.IngestFindings(sampleFindings())
	l.AppendLog(EditLogEntry{
		ErrorIndex: 0,
		Action:     ActionAbandon,
		Diff:       diff.Stats{Insert: 1},
		Timestamp:  time.Date(2026, 3, 1, 9, 5, 0, 0, time.UTC),
	})

	b1 := l.Export()
	b1.Findings[0].Name = "mutated"
	b1.Logs[0].Action = ActionSubmit

	b2 := l.Export()
	if b2.Findings[0].Name != "run-on sentence" || b2.Logs[0].Action != ActionAbandon {
		t.Fatal("mutating an export changed the ledger")
	}

	j1, _ := json.Marshal(l.Export())
	j2, _ := json.Marshal(l.Export())
	if string(j1) != string(j2) {
		t.Fatal("exports differ without mutation")
	}
}

func TestExport_EmptySlicesNotNil(t *testing.T) {
	b := newTestLedger().Export()
	if b.Findings == nil || b.Logs == nil {
		t.Fatalf("expected non-nil slices, got findings=%v logs=%v", b.Findings, b.Logs)
	}
}

func TestRecordRoundTrip(t *testing.T) {
	l := newTestLedger()
	l.SetStepOutput("steps")
	l.IngestFindings(sampleFindings())
	start := time.Date(2026, 3, 1, 9, 1, 0, 0, time.UTC)
	_ = l.PutState(1, ItemState{Phase: PhaseEditing, StartTime: &start, Draft: "draft"})
	l.AppendLog(EditLogEntry{ErrorIndex: 0, Action: ActionAbandon})

	raw, err := json.Marshal(l.Record())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	got := FromRecord(rec)
	if got.ID() != "sess-1" || got.Student().Name != "Ana" || got.StepOutput() != "steps" {
		t.Fatalf("metadata lost: %+v", got.Record())
	}
	st, _ := got.State(1)
	if st.Phase != PhaseEditing || !st.StartTime.Equal(start) || st.Draft != "draft" {
		t.Fatalf("state lost: %+v", st)
	}
	if len(got.Logs()) != 1 {
		t.Fatalf("logs = %d, want 1", len(got.Logs()))
	}
}

func TestFromRecord_DropsInvalidStates(t *testing.T) {
	rec := newTestLedger().Record()
	rec.Findings = sampleFindings()
	rec.States = map[int]ItemState{
		0: {Phase: PhaseEditing},
		7: {Phase: PhaseIdle},
	}

	l := FromRecord(rec)
	st, _ := l.State(0)
	if st.Phase != PhaseIdle {
		t.Fatalf("invalid state kept: %+v", st)
	}
}

func TestStudentDefaults(t *testing.T) {
	var s Student
	if s.DisplayName() != NoName || s.DisplayID() != NoID {
		t.Fatalf("defaults = %q/%q", s.DisplayName(), s.DisplayID())
	}
}
