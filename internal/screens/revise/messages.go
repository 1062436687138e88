package revise

import (
	"time"

	"github.com/abhisek/redpen/internal/analysis"
	"github.com/abhisek/redpen/internal/ledger"
)

// recordLoadedMsg carries a fresh copy of the session.
type recordLoadedMsg struct {
	Record ledger.Record
	Err    error
}

// analyzedMsg is sent when an analysis run finishes.
type analyzedMsg struct {
	Record ledger.Record
	Result *analysis.Result
	Err    error
}

// exportedMsg reports where an export was written.
type exportedMsg struct {
	Path string
	Err  error
}

// startedMsg is sent when a finding enters editing.
type startedMsg struct {
	State ledger.ItemState
	Err   error
}

// loggedMsg is sent when an abandon or submit has been recorded.
type loggedMsg struct {
	Entry ledger.EditLogEntry
	Err   error
}

// draftSavedMsg confirms a draft write.
type draftSavedMsg struct {
	Text string
	Err  error
}

// timerTickMsg drives the editing timer.
type timerTickMsg time.Time
