// Package revise implements the findings list and revision editor screens.
package revise

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/abhisek/redpen/internal/analysis"
	"github.com/abhisek/redpen/internal/export"
	"github.com/abhisek/redpen/internal/ledger"
	"github.com/abhisek/redpen/internal/router"
	"github.com/abhisek/redpen/internal/screen"
	"github.com/abhisek/redpen/internal/ui/components"
	"github.com/abhisek/redpen/internal/ui/layout"
	"github.com/abhisek/redpen/internal/ui/theme"
)

// Service is the session workflow the screens drive. *session.Service
// implements it.
type Service interface {
	Get(ctx context.Context, id string) (ledger.Record, error)
	Analyze(ctx context.Context, id string) (ledger.Record, *analysis.Result, error)
	Start(ctx context.Context, id string, index int) (ledger.ItemState, error)
	SetDraft(ctx context.Context, id string, index int, text string) (ledger.ItemState, error)
	Abandon(ctx context.Context, id string, index int, text string) (ledger.EditLogEntry, error)
	Submit(ctx context.Context, id string, index int, text string) (ledger.EditLogEntry, error)
	Export(ctx context.Context, id string) (ledger.Bundle, error)
}

// ListScreen shows a session's findings with their revision status.
type ListScreen struct {
	svc       Service
	sessionID string
	dataDir   string
	now       func() time.Time

	rec     *ledger.Record
	menu    components.Menu
	busy    string
	status  string
	errMsg  string
	loadErr error
}

var _ screen.Screen = (*ListScreen)(nil)
var _ screen.KeyHintProvider = (*ListScreen)(nil)
var _ screen.Resumer = (*ListScreen)(nil)

// NewListScreen creates the findings list for a session. Exports are
// written under dataDir.
func NewListScreen(svc Service, sessionID, dataDir string) *ListScreen {
	return &ListScreen{
		svc:       svc,
		sessionID: sessionID,
		dataDir:   dataDir,
		now:       time.Now,
	}
}

func (s *ListScreen) Init() tea.Cmd {
	return s.load()
}

// Resume reloads the session after the editor closes.
func (s *ListScreen) Resume() tea.Cmd {
	return s.load()
}

func (s *ListScreen) Title() string {
	return "Findings"
}

// Student returns the session owner, once loaded.
func (s *ListScreen) Student() (ledger.Student, bool) {
	if s.rec == nil {
		return ledger.Student{}, false
	}
	return s.rec.Student, true
}

func (s *ListScreen) KeyHints() []layout.KeyHint {
	hints := []layout.KeyHint{
		{Key: "↑↓", Description: "Navigate"},
		{Key: "Enter", Description: "Revise"},
		{Key: "x", Description: "Export ZIP"},
		{Key: "d", Description: "Export dir"},
	}
	if s.rec != nil && len(s.rec.Findings) == 0 {
		hints = append(hints, layout.KeyHint{Key: "a", Description: "Analyze"})
	}
	return append(hints, layout.KeyHint{Key: "Ctrl+C", Description: "Quit"})
}

func (s *ListScreen) load() tea.Cmd {
	svc, id := s.svc, s.sessionID
	return func() tea.Msg {
		rec, err := svc.Get(context.Background(), id)
		return recordLoadedMsg{Record: rec, Err: err}
	}
}

func (s *ListScreen) Update(msg tea.Msg) (screen.Screen, tea.Cmd) {
	switch msg := msg.(type) {
	case recordLoadedMsg:
		if msg.Err != nil {
			s.loadErr = msg.Err
			return s, nil
		}
		s.setRecord(msg.Record)
		return s, nil

	case analyzedMsg:
		s.busy = ""
		if msg.Record.ID != "" {
			s.setRecord(msg.Record)
		}
		switch {
		case msg.Err != nil:
			s.errMsg = "Analysis failed: " + msg.Err.Error()
		case msg.Result != nil && !msg.Result.FindingsParsed:
			s.status = "The error scan returned no structured findings; raw output is kept for export."
		default:
			s.status = fmt.Sprintf("Analysis found %d findings.", len(s.rec.Findings))
		}
		return s, nil

	case exportedMsg:
		s.busy = ""
		if msg.Err != nil {
			s.errMsg = "Export failed: " + msg.Err.Error()
		} else {
			s.status = "Exported to " + msg.Path
		}
		return s, nil

	case tea.KeyMsg:
		return s.handleKey(msg)
	}
	return s, nil
}

func (s *ListScreen) handleKey(msg tea.KeyMsg) (screen.Screen, tea.Cmd) {
	if s.rec == nil || s.busy != "" {
		return s, nil
	}
	switch msg.String() {
	case "x":
		s.busy, s.status, s.errMsg = "Exporting…", "", ""
		return s, s.exportZip()
	case "d":
		s.busy, s.status, s.errMsg = "Exporting…", "", ""
		return s, s.exportDir()
	case "a":
		s.busy, s.status, s.errMsg = "Analyzing essay…", "", ""
		return s, s.analyze()
	}

	var cmd tea.Cmd
	s.menu, cmd = s.menu.Update(msg)
	return s, cmd
}

func (s *ListScreen) setRecord(rec ledger.Record) {
	s.rec = &rec
	s.loadErr = nil

	attempts := make(map[int][]ledger.EditLogEntry)
	for _, e := range rec.Logs {
		attempts[e.ErrorIndex] = append(attempts[e.ErrorIndex], e)
	}

	items := make([]components.MenuItem, len(rec.Findings))
	for i, f := range rec.Findings {
		name := f.Name
		if name == "" {
			name = ledger.DefaultName(i)
		}
		st := rec.States[i]
		idx := i
		items[i] = components.MenuItem{
			Label:  fmt.Sprintf("%2d. %s", i+1, layout.Truncate(name, 40)),
			Suffix: itemSuffix(f, st, attempts[i]),
			Action: func() tea.Cmd {
				return func() tea.Msg {
					return router.PushScreenMsg{Screen: NewDetailScreen(s.svc, rec.ID, idx)}
				}
			},
		}
	}
	s.menu.SetItems(items)
}

func itemSuffix(f ledger.Finding, st ledger.ItemState, logs []ledger.EditLogEntry) string {
	status := string(f.Status)
	if status == "" {
		status = string(ledger.StatusNo)
	}
	parts := []string{theme.Hint.Render("detected: " + status)}
	if st.Phase == ledger.PhaseEditing {
		parts = append(parts, theme.Unknown.Render("editing"))
	}
	if n := len(logs); n > 0 {
		parts = append(parts, theme.Hint.Render(fmt.Sprintf("%d attempts", n)))
		if last := logs[n-1]; last.AICheck != nil {
			parts = append(parts, verdictStyle(last.AICheck.Fixed).Render("fixed: "+string(last.AICheck.Fixed)))
		}
	}
	return strings.Join(parts, "  ")
}

func verdictStyle(f ledger.Fixed) lipgloss.Style {
	switch f {
	case ledger.FixedYes:
		return theme.Fixed
	case ledger.FixedNo, ledger.FixedError:
		return theme.NotFixed
	default:
		return theme.Unknown
	}
}

// resolved counts findings whose latest submission was judged fixed.
func resolved(rec ledger.Record) int {
	last := make(map[int]ledger.Fixed)
	for _, e := range rec.Logs {
		if e.AICheck != nil {
			last[e.ErrorIndex] = e.AICheck.Fixed
		}
	}
	n := 0
	for i := range rec.Findings {
		if last[i] == ledger.FixedYes {
			n++
		}
	}
	return n
}

func (s *ListScreen) analyze() tea.Cmd {
	svc, id := s.svc, s.sessionID
	return func() tea.Msg {
		rec, res, err := svc.Analyze(context.Background(), id)
		return analyzedMsg{Record: rec, Result: res, Err: err}
	}
}

func (s *ListScreen) exportZip() tea.Cmd {
	svc, id, dir := s.svc, s.sessionID, s.dataDir
	return func() tea.Msg {
		b, err := svc.Export(context.Background(), id)
		if err != nil {
			return exportedMsg{Err: err}
		}
		path := filepath.Join(dir, export.ArchiveName(b.Student))
		if err := export.WriteZipFile(path, b); err != nil {
			return exportedMsg{Err: err}
		}
		return exportedMsg{Path: path}
	}
}

func (s *ListScreen) exportDir() tea.Cmd {
	svc, id, dir, now := s.svc, s.sessionID, s.dataDir, s.now
	return func() tea.Msg {
		b, err := svc.Export(context.Background(), id)
		if err != nil {
			return exportedMsg{Err: err}
		}
		path, err := export.WriteDir(dir, b, now())
		return exportedMsg{Path: path, Err: err}
	}
}

func (s *ListScreen) View(width, height int) string {
	if s.loadErr != nil {
		return renderMessage(width, theme.NotFixed.Render("Could not load session: "+s.loadErr.Error()))
	}
	if s.rec == nil {
		return renderMessage(width, theme.Hint.Render("Loading session…"))
	}

	var b strings.Builder
	b.WriteString(theme.Label.Render(fmt.Sprintf("  %s (%s)", s.rec.Student.DisplayName(), s.rec.Student.DisplayID())))
	b.WriteString(theme.Hint.Render(fmt.Sprintf("   session %s · %d characters", s.rec.ID, len([]rune(s.rec.OriginalText)))))
	b.WriteString("\n\n")

	if n := len(s.rec.Findings); n > 0 {
		bar := components.NewTallyBar("  Resolved", resolved(*s.rec), n, min(width-4, 60))
		b.WriteString(bar.View())
		b.WriteString("\n\n")
		b.WriteString(s.menu.View())
	} else if s.rec.ErrorOutput != "" {
		b.WriteString(theme.Hint.Render("  The error scan returned no structured findings. Raw output:"))
		b.WriteString("\n\n")
		b.WriteString(theme.Body.Width(width - 4).Render(layout.Truncate(s.rec.ErrorOutput, 1500)))
	} else {
		b.WriteString(theme.Hint.Render("  This essay has not been analyzed yet. Press a to analyze."))
	}

	b.WriteString("\n")
	switch {
	case s.busy != "":
		b.WriteString("\n" + theme.Unknown.Render("  "+s.busy))
	case s.errMsg != "":
		b.WriteString("\n" + theme.NotFixed.Render("  "+s.errMsg))
	case s.status != "":
		b.WriteString("\n" + theme.Fixed.Render("  "+s.status))
	}
	return b.String()
}

func renderMessage(width int, msg string) string {
	return lipgloss.NewStyle().
		Width(width).
		Align(lipgloss.Center).
		Render("\n\n" + msg)
}
