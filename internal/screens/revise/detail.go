package revise

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "charm.land/bubbletea/v2"

	"github.com/abhisek/redpen/internal/ledger"
	"github.com/abhisek/redpen/internal/screen"
	"github.com/abhisek/redpen/internal/ui/components"
	"github.com/abhisek/redpen/internal/ui/layout"
	"github.com/abhisek/redpen/internal/ui/theme"
)

const (
	editorHeight = 6
	historyLimit = 5
)

// DetailScreen shows one finding and lets the student revise it.
type DetailScreen struct {
	svc       Service
	sessionID string
	index     int
	now       func() time.Time

	rec       *ledger.Record
	editor    components.Editor
	editing   bool
	startedAt time.Time
	elapsed   time.Duration
	savedText string
	busy      string
	lastEntry *ledger.EditLogEntry
	errMsg    string
}

var _ screen.Screen = (*DetailScreen)(nil)
var _ screen.KeyHintProvider = (*DetailScreen)(nil)

// NewDetailScreen creates the editor screen for finding index.
func NewDetailScreen(svc Service, sessionID string, index int) *DetailScreen {
	return &DetailScreen{
		svc:       svc,
		sessionID: sessionID,
		index:     index,
		now:       time.Now,
		editor:    components.NewEditor("", 60, editorHeight),
	}
}

func (s *DetailScreen) Init() tea.Cmd {
	svc, id := s.svc, s.sessionID
	return func() tea.Msg {
		rec, err := svc.Get(context.Background(), id)
		return recordLoadedMsg{Record: rec, Err: err}
	}
}

func (s *DetailScreen) Title() string {
	return fmt.Sprintf("Finding %d", s.index+1)
}

// Busy reports whether a model call or write is in flight.
func (s *DetailScreen) Busy() bool {
	return s.busy != ""
}

func (s *DetailScreen) KeyHints() []layout.KeyHint {
	switch {
	case s.busy != "":
		return []layout.KeyHint{{Key: "…", Description: s.busy}}
	case s.editing:
		return []layout.KeyHint{
			{Key: "Enter", Description: "Submit"},
			{Key: "Ctrl+X", Description: "Abandon"},
			{Key: "Esc", Description: "Back (keeps timer)"},
		}
	default:
		return []layout.KeyHint{
			{Key: "s", Description: "Start revising"},
			{Key: "Esc", Description: "Back"},
			{Key: "Ctrl+C", Description: "Quit"},
		}
	}
}

func (s *DetailScreen) Update(msg tea.Msg) (screen.Screen, tea.Cmd) {
	switch msg := msg.(type) {
	case recordLoadedMsg:
		return s.handleLoaded(msg)

	case startedMsg:
		s.busy = ""
		if msg.Err != nil {
			s.errMsg = msg.Err.Error()
			return s, nil
		}
		return s, s.beginEditing(msg.State)

	case loggedMsg:
		s.busy = ""
		if msg.Err != nil {
			s.errMsg = msg.Err.Error()
			return s, nil
		}
		s.editing = false
		s.editor.Blur()
		entry := msg.Entry
		s.lastEntry = &entry
		return s, s.Init()

	case draftSavedMsg:
		if msg.Err == nil {
			s.savedText = msg.Text
		}
		return s, nil

	case timerTickMsg:
		if !s.editing {
			return s, nil
		}
		s.elapsed = s.now().Sub(s.startedAt)
		cmds := []tea.Cmd{tick()}
		if s.busy == "" && s.editor.Value() != s.savedText {
			cmds = append(cmds, s.saveDraft(s.editor.Value()))
		}
		return s, tea.Batch(cmds...)

	case tea.KeyMsg:
		return s.handleKey(msg)
	}

	if s.editing && s.busy == "" {
		var cmd tea.Cmd
		s.editor, cmd = s.editor.Update(msg)
		return s, cmd
	}
	return s, nil
}

func (s *DetailScreen) handleLoaded(msg recordLoadedMsg) (screen.Screen, tea.Cmd) {
	if msg.Err != nil {
		s.errMsg = msg.Err.Error()
		return s, nil
	}
	rec := msg.Record
	s.rec = &rec
	if s.index >= len(rec.Findings) {
		s.errMsg = fmt.Sprintf("finding %d no longer exists; the essay was re-analyzed", s.index+1)
		return s, nil
	}
	// Re-entering a finding that is still being edited resumes its timer.
	if st := rec.States[s.index]; st.Phase == ledger.PhaseEditing && !s.editing {
		return s, s.beginEditing(st)
	}
	return s, nil
}

func (s *DetailScreen) handleKey(msg tea.KeyMsg) (screen.Screen, tea.Cmd) {
	if s.busy != "" || s.rec == nil || s.index >= len(s.rec.Findings) {
		return s, nil
	}

	if !s.editing {
		if msg.String() == "s" {
			s.busy, s.errMsg, s.lastEntry = "Starting…", "", nil
			return s, s.start()
		}
		return s, nil
	}

	switch msg.String() {
	case "enter":
		s.busy, s.errMsg = "Verifying with the error model…", ""
		s.editor.Blur()
		return s, s.submit(s.editor.Value())
	case "ctrl+x":
		s.busy, s.errMsg = "Abandoning…", ""
		s.editor.Blur()
		return s, s.abandon(s.editor.Value())
	}

	var cmd tea.Cmd
	s.editor, cmd = s.editor.Update(msg)
	return s, cmd
}

func (s *DetailScreen) beginEditing(st ledger.ItemState) tea.Cmd {
	s.editing = true
	if st.StartTime != nil {
		s.startedAt = *st.StartTime
	} else {
		s.startedAt = s.now()
	}
	s.elapsed = s.now().Sub(s.startedAt)
	s.editor.SetValue(st.Draft)
	s.savedText = st.Draft
	return tea.Batch(s.editor.Focus(), tick())
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return timerTickMsg(t)
	})
}

func (s *DetailScreen) start() tea.Cmd {
	svc, id, i := s.svc, s.sessionID, s.index
	return func() tea.Msg {
		st, err := svc.Start(context.Background(), id, i)
		return startedMsg{State: st, Err: err}
	}
}

func (s *DetailScreen) saveDraft(text string) tea.Cmd {
	svc, id, i := s.svc, s.sessionID, s.index
	return func() tea.Msg {
		_, err := svc.SetDraft(context.Background(), id, i, text)
		return draftSavedMsg{Text: text, Err: err}
	}
}

func (s *DetailScreen) submit(text string) tea.Cmd {
	svc, id, i := s.svc, s.sessionID, s.index
	return func() tea.Msg {
		entry, err := svc.Submit(context.Background(), id, i, text)
		return loggedMsg{Entry: entry, Err: err}
	}
}

func (s *DetailScreen) abandon(text string) tea.Cmd {
	svc, id, i := s.svc, s.sessionID, s.index
	return func() tea.Msg {
		entry, err := svc.Abandon(context.Background(), id, i, text)
		return loggedMsg{Entry: entry, Err: err}
	}
}

func (s *DetailScreen) View(width, height int) string {
	if s.rec == nil {
		if s.errMsg != "" {
			return renderMessage(width, theme.NotFixed.Render(s.errMsg))
		}
		return renderMessage(width, theme.Hint.Render("Loading…"))
	}
	if s.index >= len(s.rec.Findings) {
		return renderMessage(width, theme.NotFixed.Render(s.errMsg))
	}

	f := s.rec.Findings[s.index]
	inner := width - 6
	var b strings.Builder

	name := f.Name
	if name == "" {
		name = ledger.DefaultName(s.index)
	}
	b.WriteString(theme.Title.Render("  " + name))
	b.WriteString(theme.Hint.Render(fmt.Sprintf("   detected: %s", orDefault(string(f.Status), string(ledger.StatusNo)))))
	b.WriteString("\n\n")

	field := func(label, value string) {
		b.WriteString(theme.Label.Render("  " + label))
		b.WriteString("\n")
		b.WriteString(theme.Body.Width(inner).PaddingLeft(4).Render(orDefault(value, "-")))
		b.WriteString("\n")
	}
	field("Location", f.Location)
	field("Excerpt", f.Excerpt)
	field("Explanation", f.Explanation)
	field("Suggestion", f.Suggestion)
	b.WriteString("\n")

	if s.editing {
		secs := int(s.elapsed.Seconds())
		if secs < 0 {
			secs = 0
		}
		b.WriteString(theme.Unknown.Render(fmt.Sprintf("  ⏱ %d:%02d", secs/60, secs%60)))
		b.WriteString(theme.Hint.Render("  revise the excerpt below"))
		b.WriteString("\n")
		s.editor.SetSize(inner, editorHeight)
		b.WriteString(s.editor.View())
		b.WriteString("\n")
	}

	if s.lastEntry != nil {
		b.WriteString(renderEntry(*s.lastEntry, true))
	}

	switch {
	case s.busy != "":
		b.WriteString("\n" + theme.Unknown.Render("  "+s.busy) + "\n")
	case s.errMsg != "":
		b.WriteString("\n" + theme.NotFixed.Render("  "+s.errMsg) + "\n")
	}

	history := logsFor(*s.rec, s.index)
	if len(history) > 0 {
		b.WriteString("\n" + theme.Label.Render(fmt.Sprintf("  History (%d)", len(history))) + "\n")
		if len(history) > historyLimit {
			history = history[len(history)-historyLimit:]
		}
		for i := len(history) - 1; i >= 0; i-- {
			b.WriteString(renderEntry(history[i], false))
		}
	}
	return b.String()
}

func renderEntry(e ledger.EditLogEntry, detailed bool) string {
	used := "-"
	if e.TimeUsedS != nil {
		used = fmt.Sprintf("%.2fs", *e.TimeUsedS)
	}
	line := fmt.Sprintf("  %s  %-7s %7s  +%d -%d ~%d",
		e.Timestamp.Local().Format("15:04:05"), e.Action, used, e.Diff.Insert, e.Diff.Delete, e.Diff.Replace)
	out := theme.Body.Render(line)
	if e.AICheck != nil {
		out += "  " + verdictStyle(e.AICheck.Fixed).Render("fixed: "+string(e.AICheck.Fixed))
		if detailed && e.AICheck.Comment != "" {
			out += "\n" + theme.Hint.Render("    "+layout.Truncate(e.AICheck.Comment, 300))
		}
	}
	return out + "\n"
}

func logsFor(rec ledger.Record, index int) []ledger.EditLogEntry {
	var out []ledger.EditLogEntry
	for _, e := range rec.Logs {
		if e.ErrorIndex == index {
			out = append(out, e)
		}
	}
	return out
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
