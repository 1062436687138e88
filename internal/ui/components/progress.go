package components

import (
	"fmt"
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/abhisek/redpen/internal/ui/theme"
)

// TallyBar is a horizontal bar showing done out of total, followed by the
// count.
type TallyBar struct {
	Label string
	Done  int
	Total int
	Width int
}

// NewTallyBar creates a bar of the given overall width.
func NewTallyBar(label string, done, total, width int) TallyBar {
	return TallyBar{Label: label, Done: done, Total: total, Width: width}
}

func (b TallyBar) View() string {
	var sb strings.Builder
	if b.Label != "" {
		sb.WriteString(theme.Body.Render(b.Label))
		sb.WriteString("  ")
	}
	count := fmt.Sprintf("  %d/%d", b.Done, b.Total)

	barWidth := max(b.Width-lipgloss.Width(sb.String())-len(count), 4)
	filled := 0
	if b.Total > 0 {
		filled = min(max(barWidth*b.Done/b.Total, 0), barWidth)
	}

	sb.WriteString(theme.ProgressFilled.Render(strings.Repeat(" ", filled)))
	sb.WriteString(theme.ProgressEmpty.Render(strings.Repeat(" ", barWidth-filled)))
	sb.WriteString(theme.Hint.UnsetItalic().Render(count))
	return sb.String()
}
