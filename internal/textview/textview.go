// Package textview renders the month grids for a terminal.
package textview

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"slotcal/internal/grid"
	"slotcal/internal/model"
)

var (
	colorMuted = lipgloss.Color("#6b7280")
	colorToday = lipgloss.Color("#2563eb")
	colorBusy  = lipgloss.Color(model.ColorBusy)

	titleStyle   = lipgloss.NewStyle().Bold(true).MarginTop(1)
	weekdayStyle = lipgloss.NewStyle().Foreground(colorMuted).Width(cellWidth).Align(lipgloss.Right)
	cellStyle    = lipgloss.NewStyle().Width(cellWidth).Align(lipgloss.Right)
	legendStyle  = lipgloss.NewStyle().PaddingLeft(2)
	noteStyle    = lipgloss.NewStyle().Foreground(colorMuted).Italic(true)
)

const cellWidth = 4

// Render prints months as compact grids. Unavailable days are marked with
// "x", days with events with "*", followed by a legend of the events that
// start in the month.
func Render(months []grid.Month, weekdays []string, events []model.Event) string {
	var b strings.Builder
	for _, m := range months {
		b.WriteString(titleStyle.Render(m.Title()))
		b.WriteByte('\n')

		head := make([]string, 0, len(weekdays))
		for _, w := range weekdays {
			head = append(head, weekdayStyle.Render(w[:min(2, len(w))]))
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, head...))
		b.WriteByte('\n')

		for _, week := range m.Weeks {
			row := make([]string, 0, len(week))
			for _, c := range week {
				row = append(row, renderCell(c))
			}
			b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, row...))
			b.WriteByte('\n')
		}

		for _, line := range legend(m, events) {
			b.WriteString(legendStyle.Render(line))
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func renderCell(c grid.Cell) string {
	if !c.InMonth {
		return cellStyle.Render("")
	}
	mark := " "
	switch {
	case c.Unavailable:
		mark = "x"
	case len(c.Indicators) > 0:
		mark = "*"
	}
	st := cellStyle
	switch {
	case c.Unavailable:
		st = st.Foreground(colorBusy)
	case c.Disabled:
		st = st.Foreground(colorMuted)
	case len(c.Indicators) > 0:
		st = st.Foreground(lipgloss.Color(c.Indicators[0].Color))
	}
	if c.Today {
		st = st.Underline(true).Foreground(colorToday)
	}
	return st.Render(fmt.Sprintf("%d%s", c.Date.Day(), mark))
}

// legend lists the events starting inside month m, in lane order.
func legend(m grid.Month, events []model.Event) []string {
	byID := make(map[string]model.Event, len(events))
	for _, ev := range events {
		byID[ev.ID] = ev
	}
	var out []string
	seen := make(map[string]bool)
	for _, week := range m.Weeks {
		for _, c := range week {
			if !c.InMonth {
				continue
			}
			for _, ind := range c.Indicators {
				if !ind.ShowLabel || seen[ind.EventID] {
					continue
				}
				seen[ind.EventID] = true
				ev, ok := byID[ind.EventID]
				if !ok {
					continue
				}
				dot := lipgloss.NewStyle().Foreground(lipgloss.Color(ind.Color)).Render("●")
				line := fmt.Sprintf("%s %s  %s - %s", dot, ind.Title,
					ev.Start.Format("Jan 2"), ev.End.Format("Jan 2"))
				if name := ind.Owner.DisplayName(); name != "" {
					line += noteStyle.Render("  " + name)
				}
				out = append(out, line)
			}
		}
	}
	return out
}
