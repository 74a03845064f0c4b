package web

import (
	"bytes"
	"embed"
	"html/template"
	"time"

	"slotcal/internal/drag"
	"slotcal/internal/grid"
	"slotcal/internal/model"
	"slotcal/internal/popover"
	"slotcal/internal/view"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"dateKey":  model.DateKey,
	"selected": selected,
	"clock": func(t time.Time) string {
		return t.Format("Jan 2 15:04")
	},
}).ParseFS(templateFS, "templates/*.tmpl"))

// selected reports whether date lies inside the creation selection.
func selected(sel view.Selection, date time.Time) bool {
	if sel.IsZero() {
		return false
	}
	return !date.Before(model.StartOfDay(sel.Start)) && !date.After(model.EndOfDay(sel.End))
}

type pageData struct {
	Title       string
	Weekdays    []string
	Months      []grid.Month
	Selection   view.Selection
	Connected   bool
	Dragging    bool
	Version     uint64
	Diagnostics int
	Timezone    string
}

func (s *Server) pageData(st view.State, proj drag.Projection) pageData {
	return pageData{
		Title:       "slotcal",
		Weekdays:    grid.Weekdays(s.cfg.Weekday()),
		Months:      grid.Build(st.Events, s.gridOptions(st, proj)),
		Selection:   st.Selection,
		Connected:   st.Connected,
		Dragging:    proj.Active,
		Version:     st.Version,
		Diagnostics: len(st.Diagnostics),
		Timezone:    s.loc.String(),
	}
}

// renderGrid renders the month grids alone, as pushed to page sessions.
func (s *Server) renderGrid(st view.State, proj drag.Projection) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "grid", s.pageData(st, proj)); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func renderPopover(d popover.Detail) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "popover", d); err != nil {
		return "", err
	}
	return buf.String(), nil
}
