package web

import (
	"sync"
	"time"

	"slotcal/internal/model"
)

// cellRect is the viewport box of one day cell as measured by the page.
type cellRect struct {
	Date string  `json:"date"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	W    float64 `json:"w"`
	H    float64 `json:"h"`
}

type placedCell struct {
	date       time.Time
	x, y, w, h float64
}

func (c placedCell) contains(x, y float64) bool {
	return x >= c.x && x < c.x+c.w && y >= c.y && y < c.y+c.h
}

// layoutResolver maps pointer coordinates to the day cell under them. The
// page resends its layout after every render, scroll and resize.
type layoutResolver struct {
	loc *time.Location

	mu    sync.RWMutex
	cells []placedCell
}

func newLayoutResolver(loc *time.Location) *layoutResolver {
	return &layoutResolver{loc: loc}
}

// Set replaces the layout. Rects with a bad date or an empty box are
// dropped; it returns how many were kept.
func (l *layoutResolver) Set(rects []cellRect) int {
	cells := make([]placedCell, 0, len(rects))
	for _, r := range rects {
		if r.W <= 0 || r.H <= 0 {
			continue
		}
		d, err := model.ParseDateKey(r.Date, l.loc)
		if err != nil {
			continue
		}
		cells = append(cells, placedCell{date: d, x: r.X, y: r.Y, w: r.W, h: r.H})
	}
	l.mu.Lock()
	l.cells = cells
	l.mu.Unlock()
	return len(cells)
}

func (l *layoutResolver) DateAt(x, y float64) (time.Time, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, c := range l.cells {
		if c.contains(x, y) {
			return c.date, true
		}
	}
	return time.Time{}, false
}
