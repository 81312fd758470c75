package window

import (
	"fmt"
	"sort"

	"anomaly-monitor/internal/models"
)

const (
	// DefaultMaxSize is the default window capacity in days.
	DefaultMaxSize = 7

	// DefaultShortTermDays is the default short moving-average span.
	DefaultShortTermDays = 3

	// DefaultLongTermDays is the default long moving-average span.
	DefaultLongTermDays = 7
)

// Point is one dated observation plus its derived metrics. Derived fields
// are filled in by the window; date and value never change afterwards.
type Point struct {
	Date  models.Date `json:"date"`
	Value float64     `json:"value"`

	// Day-over-day absolute and relative change; 0 when no predecessor
	// value applies.
	ChainDiff  float64 `json:"chainDiff"`
	ChainRatio float64 `json:"chainRatio"`

	// Trailing moving averages.
	MAShort float64 `json:"maShort"`
	MALong  float64 `json:"maLong"`
}

// DataWindow is a fixed-capacity buffer of observations kept in ascending
// date order. It is not safe for concurrent mutation; callers doing
// streaming inserts must serialize access per window.
type DataWindow struct {
	points        []Point
	maxSize       int
	shortTermDays int
	longTermDays  int
}

// New creates a window with the given capacity and default moving-average
// spans. Non-positive capacity falls back to the default.
func New(maxSize int) *DataWindow {
	return NewWithTerms(maxSize, DefaultShortTermDays, DefaultLongTermDays)
}

// NewWithTerms creates a window with explicit capacity and spans.
func NewWithTerms(maxSize, shortTermDays, longTermDays int) *DataWindow {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &DataWindow{
		points:        make([]Point, 0, maxSize),
		maxSize:       maxSize,
		shortTermDays: shortTermDays,
		longTermDays:  longTermDays,
	}
}

// Add inserts an observation. At capacity the head entry is evicted first,
// then the new point's metrics are computed against the remaining set, then
// the point is appended and the window re-sorted by date. The eviction
// deliberately precedes metric computation.
func (w *DataWindow) Add(date models.Date, value float64) {
	if len(w.points) >= w.maxSize {
		w.points = w.points[1:]
	}

	p := Point{Date: date, Value: value}
	w.computeMetrics(&p)

	w.points = append(w.points, p)
	sort.SliceStable(w.points, func(i, j int) bool {
		return w.points[i].Date.Before(w.points[j].Date)
	})
}

// computeMetrics fills the derived metrics of a point not yet in the window.
// Chain metrics look up the observation dated exactly one day earlier; a
// date gap leaves them at 0. Moving averages take the nearest predecessors
// by descending date.
func (w *DataWindow) computeMetrics(p *Point) {
	if prev, ok := w.pointAt(p.Date.AddDays(-1)); ok {
		p.ChainDiff = p.Value - prev.Value
		if prev.Value != 0 {
			p.ChainRatio = p.Value / prev.Value
		}
	}

	// Predecessors strictly before the new date, nearest first.
	preceding := make([]Point, 0, len(w.points))
	for _, q := range w.points {
		if q.Date.Before(p.Date) {
			preceding = append(preceding, q)
		}
	}
	sort.SliceStable(preceding, func(i, j int) bool {
		return preceding[j].Date.Before(preceding[i].Date)
	})

	shortSum := p.Value
	shortCount := 1
	for i := 0; i < len(preceding) && i < w.shortTermDays-1; i++ {
		shortSum += preceding[i].Value
		shortCount++
	}
	p.MAShort = shortSum / float64(shortCount)

	// The long average continues where the short selection left off.
	longSum := shortSum
	longCount := shortCount
	if w.longTermDays > w.shortTermDays {
		for i := w.shortTermDays - 1; i < len(preceding) && i < w.longTermDays-1; i++ {
			longSum += preceding[i].Value
			longCount++
		}
	}
	p.MALong = longSum / float64(longCount)
}

func (w *DataWindow) pointAt(date models.Date) (Point, bool) {
	for _, p := range w.points {
		if p.Date.Equal(date) {
			return p, true
		}
	}
	return Point{}, false
}

// AddAll inserts observations pairwise in the given order.
func (w *DataWindow) AddAll(dates []models.Date, values []float64) error {
	if len(dates) != len(values) {
		return fmt.Errorf("dates and values must have equal length: %d != %d", len(dates), len(values))
	}
	for i := range dates {
		w.Add(dates[i], values[i])
	}
	return nil
}

// Slide evicts the single earliest observation (if any) and adds the new
// one. The evicted point is returned; ok is false for an empty window.
func (w *DataWindow) Slide(date models.Date, value float64) (evicted Point, ok bool) {
	if len(w.points) > 0 {
		evicted = w.points[0]
		w.points = w.points[1:]
		ok = true
	}
	w.Add(date, value)
	return evicted, ok
}

// SubWindow returns a new window holding the most recent days observations
// with their derived metrics carried over verbatim. Non-positive days
// yields an empty sub-window.
func (w *DataWindow) SubWindow(days int) *DataWindow {
	if days < 0 {
		days = 0
	}
	if days > len(w.points) {
		days = len(w.points)
	}
	sub := NewWithTerms(days, w.shortTermDays, w.longTermDays)
	sub.points = append(sub.points, w.points[len(w.points)-days:]...)
	return sub
}

// SetMaxSize shrinks the window to the new capacity, evicting the earliest
// entries.
func (w *DataWindow) SetMaxSize(n int) error {
	if n <= 0 {
		return fmt.Errorf("window capacity must be positive, got %d", n)
	}
	w.maxSize = n
	for len(w.points) > n {
		w.points = w.points[1:]
	}
	return nil
}

// SetShortTermDays changes the short moving-average span and recomputes all
// derived metrics.
func (w *DataWindow) SetShortTermDays(n int) error {
	if n <= 0 {
		return fmt.Errorf("short-term days must be positive, got %d", n)
	}
	w.shortTermDays = n
	w.recalculateMetrics()
	return nil
}

// SetLongTermDays changes the long moving-average span and recomputes all
// derived metrics.
func (w *DataWindow) SetLongTermDays(n int) error {
	if n <= 0 {
		return fmt.Errorf("long-term days must be positive, got %d", n)
	}
	w.longTermDays = n
	w.recalculateMetrics()
	return nil
}

// recalculateMetrics rebuilds every point's derived metrics from scratch in
// date order. Unlike the incremental path this one is purely index-based:
// chain metrics come from the immediate sequence predecessor and moving
// averages are trailing windows over the sorted index sequence, regardless
// of date gaps. The two paths are intentionally distinct.
func (w *DataWindow) recalculateMetrics() {
	if len(w.points) == 0 {
		return
	}

	sort.SliceStable(w.points, func(i, j int) bool {
		return w.points[i].Date.Before(w.points[j].Date)
	})

	for i := range w.points {
		p := &w.points[i]
		p.ChainDiff = 0
		p.ChainRatio = 0
		if i > 0 {
			prev := w.points[i-1]
			p.ChainDiff = p.Value - prev.Value
			if prev.Value != 0 {
				p.ChainRatio = p.Value / prev.Value
			}
		}
	}

	for i := range w.points {
		p := &w.points[i]

		var shortSum float64
		shortCount := 0
		for j := max(0, i-w.shortTermDays+1); j <= i; j++ {
			shortSum += w.points[j].Value
			shortCount++
		}
		p.MAShort = shortSum / float64(shortCount)

		var longSum float64
		longCount := 0
		for j := max(0, i-w.longTermDays+1); j <= i; j++ {
			longSum += w.points[j].Value
			longCount++
		}
		p.MALong = longSum / float64(longCount)
	}
}

// Values returns all values in ascending date order.
func (w *DataWindow) Values() []float64 {
	values := make([]float64, len(w.points))
	for i, p := range w.points {
		values[i] = p.Value
	}
	return values
}

// Dates returns all dates in ascending order.
func (w *DataWindow) Dates() []models.Date {
	dates := make([]models.Date, len(w.points))
	for i, p := range w.points {
		dates[i] = p.Date
	}
	return dates
}

// Points returns a copy of all points in ascending date order.
func (w *DataWindow) Points() []Point {
	points := make([]Point, len(w.points))
	copy(points, w.points)
	return points
}

func (w *DataWindow) Size() int {
	return len(w.points)
}

func (w *DataWindow) MaxSize() int {
	return w.maxSize
}

func (w *DataWindow) ShortTermDays() int {
	return w.shortTermDays
}

func (w *DataWindow) LongTermDays() int {
	return w.longTermDays
}

func (w *DataWindow) IsEmpty() bool {
	return len(w.points) == 0
}

func (w *DataWindow) IsFull() bool {
	return len(w.points) >= w.maxSize
}

func (w *DataWindow) Clear() {
	w.points = w.points[:0]
}
