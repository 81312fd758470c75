package detector

import (
	"fmt"
	"log"
	"math"
	"sort"
	"sync"

	"anomaly-monitor/internal/config"
	"anomaly-monitor/internal/models"
	"anomaly-monitor/internal/stats"
	"anomaly-monitor/internal/window"
)

const (
	msgNoSuddenDrop    = "no single-day drop detected"
	msgNoSteadyDecline = "no steady decline detected"
)

// DeclineDetector mirrors RiseDetector for downward movement: a sudden-drop
// check runs first and a steady-decline check second, the first positive
// classifier wins. Both are guarded by a minimum-absolute-change floor to
// avoid false positives on small-magnitude baselines.
type DeclineDetector struct {
	base config.DeclineConfig

	mu     sync.Mutex
	stream *window.DataWindow
}

// NewDeclineDetector creates a decline engine with the given base
// configuration and streaming-window capacity.
func NewDeclineDetector(cfg config.DeclineConfig, windowSize int) *DeclineDetector {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	return &DeclineDetector{
		base:   cfg,
		stream: window.New(windowSize),
	}
}

// Config returns the base configuration.
func (d *DeclineDetector) Config() config.DeclineConfig {
	return d.base
}

// Window returns the engine-held streaming window.
func (d *DeclineDetector) Window() *window.DataWindow {
	return d.stream
}

// Detect classifies the given window. A nil override keeps the base
// configuration.
func (d *DeclineDetector) Detect(w *window.DataWindow, override *config.DeclineOverride) models.AlertReport {
	return d.detect(w, d.base.Merge(override))
}

// AddPointAndDetect appends one observation to the engine-held window and
// classifies it. Calls are serialized per engine instance.
func (d *DeclineDetector) AddPointAndDetect(date models.Date, value float64, override *config.DeclineOverride) models.AlertReport {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stream.Add(date, value)
	return d.detect(d.stream, d.base.Merge(override))
}

// DetectPoints classifies a list of dated observations using a private
// temporary window.
func (d *DeclineDetector) DetectPoints(points []models.DataPoint, override *config.DeclineOverride) models.AlertReport {
	if len(points) == 0 {
		return models.NormalReport(models.Today(), msgNoDataProvided)
	}

	tmp := newTemporaryWindow(len(points))
	sorted := make([]models.DataPoint, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})
	for _, p := range sorted {
		tmp.Add(p.Date, p.Value)
	}

	return d.detect(tmp, d.base.Merge(override))
}

// DetectValues classifies a flat series assumed to end today, one value per
// day, skipping nil entries without shifting later dates.
func (d *DeclineDetector) DetectValues(values []*float64, override *config.DeclineOverride) models.AlertReport {
	if len(values) == 0 {
		return models.NormalReport(models.Today(), msgNoDataProvided)
	}
	return d.DetectPoints(valuesToPoints(values), override)
}

func (d *DeclineDetector) detect(w *window.DataWindow, cfg config.DeclineConfig) models.AlertReport {
	if w == nil || w.Size() < 2 {
		return models.NormalReport(models.Today(), msgNotEnoughData)
	}

	values := w.Values()
	log.Printf("decline detection: points=%d mean=%.4f stddev=%.4f",
		len(values), stats.Mean(values), stats.StdDev(values))

	latest := w.Dates()[w.Size()-1]

	// Sudden drop has priority; a steady decline never overrides it.
	if report := detectSuddenDrop(latest, values, cfg); report.AlertType != models.AlertNoIssue {
		return report
	}

	if report := detectSteadyDecline(latest, values, cfg); report.AlertType != models.AlertNoIssue {
		return report
	}

	return models.NormalReport(latest, msgNoAnomaly)
}

// detectSuddenDrop compares the last value to the previous one. The
// absolute-change floor runs first so that rates near zero cannot trip the
// percentage condition.
func detectSuddenDrop(latest models.Date, values []float64, cfg config.DeclineConfig) models.AlertReport {
	if len(values) < 2 {
		return models.NormalReport(latest, msgNoSuddenDrop)
	}

	current := values[len(values)-1]
	previous := values[len(values)-2]

	absoluteChange := current - previous
	changePercent := changePercent(previous, current)

	mean := stats.Mean(values)
	stdDev := stats.StdDev(values)
	var deviationFromMean float64
	if stdDev > 0 {
		deviationFromMean = (current - mean) / stdDev
	}

	if math.Abs(absoluteChange) <= cfg.SuddenDropMinAbsoluteChange {
		return models.NormalReport(latest, msgNoSuddenDrop)
	}

	droppedByPercent := changePercent < -cfg.SuddenDropChangePercentThreshold
	droppedByDeviation := deviationFromMean < -cfg.SuddenDropStdDeviationMultiplier
	if !droppedByPercent && !droppedByDeviation {
		return models.NormalReport(latest, msgNoSuddenDrop)
	}

	score := math.Max(
		math.Abs(changePercent)/cfg.SuddenDropChangePercentThreshold,
		math.Abs(deviationFromMean)/cfg.SuddenDropStdDeviationMultiplier,
	)
	score = math.Min(1.0, score) * cfg.SuddenDropWeight

	var description string
	if droppedByPercent {
		description = fmt.Sprintf("dropped %.2f%% in one day", math.Abs(changePercent))
	}
	if droppedByDeviation {
		if description != "" {
			description += ", "
		}
		description += fmt.Sprintf("%.2f standard deviations below the window mean", math.Abs(deviationFromMean))
	}

	return models.AlertReport{
		Date:        latest,
		IsAlert:     true,
		AlertType:   models.AlertSingleDayDrop,
		TotalScore:  score,
		Description: description,
		Severity:    declineSeverity(score, cfg),
	}
}

// detectSteadyDecline mirrors the gradual-rise logic with three sufficient
// conditions: a well-fitted negative slope with enough consecutive down
// days, a large total decline with reasonable fit, or an intermittent
// decline across most days.
func detectSteadyDecline(latest models.Date, values []float64, cfg config.DeclineConfig) models.AlertReport {
	if len(values) < cfg.SteadyDeclineMinDataPoints {
		return models.NormalReport(latest, msgNoSteadyDecline)
	}

	firstValue := values[0]
	lastValue := values[len(values)-1]

	// Same floor as the sudden-drop check, applied to the first-to-last
	// absolute change.
	if math.Abs(lastValue-firstValue) <= cfg.SuddenDropMinAbsoluteChange {
		return models.NormalReport(latest, msgNoSteadyDecline)
	}

	regression := stats.NewRegression()
	for i, v := range values {
		regression.Add(float64(i), v)
	}
	slope := regression.Slope()
	rSquared := regression.RSquared()

	totalChangePercent := changePercent(firstValue, lastValue)

	downDays := 0
	consecutive := 0
	maxConsecutive := 0
	for i := 1; i < len(values); i++ {
		if values[i] < values[i-1] {
			downDays++
			consecutive++
			if consecutive > maxConsecutive {
				maxConsecutive = consecutive
			}
		} else {
			consecutive = 0
		}
	}

	dailyChanges := make([]float64, len(values)-1)
	for i := 1; i < len(values); i++ {
		dailyChanges[i-1] = changePercent(values[i-1], values[i])
	}

	var avgDailyDeclinePercent float64
	if downDays > 0 {
		var totalDeclinePercent float64
		declineDays := 0
		for _, change := range dailyChanges {
			if change < 0 {
				totalDeclinePercent += change
				declineDays++
			}
		}
		if declineDays > 0 {
			avgDailyDeclinePercent = totalDeclinePercent / float64(declineDays)
		}
	}

	condition1 := slope < 0 &&
		rSquared > cfg.SteadyDeclineRSquaredThreshold &&
		maxConsecutive >= cfg.SteadyDeclineMinConsecutiveDays

	condition2 := totalChangePercent < -cfg.SteadyDeclineTotalChangeThreshold &&
		rSquared > 0.5

	condition3 := downDays >= len(values)/2 &&
		avgDailyDeclinePercent < -cfg.SteadyDailyAverageDeclineThreshold &&
		totalChangePercent < -cfg.SteadyDeclineTotalChangeThreshold/2

	if !(condition1 || condition2 || condition3) {
		return models.NormalReport(latest, msgNoSteadyDecline)
	}

	var score1, score2, score3 float64
	if condition1 {
		score1 = rSquared
	}
	if condition2 {
		score2 = math.Min(1.0, math.Abs(totalChangePercent)/(2*cfg.SteadyDeclineTotalChangeThreshold))
	}
	if condition3 {
		score3 = math.Min(1.0, math.Abs(avgDailyDeclinePercent)/(2*cfg.SteadyDailyAverageDeclineThreshold))
	}
	score := math.Min(1.0, math.Max(score1, math.Max(score2, score3))) * cfg.SteadyDeclineWeight

	var description string
	switch {
	case condition1:
		description = fmt.Sprintf("steady decline trend, up to %d consecutive down days, average daily change %.2f%%, fit R²=%.2f",
			maxConsecutive, slope*100, rSquared)
	case condition2:
		description = fmt.Sprintf("large cumulative decline, total change %.2f%%, fit R²=%.2f",
			totalChangePercent, rSquared)
	default:
		description = fmt.Sprintf("intermittent decline, %d of %d days down, average daily drop %.2f%%, total change %.2f%%",
			downDays, len(values), avgDailyDeclinePercent, totalChangePercent)
	}

	return models.AlertReport{
		Date:        latest,
		IsAlert:     true,
		AlertType:   models.AlertSteadyDecline,
		TotalScore:  score,
		Description: description,
		Severity:    declineSeverity(score, cfg),
	}
}

// declineSeverity bands the weighted score. Unlike the rise engine no
// downgrade follows: a fired decline classifier stays an alert even at
// NORMAL severity.
func declineSeverity(score float64, cfg config.DeclineConfig) models.SeverityLevel {
	switch {
	case score >= cfg.ScoreCriticalThreshold:
		return models.SeverityCritical
	case score >= cfg.ScoreWarningThreshold:
		return models.SeverityWarning
	default:
		return models.SeverityNormal
	}
}

// changePercent guards the denominator against zero and near-zero values
// by clamping it to a small epsilon.
func changePercent(from, to float64) float64 {
	if math.Abs(from) < 0.00001 {
		from = 0.00001
	}
	return (to - from) / math.Abs(from) * 100
}
