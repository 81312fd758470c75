// Package detector implements the windowed anomaly classifiers: a rise
// engine (sudden spike, gradual rise, periodicity fallback) and a decline
// engine (sudden drop, steady decline). Detection calls are total functions: they
// never return an error, the worst outcome is a NO_ISSUE report explaining
// why nothing was classified.
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

// DefaultWindowSize is the capacity used for engine-held and temporary
// windows unless a larger batch requires more room.
const DefaultWindowSize = 7

const (
	msgNotEnoughData  = "not enough data points for detection"
	msgNoDataProvided = "no data points provided"
	msgNoAnomaly      = "no anomaly detected"
	msgNoSuddenSpike  = "no single-day spike detected"
	msgNoGradualRise  = "no steady rise detected"
)

// RiseDetector classifies upward movement patterns. The base configuration
// is fixed at construction; per-call overrides are merged into an effective
// configuration without touching shared state. Only AddPointAndDetect uses
// the engine-held window and is serialized internally.
type RiseDetector struct {
	base config.RiseConfig

	mu     sync.Mutex
	stream *window.DataWindow
}

// NewRiseDetector creates a rise engine with the given base configuration
// and streaming-window capacity.
func NewRiseDetector(cfg config.RiseConfig, windowSize int) *RiseDetector {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	return &RiseDetector{
		base:   cfg,
		stream: window.New(windowSize),
	}
}

// Config returns the base configuration.
func (d *RiseDetector) Config() config.RiseConfig {
	return d.base
}

// Window returns the engine-held streaming window.
func (d *RiseDetector) Window() *window.DataWindow {
	return d.stream
}

// Detect classifies the given window. A nil override keeps the base
// configuration.
func (d *RiseDetector) Detect(w *window.DataWindow, override *config.RiseOverride) models.AlertReport {
	return d.detect(w, d.base.Merge(override))
}

// AddPointAndDetect appends one observation to the engine-held window and
// classifies it. Calls are serialized per engine instance.
func (d *RiseDetector) AddPointAndDetect(date models.Date, value float64, override *config.RiseOverride) models.AlertReport {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stream.Add(date, value)
	return d.detect(d.stream, d.base.Merge(override))
}

// DetectPoints classifies a list of dated observations using a private
// temporary window, so concurrent calls need no synchronization.
func (d *RiseDetector) DetectPoints(points []models.DataPoint, override *config.RiseOverride) models.AlertReport {
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
// day. Nil entries are skipped without shifting the dates assigned to later
// values.
func (d *RiseDetector) DetectValues(values []*float64, override *config.RiseOverride) models.AlertReport {
	if len(values) == 0 {
		return models.NormalReport(models.Today(), msgNoDataProvided)
	}
	return d.DetectPoints(valuesToPoints(values), override)
}

func (d *RiseDetector) detect(w *window.DataWindow, cfg config.RiseConfig) models.AlertReport {
	if w == nil || w.Size() < 3 {
		return models.NormalReport(models.Today(), msgNotEnoughData)
	}

	values := w.Values()
	desc := stats.Describe(values)
	log.Printf("rise detection: points=%d mean=%.4f stddev=%.4f min=%.4f max=%.4f",
		len(values), desc.Mean(), desc.StdDev(), desc.Min(), desc.Max())

	latest := w.Dates()[w.Size()-1]

	// Sudden spike short-circuits gradual rise. Periodicity runs last, as a
	// fallback: a window that triggered neither directional classifier may
	// still be a recurring business cycle worth naming.
	if report := detectSuddenSpike(latest, values, cfg); report.IsAlert {
		return scoreRiseReport(report, cfg)
	}

	if report := detectGradualIncrease(latest, values, cfg); report.IsAlert {
		return scoreRiseReport(report, cfg)
	}

	if hasPeriodicity(values, cfg) {
		return createPeriodicReport(latest, values, cfg)
	}

	return models.NormalReport(latest, msgNoAnomaly)
}

// scoreRiseReport weights the classifier confidence and bands the severity.
// A score that resolves to NORMAL downgrades the alert to NO_ISSUE: low
// confidence detections are suppressed after scoring. The periodic weight
// branch is kept for configuration compatibility even though periodic
// reports currently bypass scoring.
func scoreRiseReport(report models.AlertReport, cfg config.RiseConfig) models.AlertReport {
	var weight float64
	switch report.AlertType {
	case models.AlertSingleDaySpike:
		weight = cfg.ScoreSuddenSpikeWeight
	case models.AlertSteadyRise:
		weight = cfg.ScoreGradualIncreaseWeight
	case models.AlertAbnormalVolatility:
		weight = cfg.ScorePeriodicWeight
	default:
		weight = 0.0
	}

	prefix := report.AlertType.Label() + ": "
	if len(report.Description) < len(prefix) || report.Description[:len(prefix)] != prefix {
		report.Description = prefix + report.Description
	}

	report.TotalScore *= weight

	switch {
	case report.TotalScore >= cfg.ScoreCriticalThreshold:
		report.Severity = models.SeverityCritical
	case report.TotalScore >= cfg.ScoreWarningThreshold:
		report.Severity = models.SeverityWarning
	default:
		report.Severity = models.SeverityNormal
		report.AlertType = models.AlertNoIssue
		report.Description = msgNoAnomaly
		report.IsAlert = false
	}

	return report
}

// detectSuddenSpike checks whether the last value jumped relative to the
// previous one, either in percentage terms or in standard deviations from
// the window mean, with a minimum-absolute-change floor.
func detectSuddenSpike(latest models.Date, values []float64, cfg config.RiseConfig) models.AlertReport {
	if len(values) < 2 {
		return models.NormalReport(latest, msgNoSuddenSpike)
	}

	last := values[len(values)-1]
	previous := values[len(values)-2]

	absoluteChange := last - previous
	var percentageChange float64
	if previous != 0 {
		percentageChange = absoluteChange / previous * 100
	}

	desc := stats.Describe(values)
	stdDev := desc.StdDev()
	var deviationFromMean float64
	if stdDev > 0 {
		deviationFromMean = (last - desc.Mean()) / stdDev
	}

	isSpike := (percentageChange > cfg.SuddenSpikePercentageChangeThreshold ||
		deviationFromMean > cfg.SuddenSpikeStdDeviationMultiplier) &&
		absoluteChange > cfg.SuddenSpikeMinAbsoluteChange &&
		percentageChange > 0

	if !isSpike {
		return models.NormalReport(latest, msgNoSuddenSpike)
	}

	confidence := math.Max(
		percentageChange/cfg.SuddenSpikePercentageChangeThreshold,
		deviationFromMean/cfg.SuddenSpikeStdDeviationMultiplier,
	)
	confidence = math.Min(1.0, confidence)

	return models.AlertReport{
		Date:       latest,
		IsAlert:    true,
		AlertType:  models.AlertSingleDaySpike,
		TotalScore: confidence,
		Description: fmt.Sprintf("rose %.2f%% in one day, %.2f standard deviations above the window mean",
			percentageChange, deviationFromMean),
	}
}

// detectGradualIncrease runs the linear-regression based rise check. Three
// independent conditions are each sufficient: a well-fitted positive slope
// with enough consecutive up days, a large cumulative rise with reasonable
// fit, or an intermittent pattern where most days rise significantly.
func detectGradualIncrease(latest models.Date, values []float64, cfg config.RiseConfig) models.AlertReport {
	regression := stats.NewRegression()
	for i, v := range values {
		regression.Add(float64(i), v)
	}
	slope := regression.Slope()
	rSquared := regression.RSquared()

	firstValue := values[0]
	lastValue := values[len(values)-1]
	var totalChangePercent float64
	if firstValue > 0 {
		totalChangePercent = (lastValue - firstValue) / firstValue * 100
	}

	upDays := 0
	consecutive := 0
	maxConsecutive := 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[i-1] {
			upDays++
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
		if values[i-1] > 0 {
			dailyChanges[i-1] = (values[i] - values[i-1]) / values[i-1] * 100
		}
	}

	var avgDailyIncreasePercent float64
	if upDays > 0 {
		var totalIncreasePercent float64
		increaseDays := 0
		for _, change := range dailyChanges {
			if change > 0 {
				totalIncreasePercent += change
				increaseDays++
			}
		}
		if increaseDays > 0 {
			avgDailyIncreasePercent = totalIncreasePercent / float64(increaseDays)
		}
	}

	lastDayUp := len(values) > 1 && values[len(values)-1] > values[len(values)-2]

	condition1 := slope > cfg.GradualIncreaseSlopeThreshold &&
		rSquared > cfg.GradualIncreaseMinRSquared &&
		maxConsecutive >= cfg.GradualIncreaseMinConsecutiveIncreases

	condition2 := totalChangePercent >= cfg.GradualIncreaseTotalChangePercentThreshold &&
		rSquared > 0.5 &&
		lastDayUp

	condition3 := upDays >= len(values)/2 &&
		avgDailyIncreasePercent >= cfg.GradualIncreaseSlopeThreshold*100 &&
		totalChangePercent >= cfg.GradualIncreaseTotalChangePercentThreshold/2 &&
		lastValue > firstValue*(1+cfg.GradualIncreaseTotalChangePercentThreshold/200) &&
		lastDayUp

	if !(condition1 || condition2 || condition3) {
		return models.NormalReport(latest, msgNoGradualRise)
	}

	var score1, score2, score3 float64
	if condition1 {
		score1 = rSquared
	}
	if condition2 {
		score2 = math.Min(1.0, totalChangePercent/(2*cfg.GradualIncreaseTotalChangePercentThreshold))
	}
	if condition3 {
		score3 = math.Min(1.0, avgDailyIncreasePercent/(2*cfg.GradualIncreaseSlopeThreshold*100))
	}
	confidence := math.Min(1.0, math.Max(score1, math.Max(score2, score3)))

	var description string
	switch {
	case condition1:
		description = fmt.Sprintf("steady rise trend, up to %d consecutive up days, average daily growth %.2f%%, fit R²=%.2f",
			maxConsecutive, slope*100, rSquared)
	case condition2:
		description = fmt.Sprintf("large cumulative rise, total change %.2f%%, fit R²=%.2f",
			totalChangePercent, rSquared)
	default:
		description = fmt.Sprintf("intermittent rise, %d of %d days up, average daily gain %.2f%%, total change %.2f%%",
			upDays, len(values), avgDailyIncreasePercent, totalChangePercent)
	}

	return models.AlertReport{
		Date:        latest,
		IsAlert:     true,
		AlertType:   models.AlertSteadyRise,
		TotalScore:  confidence,
		Description: description,
	}
}

// hasPeriodicity looks for cyclic patterns via direction changes and
// autocorrelation. A trailing spike does not mask fluctuation in the points
// before it.
func hasPeriodicity(values []float64, cfg config.RiseConfig) bool {
	if len(values) < 4 {
		return false
	}

	if len(values) > 2 {
		last := values[len(values)-1]
		previous := values[len(values)-2]
		var lastChangePercent float64
		if previous != 0 {
			lastChangePercent = math.Abs((last - previous) / previous * 100)
		}

		// Large final-day move: judge the fluctuation of the points before it.
		if lastChangePercent > cfg.SuddenSpikePercentageChangeThreshold/2 && len(values) > 4 {
			if countDirectionChanges(values[:len(values)-1]) >= 2 {
				return true
			}
		}
	}

	desc := stats.Describe(values)
	mean := desc.Mean()
	var cv float64
	if mean != 0 {
		cv = desc.StdDev() / mean
	}
	if cv < 0.05 {
		return false
	}

	directionChanges := countDirectionChanges(values)
	if directionChanges >= 3 && len(values) <= 8 {
		return true
	}

	var maxCorrelation float64
	maxLag := cfg.PeriodicityMaxPeriodDays
	if half := len(values) / 2; half < maxLag {
		maxLag = half
	}
	for lag := 1; lag <= maxLag; lag++ {
		if len(values)-lag < 2 {
			continue
		}
		correlation := stats.Correlation(values[:len(values)-lag], values[lag:])
		if math.Abs(correlation) > math.Abs(maxCorrelation) {
			maxCorrelation = correlation
		}
		if math.Abs(correlation) > cfg.PeriodicityAutocorrelationThreshold {
			return true
		}
	}

	// Relaxed combined condition.
	return math.Abs(maxCorrelation) > 0.5 && directionChanges >= 2 && len(values) >= 5
}

// countDirectionChanges counts rise/fall alternations in the series.
func countDirectionChanges(values []float64) int {
	if len(values) < 3 {
		return 0
	}

	changes := 0
	increasing := values[1] > values[0]
	for i := 2; i < len(values); i++ {
		current := values[i] > values[i-1]
		if current != increasing {
			changes++
			increasing = current
		}
	}
	return changes
}

// createPeriodicReport names the strongest period found. Periodic patterns
// are treated as normal business cycles, not anomalies, so the report
// suppresses the alert rather than raising one.
func createPeriodicReport(date models.Date, values []float64, cfg config.RiseConfig) models.AlertReport {
	bestPeriod := 0
	var maxCorrelation float64

	maxLag := cfg.PeriodicityMaxPeriodDays
	if third := len(values) / 3; third < maxLag {
		maxLag = third
	}
	for lag := 1; lag <= maxLag; lag++ {
		correlation := stats.Correlation(values[:len(values)-lag], values[lag:])
		if math.Abs(correlation) > math.Abs(maxCorrelation) {
			maxCorrelation = correlation
			bestPeriod = lag
		}
	}

	return models.AlertReport{
		Date:       date,
		IsAlert:    false,
		AlertType:  models.AlertNoIssue,
		TotalScore: 0.0,
		Severity:   models.SeverityNormal,
		Description: fmt.Sprintf("periodic fluctuation detected, period of about %d days, correlation %.2f; not an anomaly",
			bestPeriod, maxCorrelation),
	}
}

// newTemporaryWindow sizes a private window for a batch call.
func newTemporaryWindow(size int) *window.DataWindow {
	if size < DefaultWindowSize {
		size = DefaultWindowSize
	}
	return window.New(size)
}

// valuesToPoints assigns dates by walking backward from today, one day per
// position in the original list. Nil entries are dropped but their position
// still consumes a day, so later values keep their dates.
func valuesToPoints(values []*float64) []models.DataPoint {
	today := models.Today()
	points := make([]models.DataPoint, 0, len(values))
	for i, v := range values {
		if v == nil {
			continue
		}
		points = append(points, models.DataPoint{
			Date:  today.AddDays(-(len(values) - 1 - i)),
			Value: *v,
		})
	}
	return points
}
