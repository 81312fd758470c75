package detector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anomaly-monitor/internal/config"
	"anomaly-monitor/internal/models"
	"anomaly-monitor/internal/window"
)

var testBase = models.NewDate(time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC))

func day(n int) models.Date {
	return testBase.AddDays(n)
}

func fptr(v float64) *float64 { return &v }

func ptrs(values ...float64) []*float64 {
	out := make([]*float64, len(values))
	for i := range values {
		out[i] = &values[i]
	}
	return out
}

func points(values ...float64) []models.DataPoint {
	out := make([]models.DataPoint, len(values))
	for i, v := range values {
		out[i] = models.DataPoint{Date: day(i), Value: v}
	}
	return out
}

func newRise() *RiseDetector {
	return NewRiseDetector(config.DefaultRiseConfig(), DefaultWindowSize)
}

func TestRiseDetectsSingleDaySpike(t *testing.T) {
	report := newRise().DetectValues(ptrs(100, 102, 99, 101, 100, 103, 210), nil)

	assert.Equal(t, models.AlertSingleDaySpike, report.AlertType)
	assert.True(t, report.IsAlert)
	assert.Equal(t, models.SeverityCritical, report.Severity)
	assert.InDelta(t, 10.0, report.TotalScore, 1e-9)
	assert.Contains(t, report.Description, "single-day spike")
}

func TestRiseSpikeWithLoweredThreshold(t *testing.T) {
	d := newRise()
	values := ptrs(100, 102, 99, 101, 100, 103, 140)

	// At the default 100% threshold a 36% jump is not a spike.
	assert.Equal(t, models.AlertNoIssue, d.DetectValues(values, nil).AlertType)

	report := d.DetectValues(values, &config.RiseOverride{
		SuddenSpikePercentageChangeThreshold: fptr(30.0),
	})
	assert.Equal(t, models.AlertSingleDaySpike, report.AlertType)
	assert.True(t, report.IsAlert)
	assert.Equal(t, models.SeverityCritical, report.Severity)
}

func TestRiseDetectsGradualIncrease(t *testing.T) {
	report := newRise().DetectValues(ptrs(100, 130, 170, 225, 300, 400, 550), nil)

	assert.Equal(t, models.AlertSteadyRise, report.AlertType)
	assert.True(t, report.IsAlert)
	assert.Equal(t, models.SeverityWarning, report.Severity)
	assert.InDelta(t, 5.0, report.TotalScore, 1e-9)
	assert.Contains(t, report.Description, "steady rise")
}

func TestRiseStableSeriesIsClean(t *testing.T) {
	report := newRise().DetectValues(ptrs(100, 100, 100, 100, 100, 100, 100), nil)

	assert.Equal(t, models.AlertNoIssue, report.AlertType)
	assert.False(t, report.IsAlert)
	assert.Equal(t, 0.0, report.TotalScore)
	assert.Equal(t, models.SeverityNormal, report.Severity)
}

func TestRisePeriodicFluctuationIsSuppressed(t *testing.T) {
	report := newRise().DetectValues(ptrs(100, 150, 100, 150, 100, 150, 100), nil)

	assert.Equal(t, models.AlertNoIssue, report.AlertType)
	assert.False(t, report.IsAlert)
	assert.Equal(t, 0.0, report.TotalScore)
	assert.Contains(t, report.Description, "periodic")
}

func TestRiseLowWeightDowngradesToNoIssue(t *testing.T) {
	report := newRise().DetectValues(ptrs(100, 130, 170, 225, 300, 400, 550), &config.RiseOverride{
		ScoreGradualIncreaseWeight: fptr(1.0),
	})

	assert.Equal(t, models.AlertNoIssue, report.AlertType)
	assert.False(t, report.IsAlert)
	assert.Equal(t, models.SeverityNormal, report.Severity)
}

func TestRiseEmptyInput(t *testing.T) {
	d := newRise()

	report := d.DetectValues(nil, nil)
	assert.Equal(t, models.AlertNoIssue, report.AlertType)
	assert.False(t, report.IsAlert)

	report = d.DetectPoints(nil, nil)
	assert.Equal(t, models.AlertNoIssue, report.AlertType)
	assert.Equal(t, "no data points provided", report.Description)
}

func TestRiseRequiresThreePoints(t *testing.T) {
	report := newRise().DetectValues(ptrs(100, 300), nil)

	assert.Equal(t, models.AlertNoIssue, report.AlertType)
	assert.False(t, report.IsAlert)
	assert.Equal(t, "not enough data points for detection", report.Description)
}

func TestRiseNilValuesAreSkipped(t *testing.T) {
	values := ptrs(100, 102, 99, 101, 100, 103, 210)
	withNil := append([]*float64{values[0], nil}, values[1:]...)

	report := newRise().DetectValues(withNil, nil)
	assert.Equal(t, models.AlertSingleDaySpike, report.AlertType)
	assert.True(t, report.IsAlert)
}

func TestRiseDetectPointsUnsortedInput(t *testing.T) {
	pts := points(100, 102, 99, 101, 100, 103, 210)
	shuffled := []models.DataPoint{pts[6], pts[2], pts[0], pts[4], pts[1], pts[5], pts[3]}

	report := newRise().DetectPoints(shuffled, nil)
	assert.Equal(t, models.AlertSingleDaySpike, report.AlertType)
	assert.True(t, report.Date.Equal(day(6)))
}

func TestRiseDetectPointsIsIdempotent(t *testing.T) {
	d := newRise()
	pts := points(100, 130, 170, 225, 300, 400, 550)

	first := d.DetectPoints(pts, nil)
	second := d.DetectPoints(pts, nil)
	require.Equal(t, first, second)
}

func TestRiseDetectOnExplicitWindow(t *testing.T) {
	w := window.New(7)
	for i, v := range []float64{100, 102, 99, 101, 100, 103, 210} {
		w.Add(day(i), v)
	}

	report := newRise().Detect(w, nil)
	assert.Equal(t, models.AlertSingleDaySpike, report.AlertType)
	assert.True(t, report.Date.Equal(day(6)))
}

func TestRiseStreaming(t *testing.T) {
	d := newRise()
	values := []float64{100, 102, 99, 101, 100, 103, 210}

	var report models.AlertReport
	for i, v := range values {
		report = d.AddPointAndDetect(day(i), v, nil)
		if i < 2 {
			assert.Equal(t, "not enough data points for detection", report.Description)
		}
	}

	assert.Equal(t, models.AlertSingleDaySpike, report.AlertType)
	assert.True(t, report.IsAlert)
	assert.Equal(t, 7, d.Window().Size())
}
