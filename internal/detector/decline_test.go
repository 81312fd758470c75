package detector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anomaly-monitor/internal/config"
	"anomaly-monitor/internal/models"
)

func newDecline() *DeclineDetector {
	return NewDeclineDetector(config.DefaultDeclineConfig(), DefaultWindowSize)
}

func TestDeclineAbsoluteChangeGuard(t *testing.T) {
	d := newDecline()
	values := ptrs(15, 16, 16.5, 15.5, 16, 15, 9)

	// A 40% drop of only 6 units stays under the default 10-unit floor.
	report := d.DetectValues(values, nil)
	assert.Equal(t, models.AlertNoIssue, report.AlertType)
	assert.False(t, report.IsAlert)

	// Lowering the floor lets the same series alert.
	report = d.DetectValues(values, &config.DeclineOverride{
		SuddenDropMinAbsoluteChange: fptr(5.0),
	})
	assert.Equal(t, models.AlertSingleDayDrop, report.AlertType)
	assert.True(t, report.IsAlert)
	assert.Equal(t, models.SeverityNormal, report.Severity)
	assert.InDelta(t, 0.8, report.TotalScore, 1e-9)
}

func TestDeclineSuddenDropDescription(t *testing.T) {
	report := newDecline().DetectValues(ptrs(100, 95, 90, 85, 80, 75, 30), nil)

	assert.Equal(t, models.AlertSingleDayDrop, report.AlertType)
	assert.Contains(t, report.Description, "dropped")
	assert.InDelta(t, 0.8, report.TotalScore, 1e-9)
}

func TestDeclineDetectsSteadyDecline(t *testing.T) {
	report := newDecline().DetectValues(ptrs(100, 90, 80, 70, 60, 50, 40), nil)

	assert.Equal(t, models.AlertSteadyDecline, report.AlertType)
	assert.True(t, report.IsAlert)
	assert.InDelta(t, 0.7, report.TotalScore, 1e-9)
	assert.Contains(t, report.Description, "consecutive down days")
	assert.Contains(t, report.Description, "R²=1.00")
}

func TestDeclineSuddenDropHasPriority(t *testing.T) {
	// The tail drop qualifies on its own; the steady trend never overrides it.
	report := newDecline().DetectValues(ptrs(100, 95, 90, 85, 80, 75, 30), nil)
	assert.Equal(t, models.AlertSingleDayDrop, report.AlertType)
}

func TestDeclineVShapeRecoveryStaysQuiet(t *testing.T) {
	// A deep drop followed by steady recovery is not an active decline.
	report := newDecline().DetectValues(ptrs(100, 40, 45, 50, 55, 60, 65), nil)

	assert.Equal(t, models.AlertNoIssue, report.AlertType)
	assert.False(t, report.IsAlert)
}

func TestDeclineSmallBaselineStaysQuiet(t *testing.T) {
	report := newDecline().DetectValues(ptrs(0.5, 0.4, 0.3, 0.2, 0.1, 0.05, 0.01), nil)

	assert.Equal(t, models.AlertNoIssue, report.AlertType)
	assert.False(t, report.IsAlert)
}

func TestDeclineSeverityBandsWithoutDowngrade(t *testing.T) {
	report := newDecline().DetectValues(ptrs(15, 16, 16.5, 15.5, 16, 15, 9), &config.DeclineOverride{
		SuddenDropMinAbsoluteChange: fptr(5.0),
		SuddenDropWeight:            fptr(10.0),
	})

	assert.Equal(t, models.AlertSingleDayDrop, report.AlertType)
	assert.True(t, report.IsAlert)
	assert.Equal(t, models.SeverityCritical, report.Severity)
	assert.InDelta(t, 10.0, report.TotalScore, 1e-9)
}

func TestDeclineEmptyAndShortInput(t *testing.T) {
	d := newDecline()

	report := d.DetectValues(nil, nil)
	assert.Equal(t, "no data points provided", report.Description)

	report = d.DetectValues(ptrs(100), nil)
	assert.Equal(t, "not enough data points for detection", report.Description)
	assert.False(t, report.IsAlert)
}

func TestDeclineDetectPointsUnsortedInput(t *testing.T) {
	pts := points(100, 90, 80, 70, 60, 50, 40)
	shuffled := []models.DataPoint{pts[5], pts[0], pts[3], pts[6], pts[1], pts[4], pts[2]}

	report := newDecline().DetectPoints(shuffled, nil)
	assert.Equal(t, models.AlertSteadyDecline, report.AlertType)
	assert.True(t, report.Date.Equal(day(6)))
}

func TestDeclineStreaming(t *testing.T) {
	d := newDecline()
	values := []float64{100, 95, 90, 85, 80, 75, 30}

	var report models.AlertReport
	for i, v := range values {
		report = d.AddPointAndDetect(day(i), v, nil)
	}

	require.Equal(t, models.AlertSingleDayDrop, report.AlertType)
	assert.True(t, report.IsAlert)
}

func TestChangePercentClampsNearZeroBase(t *testing.T) {
	assert.InDelta(t, -50.0, changePercent(100, 50), 1e-9)
	assert.InDelta(t, -100.0, changePercent(-50, -100), 1e-9)

	clamped := changePercent(0, 5)
	assert.InDelta(t, (5.0-0.00001)/0.00001*100, clamped, 1e-3)
}
