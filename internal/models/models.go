package models

import (
	"fmt"
	"strings"
	"time"
)

// Date is a calendar day (no time-of-day component), encoded as yyyy-mm-dd
// in JSON. All window and report dates are normalized through this type.
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

// NewDate truncates t to its calendar day in UTC.
func NewDate(t time.Time) Date {
	return Date{time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

// Today returns the current calendar day.
func Today() Date {
	return NewDate(time.Now().UTC())
}

// AddDays returns the date shifted by n days.
func (d Date) AddDays(n int) Date {
	return Date{d.Time.AddDate(0, 0, n)}
}

// Equal reports whether both values denote the same calendar day.
func (d Date) Equal(other Date) bool {
	return d.Time.Equal(other.Time)
}

// Before reports whether d falls on an earlier day than other.
func (d Date) Before(other Date) bool {
	return d.Time.Before(other.Time)
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Format(dateLayout) + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" || s == "" {
		return nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return fmt.Errorf("invalid date %q: %w", s, err)
	}
	*d = Date{t}
	return nil
}

// AlertType classifies the movement pattern a detection call found.
type AlertType string

const (
	AlertSingleDaySpike     AlertType = "SINGLE_DAY_SPIKE"
	AlertSteadyRise         AlertType = "STEADY_RISE"
	AlertAbnormalVolatility AlertType = "ABNORMAL_VOLATILITY"
	AlertSingleDayDrop      AlertType = "SINGLE_DAY_DROP"
	AlertSteadyDecline      AlertType = "STEADY_DECLINE"
	AlertNoIssue            AlertType = "NO_ISSUE"
)

// Label returns the human-readable description used as alert prefix.
func (t AlertType) Label() string {
	switch t {
	case AlertSingleDaySpike:
		return "single-day spike"
	case AlertSteadyRise:
		return "steady rise"
	case AlertAbnormalVolatility:
		return "abnormal volatility"
	case AlertSingleDayDrop:
		return "single-day drop"
	case AlertSteadyDecline:
		return "steady decline"
	default:
		return "no issue"
	}
}

// SeverityLevel bands the weighted detection score.
type SeverityLevel string

const (
	SeverityNormal   SeverityLevel = "NORMAL"
	SeverityWarning  SeverityLevel = "WARNING"
	SeverityCritical SeverityLevel = "CRITICAL"
)

// AlertReport is the single result record returned by every detection call.
type AlertReport struct {
	Date        Date          `json:"date"`
	TotalScore  float64       `json:"totalScore"`
	AlertType   AlertType     `json:"alertType"`
	Description string        `json:"description"`
	IsAlert     bool          `json:"isAlert"`
	Severity    SeverityLevel `json:"severityLevel"`
}

// NormalReport builds the NO_ISSUE report used for insufficient data and
// clean windows. Detection never fails; this is its floor.
func NormalReport(date Date, reason string) AlertReport {
	return AlertReport{
		Date:        date,
		TotalScore:  0.0,
		AlertType:   AlertNoIssue,
		Description: reason,
		IsAlert:     false,
		Severity:    SeverityNormal,
	}
}

// DataPoint is the transport form of one observation.
type DataPoint struct {
	Date  Date    `json:"date"`
	Value float64 `json:"value"`
}
