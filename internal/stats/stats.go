package stats

import (
	"fmt"
	"math"
)

// Mean returns the arithmetic mean, 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0.0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev returns the sample standard deviation (n-1 denominator).
// For fewer than two values it returns 0, not NaN.
func StdDev(values []float64) float64 {
	if len(values) <= 1 {
		return 0.0
	}
	mean := Mean(values)
	var sum float64
	for _, v := range values {
		diff := v - mean
		sum += diff * diff
	}
	return math.Sqrt(sum / float64(len(values)-1))
}

// Correlation returns the Pearson correlation coefficient of x and y.
// Mismatched lengths, empty input or zero variance in either series all
// resolve to 0 rather than an error.
func Correlation(x, y []float64) float64 {
	if len(x) != len(y) || len(x) == 0 {
		return 0.0
	}

	meanX := Mean(x)
	meanY := Mean(y)
	var sumXY, sumX2, sumY2 float64

	for i := range x {
		dx := x[i] - meanX
		dy := y[i] - meanY
		sumXY += dx * dy
		sumX2 += dx * dx
		sumY2 += dy * dy
	}

	if sumX2 == 0.0 || sumY2 == 0.0 {
		return 0.0
	}
	return sumXY / (math.Sqrt(sumX2) * math.Sqrt(sumY2))
}

// Regression is an ordinary-least-squares fit over accumulated (x, y) pairs.
// Pairs can be appended after the first getter call; results are recomputed
// lazily on the next access.
type Regression struct {
	xs, ys     []float64
	slope      float64
	intercept  float64
	rSquared   float64
	calculated bool
}

// NewRegression returns an empty regression.
func NewRegression() *Regression {
	return &Regression{}
}

// Add appends a single (x, y) pair.
func (r *Regression) Add(x, y float64) {
	r.xs = append(r.xs, x)
	r.ys = append(r.ys, y)
	r.calculated = false
}

// AddSeries appends a batch of pairs. Lengths must match.
func (r *Regression) AddSeries(x, y []float64) error {
	if len(x) != len(y) {
		return fmt.Errorf("series lengths must match: %d != %d", len(x), len(y))
	}
	r.xs = append(r.xs, x...)
	r.ys = append(r.ys, y...)
	r.calculated = false
	return nil
}

func (r *Regression) calculate() {
	if r.calculated || len(r.xs) < 2 {
		return
	}

	n := float64(len(r.xs))
	var sumX, sumY, sumXY, sumX2, sumY2 float64
	for i := range r.xs {
		sumX += r.xs[i]
		sumY += r.ys[i]
		sumXY += r.xs[i] * r.ys[i]
		sumX2 += r.xs[i] * r.xs[i]
		sumY2 += r.ys[i] * r.ys[i]
	}

	xMean := sumX / n
	yMean := sumY / n

	// Zero variance in x: horizontal fit through the mean of y.
	if sumX2-(sumX*sumX)/n == 0 {
		r.slope = 0
		r.intercept = yMean
	} else {
		r.slope = (sumXY - (sumX*sumY)/n) / (sumX2 - (sumX*sumX)/n)
		r.intercept = yMean - r.slope*xMean
	}

	totalSS := sumY2 - (sumY*sumY)/n
	var residualSS float64
	for i := range r.xs {
		prediction := r.intercept + r.slope*r.xs[i]
		residualSS += (r.ys[i] - prediction) * (r.ys[i] - prediction)
	}

	if totalSS == 0 {
		// Residual is necessarily zero too; call it a perfect fit.
		r.rSquared = 1.0
	} else {
		r.rSquared = 1 - residualSS/totalSS
	}

	r.calculated = true
}

func (r *Regression) Slope() float64 {
	r.calculate()
	return r.slope
}

func (r *Regression) Intercept() float64 {
	r.calculate()
	return r.intercept
}

func (r *Regression) RSquared() float64 {
	r.calculate()
	return r.rSquared
}

// Descriptive bundles the summary statistics of one series.
type Descriptive struct {
	values []float64
}

func Describe(values []float64) Descriptive {
	copied := make([]float64, len(values))
	copy(copied, values)
	return Descriptive{values: copied}
}

func (d Descriptive) Mean() float64 {
	return Mean(d.values)
}

func (d Descriptive) StdDev() float64 {
	return StdDev(d.values)
}

func (d Descriptive) Min() float64 {
	if len(d.values) == 0 {
		return 0.0
	}
	min := d.values[0]
	for _, v := range d.values[1:] {
		if v < min {
			min = v
		}
	}
	return min
}

func (d Descriptive) Max() float64 {
	if len(d.values) == 0 {
		return 0.0
	}
	max := d.values[0]
	for _, v := range d.values[1:] {
		if v > max {
			max = v
		}
	}
	return max
}
