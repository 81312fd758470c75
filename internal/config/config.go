package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// RiseConfig holds every threshold and weight consumed by the rise
// detection engine. Values are plain numbers; per-request overrides go
// through RiseOverride so that 0 stays a legal setting.
type RiseConfig struct {
	// Gradual rise detection.
	GradualIncreaseSlopeThreshold              float64 `yaml:"gradualIncreaseSlopeThreshold" json:"gradualIncreaseSlopeThreshold"`
	GradualIncreaseMinRSquared                 float64 `yaml:"gradualIncreaseMinRSquared" json:"gradualIncreaseMinRSquared"`
	GradualIncreaseMinConsecutiveIncreases     int     `yaml:"gradualIncreaseMinConsecutiveIncreases" json:"gradualIncreaseMinConsecutiveIncreases"`
	GradualIncreaseTotalChangePercentThreshold float64 `yaml:"gradualIncreaseTotalChangePercentThreshold" json:"gradualIncreaseTotalChangePercentThreshold"`

	// Sudden spike detection.
	SuddenSpikePercentageChangeThreshold float64 `yaml:"suddenSpikePercentageChangeThreshold" json:"suddenSpikePercentageChangeThreshold"`
	SuddenSpikeStdDeviationMultiplier    float64 `yaml:"suddenSpikeStdDeviationMultiplier" json:"suddenSpikeStdDeviationMultiplier"`
	SuddenSpikeMinAbsoluteChange         float64 `yaml:"suddenSpikeMinAbsoluteChange" json:"suddenSpikeMinAbsoluteChange"`

	// Periodicity detection.
	PeriodicityAutocorrelationThreshold float64 `yaml:"periodicityAutocorrelationThreshold" json:"periodicityAutocorrelationThreshold"`
	PeriodicityMaxPeriodDays            int     `yaml:"periodicityMaxPeriodDays" json:"periodicityMaxPeriodDays"`

	// Scoring.
	ScoreSuddenSpikeWeight     float64 `yaml:"scoreSuddenSpikeWeight" json:"scoreSuddenSpikeWeight"`
	ScoreGradualIncreaseWeight float64 `yaml:"scoreGradualIncreaseWeight" json:"scoreGradualIncreaseWeight"`
	ScorePeriodicWeight        float64 `yaml:"scorePeriodicWeight" json:"scorePeriodicWeight"`
	ScoreCriticalThreshold     float64 `yaml:"scoreCriticalThreshold" json:"scoreCriticalThreshold"`
	ScoreWarningThreshold      float64 `yaml:"scoreWarningThreshold" json:"scoreWarningThreshold"`
}

// DefaultRiseConfig returns the reference defaults.
func DefaultRiseConfig() RiseConfig {
	return RiseConfig{
		GradualIncreaseSlopeThreshold:              0.25,
		GradualIncreaseMinRSquared:                 0.6,
		GradualIncreaseMinConsecutiveIncreases:     3,
		GradualIncreaseTotalChangePercentThreshold: 100.0,
		SuddenSpikePercentageChangeThreshold:       100.0,
		SuddenSpikeStdDeviationMultiplier:          3.0,
		SuddenSpikeMinAbsoluteChange:               10.0,
		PeriodicityAutocorrelationThreshold:        0.7,
		PeriodicityMaxPeriodDays:                   7,
		ScoreSuddenSpikeWeight:                     10.0,
		ScoreGradualIncreaseWeight:                 5.0,
		ScorePeriodicWeight:                        1.0,
		ScoreCriticalThreshold:                     7.5,
		ScoreWarningThreshold:                      5.0,
	}
}

// RiseOverride is a request-scoped partial configuration. A field takes
// effect only when present (non-nil), so JSON absence means "keep base".
type RiseOverride struct {
	GradualIncreaseSlopeThreshold              *float64 `json:"gradualIncreaseSlopeThreshold,omitempty"`
	GradualIncreaseMinRSquared                 *float64 `json:"gradualIncreaseMinRSquared,omitempty"`
	GradualIncreaseMinConsecutiveIncreases     *int     `json:"gradualIncreaseMinConsecutiveIncreases,omitempty"`
	GradualIncreaseTotalChangePercentThreshold *float64 `json:"gradualIncreaseTotalChangePercentThreshold,omitempty"`
	SuddenSpikePercentageChangeThreshold       *float64 `json:"suddenSpikePercentageChangeThreshold,omitempty"`
	SuddenSpikeStdDeviationMultiplier          *float64 `json:"suddenSpikeStdDeviationMultiplier,omitempty"`
	SuddenSpikeMinAbsoluteChange               *float64 `json:"suddenSpikeMinAbsoluteChange,omitempty"`
	PeriodicityAutocorrelationThreshold        *float64 `json:"periodicityAutocorrelationThreshold,omitempty"`
	PeriodicityMaxPeriodDays                   *int     `json:"periodicityMaxPeriodDays,omitempty"`
	ScoreSuddenSpikeWeight                     *float64 `json:"scoreSuddenSpikeWeight,omitempty"`
	ScoreGradualIncreaseWeight                 *float64 `json:"scoreGradualIncreaseWeight,omitempty"`
	ScorePeriodicWeight                        *float64 `json:"scorePeriodicWeight,omitempty"`
	ScoreCriticalThreshold                     *float64 `json:"scoreCriticalThreshold,omitempty"`
	ScoreWarningThreshold                      *float64 `json:"scoreWarningThreshold,omitempty"`
}

// Merge returns a new effective configuration: base values with every
// present override field applied. The receiver is never mutated.
func (c RiseConfig) Merge(o *RiseOverride) RiseConfig {
	merged := c
	if o == nil {
		return merged
	}
	applyF(&merged.GradualIncreaseSlopeThreshold, o.GradualIncreaseSlopeThreshold)
	applyF(&merged.GradualIncreaseMinRSquared, o.GradualIncreaseMinRSquared)
	applyI(&merged.GradualIncreaseMinConsecutiveIncreases, o.GradualIncreaseMinConsecutiveIncreases)
	applyF(&merged.GradualIncreaseTotalChangePercentThreshold, o.GradualIncreaseTotalChangePercentThreshold)
	applyF(&merged.SuddenSpikePercentageChangeThreshold, o.SuddenSpikePercentageChangeThreshold)
	applyF(&merged.SuddenSpikeStdDeviationMultiplier, o.SuddenSpikeStdDeviationMultiplier)
	applyF(&merged.SuddenSpikeMinAbsoluteChange, o.SuddenSpikeMinAbsoluteChange)
	applyF(&merged.PeriodicityAutocorrelationThreshold, o.PeriodicityAutocorrelationThreshold)
	applyI(&merged.PeriodicityMaxPeriodDays, o.PeriodicityMaxPeriodDays)
	applyF(&merged.ScoreSuddenSpikeWeight, o.ScoreSuddenSpikeWeight)
	applyF(&merged.ScoreGradualIncreaseWeight, o.ScoreGradualIncreaseWeight)
	applyF(&merged.ScorePeriodicWeight, o.ScorePeriodicWeight)
	applyF(&merged.ScoreCriticalThreshold, o.ScoreCriticalThreshold)
	applyF(&merged.ScoreWarningThreshold, o.ScoreWarningThreshold)
	return merged
}

// DeclineConfig holds the thresholds and weights of the decline engine.
type DeclineConfig struct {
	// Sudden drop detection.
	SuddenDropChangePercentThreshold float64 `yaml:"suddenDropChangePercentThreshold" json:"suddenDropChangePercentThreshold"`
	SuddenDropWeight                 float64 `yaml:"suddenDropWeight" json:"suddenDropWeight"`
	SuddenDropStdDeviationMultiplier float64 `yaml:"suddenDropStdDeviationMultiplier" json:"suddenDropStdDeviationMultiplier"`
	SuddenDropMinAbsoluteChange      float64 `yaml:"suddenDropMinAbsoluteChange" json:"suddenDropMinAbsoluteChange"`

	// Steady decline detection.
	SteadyDeclineRSquaredThreshold     float64 `yaml:"steadyDeclineRSquaredThreshold" json:"steadyDeclineRSquaredThreshold"`
	SteadyDeclineMinConsecutiveDays    int     `yaml:"steadyDeclineMinConsecutiveDays" json:"steadyDeclineMinConsecutiveDays"`
	SteadyDeclineTotalChangeThreshold  float64 `yaml:"steadyDeclineTotalChangeThreshold" json:"steadyDeclineTotalChangeThreshold"`
	SteadyDailyAverageDeclineThreshold float64 `yaml:"steadyDailyAverageDeclineThreshold" json:"steadyDailyAverageDeclineThreshold"`
	SteadyDeclineMinDataPoints         int     `yaml:"steadyDeclineMinDataPoints" json:"steadyDeclineMinDataPoints"`
	SteadyDeclineWeight                float64 `yaml:"steadyDeclineWeight" json:"steadyDeclineWeight"`

	// Scoring.
	ScoreCriticalThreshold float64 `yaml:"scoreCriticalThreshold" json:"scoreCriticalThreshold"`
	ScoreWarningThreshold  float64 `yaml:"scoreWarningThreshold" json:"scoreWarningThreshold"`
}

// DefaultDeclineConfig returns the reference defaults.
func DefaultDeclineConfig() DeclineConfig {
	return DeclineConfig{
		SuddenDropChangePercentThreshold:   30.0,
		SuddenDropWeight:                   0.8,
		SuddenDropStdDeviationMultiplier:   3.0,
		SuddenDropMinAbsoluteChange:        10.0,
		SteadyDeclineRSquaredThreshold:     0.6,
		SteadyDeclineMinConsecutiveDays:    3,
		SteadyDeclineTotalChangeThreshold:  50.0,
		SteadyDailyAverageDeclineThreshold: 15.0,
		SteadyDeclineMinDataPoints:         5,
		SteadyDeclineWeight:                0.7,
		ScoreCriticalThreshold:             7.5,
		ScoreWarningThreshold:              5.0,
	}
}

// DeclineOverride is the decline engine's request-scoped partial
// configuration, presence-based like RiseOverride.
type DeclineOverride struct {
	SuddenDropChangePercentThreshold   *float64 `json:"suddenDropChangePercentThreshold,omitempty"`
	SuddenDropWeight                   *float64 `json:"suddenDropWeight,omitempty"`
	SuddenDropStdDeviationMultiplier   *float64 `json:"suddenDropStdDeviationMultiplier,omitempty"`
	SuddenDropMinAbsoluteChange        *float64 `json:"suddenDropMinAbsoluteChange,omitempty"`
	SteadyDeclineRSquaredThreshold     *float64 `json:"steadyDeclineRSquaredThreshold,omitempty"`
	SteadyDeclineMinConsecutiveDays    *int     `json:"steadyDeclineMinConsecutiveDays,omitempty"`
	SteadyDeclineTotalChangeThreshold  *float64 `json:"steadyDeclineTotalChangeThreshold,omitempty"`
	SteadyDailyAverageDeclineThreshold *float64 `json:"steadyDailyAverageDeclineThreshold,omitempty"`
	SteadyDeclineMinDataPoints         *int     `json:"steadyDeclineMinDataPoints,omitempty"`
	SteadyDeclineWeight                *float64 `json:"steadyDeclineWeight,omitempty"`
	ScoreCriticalThreshold             *float64 `json:"scoreCriticalThreshold,omitempty"`
	ScoreWarningThreshold              *float64 `json:"scoreWarningThreshold,omitempty"`
}

// Merge returns base values with present override fields applied.
func (c DeclineConfig) Merge(o *DeclineOverride) DeclineConfig {
	merged := c
	if o == nil {
		return merged
	}
	applyF(&merged.SuddenDropChangePercentThreshold, o.SuddenDropChangePercentThreshold)
	applyF(&merged.SuddenDropWeight, o.SuddenDropWeight)
	applyF(&merged.SuddenDropStdDeviationMultiplier, o.SuddenDropStdDeviationMultiplier)
	applyF(&merged.SuddenDropMinAbsoluteChange, o.SuddenDropMinAbsoluteChange)
	applyF(&merged.SteadyDeclineRSquaredThreshold, o.SteadyDeclineRSquaredThreshold)
	applyI(&merged.SteadyDeclineMinConsecutiveDays, o.SteadyDeclineMinConsecutiveDays)
	applyF(&merged.SteadyDeclineTotalChangeThreshold, o.SteadyDeclineTotalChangeThreshold)
	applyF(&merged.SteadyDailyAverageDeclineThreshold, o.SteadyDailyAverageDeclineThreshold)
	applyI(&merged.SteadyDeclineMinDataPoints, o.SteadyDeclineMinDataPoints)
	applyF(&merged.SteadyDeclineWeight, o.SteadyDeclineWeight)
	applyF(&merged.ScoreCriticalThreshold, o.ScoreCriticalThreshold)
	applyF(&merged.ScoreWarningThreshold, o.ScoreWarningThreshold)
	return merged
}

func applyF(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}

func applyI(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

// WindowConfig sizes the streaming data windows.
type WindowConfig struct {
	MaxSize       int `yaml:"maxSize"`
	ShortTermDays int `yaml:"shortTermDays"`
	LongTermDays  int `yaml:"longTermDays"`
}

// FileConfig is the YAML configuration file layout. Absent keys keep their
// defaults.
type FileConfig struct {
	Rise    RiseConfig    `yaml:"rise"`
	Decline DeclineConfig `yaml:"decline"`
	Window  WindowConfig  `yaml:"window"`
}

// DefaultFileConfig returns the full set of defaults.
func DefaultFileConfig() FileConfig {
	return FileConfig{
		Rise:    DefaultRiseConfig(),
		Decline: DefaultDeclineConfig(),
		Window: WindowConfig{
			MaxSize:       7,
			ShortTermDays: 3,
			LongTermDays:  7,
		},
	}
}

// Load reads the YAML file at path over the defaults. A missing file is not
// an error; the defaults are returned as-is.
func Load(path string) (FileConfig, error) {
	cfg := DefaultFileConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// ServerConfig is the process-level configuration, taken from environment
// variables with an optional .env file.
type ServerConfig struct {
	Port       string
	RedisAddr  string
	ConfigFile string
}

// FromEnv loads .env if present and reads the server settings.
func FromEnv() ServerConfig {
	_ = godotenv.Load()

	return ServerConfig{
		Port:       envOr("PORT", "8080"),
		RedisAddr:  envOr("REDIS_ADDR", "localhost:6379"),
		ConfigFile: envOr("CONFIG_FILE", "config.yaml"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
