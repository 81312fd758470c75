package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"anomaly-monitor/internal/models"

	"github.com/go-redis/redis/v8"
)

const (
	recentAlertsKey = "alerts:recent"
	maxRecentAlerts = 500
	alertTTL        = 24 * time.Hour
)

// AlertStore keeps a rolling history of raised alerts in redis. The history
// is advisory: detection itself never depends on it.
type AlertStore struct {
	client *redis.Client
	ctx    context.Context
}

func NewAlertStore(addr string) (*AlertStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     "",
		DB:           0,
		PoolSize:     100,
		MinIdleConns: 10,
		MaxRetries:   3,
	})

	ctx := context.Background()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &AlertStore{
		client: client,
		ctx:    ctx,
	}, nil
}

// StoreReport saves one alert report under the metric name and pushes it
// onto the recent-alerts list.
func (s *AlertStore) StoreReport(metric string, report models.AlertReport) error {
	key := fmt.Sprintf("alert:%s:%s", metric, report.Date)

	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal alert report: %w", err)
	}

	if err := s.client.Set(s.ctx, key, data, alertTTL).Err(); err != nil {
		return fmt.Errorf("failed to store alert report in Redis: %w", err)
	}

	if err := s.client.LPush(s.ctx, recentAlertsKey, key).Err(); err != nil {
		return fmt.Errorf("failed to update recent alerts list: %w", err)
	}

	s.client.LTrim(s.ctx, recentAlertsKey, 0, maxRecentAlerts-1)

	return nil
}

// RecentReports returns up to count recent alert reports, newest first.
// Keys whose payload has expired are skipped.
func (s *AlertStore) RecentReports(count int64) ([]models.AlertReport, error) {
	keys, err := s.client.LRange(s.ctx, recentAlertsKey, 0, count-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get recent alert keys: %w", err)
	}

	var reports []models.AlertReport
	for _, key := range keys {
		data, err := s.client.Get(s.ctx, key).Result()
		if err != nil {
			continue
		}

		var report models.AlertReport
		if err := json.Unmarshal([]byte(data), &report); err != nil {
			continue
		}

		reports = append(reports, report)
	}

	return reports, nil
}

func (s *AlertStore) Close() error {
	return s.client.Close()
}
