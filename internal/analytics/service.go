package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Querier defines the storage access required for analytics reads.
type Querier interface {
	Summary(ctx context.Context, from, to time.Time) ([]ProviderSummary, error)
}

// Report is the aggregate answer: volume, success rate and per-provider rows.
type Report struct {
	From        time.Time         `json:"from"`
	To          time.Time         `json:"to"`
	Volume      int64             `json:"volume"`
	SuccessRate float64           `json:"successRate"`
	Providers   []ProviderSummary `json:"providers"`
}

// Service provides cached access to payment analytics.
type Service struct {
	Q            Querier
	R            *redis.Client
	TTL          time.Duration
	DefaultRange int
	Now          func() time.Time
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func cacheKey(parts ...any) string {
	formatted := make([]string, 0, len(parts))
	for _, part := range parts {
		formatted = append(formatted, fmt.Sprint(part))
	}
	return strings.Join(formatted, ":")
}

// PaymentsReport aggregates recorded payment events between the provided bounds.
func (s *Service) PaymentsReport(ctx context.Context, from, to time.Time) (Report, error) {
	if s == nil || s.Q == nil {
		return Report{}, fmt.Errorf("analytics service not configured")
	}
	key := cacheKey("an", "payments", from.Format("2006-01-02"), to.Format("2006-01-02"))
	if report, ok := s.fromCache(ctx, key); ok {
		return report, nil
	}
	rows, err := s.Q.Summary(ctx, from, to)
	if err != nil {
		return Report{}, err
	}
	report := Report{From: from, To: to, Providers: rows}
	var succeeded int64
	for _, row := range rows {
		report.Volume += row.Total
		succeeded += row.Succeeded
	}
	if report.Volume > 0 {
		report.SuccessRate = float64(succeeded) / float64(report.Volume)
	}
	s.store(ctx, key, report)
	return report, nil
}

func (s *Service) fromCache(ctx context.Context, key string) (Report, bool) {
	if s.R == nil || s.TTL <= 0 {
		return Report{}, false
	}
	data, err := s.R.Get(ctx, key).Bytes()
	if err != nil {
		return Report{}, false
	}
	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		return Report{}, false
	}
	return report, true
}

func (s *Service) store(ctx context.Context, key string, report Report) {
	if s.R == nil || s.TTL <= 0 {
		return
	}
	data, err := json.Marshal(report)
	if err != nil {
		return
	}
	_ = s.R.Set(ctx, key, data, s.TTL).Err()
}
