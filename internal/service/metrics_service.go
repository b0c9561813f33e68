package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/conductor-oer/support-service/internal/domain"
	"github.com/conductor-oer/support-service/internal/persistence"
	"github.com/conductor-oer/support-service/internal/repository"
	apperrors "github.com/conductor-oer/support-service/pkg/util/errorutil"
)

const metricsCacheKey = "support:metrics"

// SupportMetrics are the staff dashboard counters.
type SupportMetrics struct {
	TotalOpenTickets     int64   `json:"totalOpenTickets"`
	LastSevenTicketCount int64   `json:"lastSevenTicketCount"`
	AvgMinsToClose       float64 `json:"avgMinsToClose"`
}

// MetricsService computes dashboard counters. The three figures are read
// independently with no shared snapshot; brief skew under concurrent
// writes is acceptable. Results are cached in Redis on a short TTL.
type MetricsService struct {
	tickets  repository.TicketRepository
	cache    *persistence.Redis
	cacheTTL time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewMetricsService constructs the service. cache may be nil.
func NewMetricsService(tickets repository.TicketRepository, cache *persistence.Redis, cacheTTL time.Duration, logger *zap.Logger) *MetricsService {
	return &MetricsService{
		tickets:  tickets,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger,
		now:      time.Now,
	}
}

// ComputeMetrics returns the dashboard counters, serving from cache when
// fresh. Cache failures are logged and ignored.
func (s *MetricsService) ComputeMetrics(ctx context.Context) (SupportMetrics, error) {
	var cached SupportMetrics
	if s.cacheTTL > 0 {
		hit, err := s.cache.GetJSON(ctx, metricsCacheKey, &cached)
		if err != nil {
			s.logger.Warn("metrics cache read failed", zap.Error(err))
		} else if hit {
			return cached, nil
		}
	}

	metrics, err := s.compute(ctx)
	if err != nil {
		return SupportMetrics{}, err
	}

	if s.cacheTTL > 0 {
		if err := s.cache.SetJSON(ctx, metricsCacheKey, metrics, s.cacheTTL); err != nil {
			s.logger.Warn("metrics cache write failed", zap.Error(err))
		}
	}
	return metrics, nil
}

func (s *MetricsService) compute(ctx context.Context) (SupportMetrics, error) {
	open, err := s.tickets.CountByStatuses(ctx, []domain.TicketStatus{
		domain.TicketStatusOpen,
		domain.TicketStatusInProgress,
	})
	if err != nil {
		return SupportMetrics{}, apperrors.MapError(err)
	}

	now := s.now().UTC()
	weekly, err := s.tickets.CountOpenedBetween(ctx, now.AddDate(0, 0, -7), now)
	if err != nil {
		return SupportMetrics{}, apperrors.MapError(err)
	}

	avgMins, err := s.tickets.AvgMinutesToClose(ctx)
	if err != nil {
		return SupportMetrics{}, apperrors.MapError(err)
	}

	return SupportMetrics{
		TotalOpenTickets:     open,
		LastSevenTicketCount: weekly,
		AvgMinsToClose:       avgMins,
	}, nil
}
