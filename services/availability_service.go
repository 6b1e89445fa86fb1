package services

import (
	"context"
	"log/slog"
	"sync"

	"ticket-client/models"
	"ticket-client/monitoring"

	"golang.org/x/sync/errgroup"
)

type AvailabilityAPI interface {
	GetTierAvailability(ctx context.Context, eventID, tierID int64) (models.TierAvailability, error)
}

// AvailabilityService fetches remaining inventory for every tier of an
// event. A tier whose fetch fails is reported as models.Degraded so one
// bad tier never blocks the rest.
type AvailabilityService struct {
	api         AvailabilityAPI
	concurrency int
	monitor     *monitoring.Monitor
}

func NewAvailabilityService(api AvailabilityAPI, concurrency int, monitor *monitoring.Monitor) *AvailabilityService {
	if concurrency <= 0 {
		concurrency = 8
	}
	return &AvailabilityService{api: api, concurrency: concurrency, monitor: monitor}
}

// Fetch returns once every tier fetch has settled. The result holds an
// entry for every tier in tiers.
func (s *AvailabilityService) Fetch(ctx context.Context, eventID int64, tiers []models.PriceTier) map[int64]models.TierAvailability {
	result := make(map[int64]models.TierAvailability, len(tiers))
	if len(tiers) == 0 {
		return result
	}

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)

	for _, tier := range tiers {
		g.Go(func() error {
			availability := s.fetchOne(ctx, eventID, tier.ID)
			mu.Lock()
			result[tier.ID] = availability
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return result
}

// FetchTier fetches a single tier with the same degradation rule as Fetch.
func (s *AvailabilityService) FetchTier(ctx context.Context, eventID, tierID int64) models.TierAvailability {
	return s.fetchOne(ctx, eventID, tierID)
}

func (s *AvailabilityService) fetchOne(ctx context.Context, eventID, tierID int64) models.TierAvailability {
	availability, err := s.api.GetTierAvailability(ctx, eventID, tierID)
	if err != nil {
		slog.Warn("tier availability degraded", "event_id", eventID, "tier_id", tierID, "error", err)
		s.monitor.TrackDegradedTier(eventID)
		return models.Degraded
	}
	return availability
}
