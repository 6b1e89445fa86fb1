package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"ticket-client/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func tiers(ids ...int64) []models.PriceTier {
	out := make([]models.PriceTier, len(ids))
	for i, id := range ids {
		out[i] = models.PriceTier{ID: id, EventID: 1, Name: "tier", Price: dec("100")}
	}
	return out
}

func TestAvailabilityService_FetchDegradesFailingTier(t *testing.T) {
	api := new(MockAPI)
	api.On("GetTierAvailability", int64(1), int64(1)).Return(models.TierAvailability{Available: 5}, nil)
	api.On("GetTierAvailability", int64(1), int64(2)).Return(models.TierAvailability{}, errors.New("boom"))
	api.On("GetTierAvailability", int64(1), int64(3)).Return(models.TierAvailability{Available: 2, HasSeats: true}, nil)

	svc := NewAvailabilityService(api, 4, nil)
	got := svc.Fetch(context.Background(), 1, tiers(1, 2, 3))

	assert.Equal(t, map[int64]models.TierAvailability{
		1: {Available: 5},
		2: models.Degraded,
		3: {Available: 2, HasSeats: true},
	}, got)
	api.AssertExpectations(t)
}

func TestAvailabilityService_FetchNoTiers(t *testing.T) {
	svc := NewAvailabilityService(new(MockAPI), 4, nil)
	assert.Empty(t, svc.Fetch(context.Background(), 1, nil))
}

func TestAvailabilityService_FetchRunsConcurrently(t *testing.T) {
	var inFlight, peak int32
	release := make(chan struct{})

	api := new(MockAPI)
	api.On("GetTierAvailability", int64(1), mock.Anything).
		Run(func(mock.Arguments) {
			n := atomic.AddInt32(&inFlight, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			<-release
			atomic.AddInt32(&inFlight, -1)
		}).
		Return(models.TierAvailability{Available: 1}, nil)

	svc := NewAvailabilityService(api, 2, nil)

	done := make(chan map[int64]models.TierAvailability)
	go func() { done <- svc.Fetch(context.Background(), 1, tiers(1, 2, 3, 4)) }()

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&inFlight) == 2 }, time.Second, 5*time.Millisecond)
	select {
	case <-done:
		t.Fatal("aggregate returned before every tier settled")
	default:
	}

	close(release)
	got := <-done
	assert.Len(t, got, 4)
	assert.Equal(t, int32(2), atomic.LoadInt32(&peak))
}
