package stubserver

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"ticket-client/internal/apiclient"
	"ticket-client/models"

	"github.com/shopspring/decimal"
)

// apiError is a refusal rendered as {"detail": ...}.
type apiError struct {
	code   int
	detail string
}

func (e *apiError) Error() string { return e.detail }

func refuse(code int, format string, args ...any) *apiError {
	return &apiError{code: code, detail: fmt.Sprintf(format, args...)}
}

type ticket struct {
	id      int64
	orderID int64
	userID  int64
	tierID  int64
	seatID  int64
	status  models.ItemStatus
}

// store is the in-memory state of the remote service.
type store struct {
	mu sync.Mutex

	users  map[int64]*models.User
	events []*models.Event
	tiers  map[int64]*models.PriceTier
	seats  map[int64]*models.Seat

	// soldByTier counts tickets sold on tiers without a seat map.
	soldByTier map[int64]int
	tickets    map[int64]*ticket
	orders     map[int64]*models.Order
	orderOwner map[int64]int64
	// idempotent maps user and Idempotency-Key to the order it created.
	idempotent map[string]int64

	nextOrderID  int64
	nextTicketID int64
	nextItemID   int64
	now          func() time.Time
}

func newStore(f *Fixture) *store {
	s := &store{
		users:        make(map[int64]*models.User),
		tiers:        make(map[int64]*models.PriceTier),
		seats:        make(map[int64]*models.Seat),
		soldByTier:   make(map[int64]int),
		tickets:      make(map[int64]*ticket),
		orders:       make(map[int64]*models.Order),
		orderOwner:   make(map[int64]int64),
		idempotent:   make(map[string]int64),
		nextOrderID:  1,
		nextTicketID: 1000,
		nextItemID:   1,
		now:          time.Now,
	}

	for i := range f.Users {
		u := f.Users[i]
		s.users[u.ID] = &u
	}
	for i := range f.Events {
		ev := f.Events[i]
		ev.PriceTiers = append([]models.PriceTier(nil), ev.PriceTiers...)
		s.events = append(s.events, &ev)
		for j := range ev.PriceTiers {
			s.tiers[ev.PriceTiers[j].ID] = &ev.PriceTiers[j]
		}
	}
	for i := range f.Seats {
		seat := f.Seats[i]
		if seat.Status == "" {
			seat.Status = models.SeatAvailable
		}
		s.seats[seat.ID] = &seat
	}
	return s
}

func (s *store) listEvents() []models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Event, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, *ev)
	}
	return out
}

func (s *store) event(id int64) (models.Event, *apiError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range s.events {
		if ev.ID == id {
			return *ev, nil
		}
	}
	return models.Event{}, refuse(http.StatusNotFound, "Event not found")
}

func (s *store) minPrice(eventID int64) (decimal.NullDecimal, *apiError) {
	ev, err := s.event(eventID)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	var cheapest decimal.NullDecimal
	for _, t := range ev.PriceTiers {
		if !cheapest.Valid || t.Price.LessThan(cheapest.Decimal) {
			cheapest = decimal.NewNullDecimal(t.Price)
		}
	}
	return cheapest, nil
}

func (s *store) availability(eventID, tierID int64) (models.TierAvailability, *apiError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tier, ok := s.tiers[tierID]
	if !ok || tier.EventID != eventID {
		return models.TierAvailability{}, refuse(http.StatusNotFound, "Price tier not found")
	}
	return s.availabilityLocked(tier), nil
}

func (s *store) availabilityLocked(tier *models.PriceTier) models.TierAvailability {
	seats := s.tierSeatsLocked(tier.ID)
	if len(seats) == 0 {
		return models.TierAvailability{Available: max(0, tier.Capacity-s.soldByTier[tier.ID])}
	}
	free := 0
	for _, seat := range seats {
		if seat.Selectable() {
			free++
		}
	}
	return models.TierAvailability{Available: free, HasSeats: true}
}

func (s *store) tierSeats(eventID, tierID int64) ([]models.Seat, *apiError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tier, ok := s.tiers[tierID]
	if !ok || tier.EventID != eventID {
		return nil, refuse(http.StatusNotFound, "Price tier not found")
	}
	return s.tierSeatsLocked(tierID), nil
}

func (s *store) tierSeatsLocked(tierID int64) []models.Seat {
	var out []models.Seat
	for _, seat := range s.seats {
		if seat.TierID == tierID {
			out = append(out, *seat)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *store) user(id int64) (models.User, *apiError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return models.User{}, refuse(http.StatusUnauthorized, "Could not validate credentials")
	}
	return *u, nil
}

// line is one validated order line before anything is written.
type line struct {
	tier *models.PriceTier
	seat *models.Seat
}

func (s *store) createOrder(userID int64, key string, items []apiclient.OrderItemRequest) (*apiclient.OrderResponse, *apiError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, refuse(http.StatusUnauthorized, "Could not validate credentials")
	}

	idemKey := fmt.Sprintf("%d:%s", userID, key)
	if key != "" {
		if id, seen := s.idempotent[idemKey]; seen {
			return s.orderResponseLocked(s.orders[id], u), nil
		}
	}

	if len(items) == 0 {
		return nil, refuse(http.StatusBadRequest, "Order has no items")
	}

	var lines []line
	wanted := make(map[int64]int)
	picked := make(map[int64]bool)
	for _, it := range items {
		switch {
		case it.TicketID != 0 && (it.TierID != 0 || it.Quantity != 0):
			return nil, refuse(http.StatusBadRequest, "Item must name either a seat or a tier")

		case it.TicketID != 0:
			seat, ok := s.seats[it.TicketID]
			if !ok {
				return nil, refuse(http.StatusNotFound, "Seat %d not found", it.TicketID)
			}
			if !seat.Selectable() || picked[seat.ID] {
				return nil, refuse(http.StatusBadRequest, "Seat %s is not available", seat.Label())
			}
			picked[seat.ID] = true
			lines = append(lines, line{tier: s.tiers[seat.TierID], seat: seat})

		default:
			tier, ok := s.tiers[it.TierID]
			if !ok {
				return nil, refuse(http.StatusNotFound, "Price tier not found")
			}
			if len(s.tierSeatsLocked(tier.ID)) > 0 {
				return nil, refuse(http.StatusBadRequest, "Tier %s requires seat selection", tier.Name)
			}
			if it.Quantity < 1 {
				return nil, refuse(http.StatusBadRequest, "Quantity must be at least 1")
			}
			wanted[tier.ID] += it.Quantity
			if wanted[tier.ID] > s.availabilityLocked(tier).Available {
				return nil, refuse(http.StatusBadRequest, "Not enough tickets available")
			}
			for range it.Quantity {
				lines = append(lines, line{tier: tier})
			}
		}
	}

	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.tier.Price)
	}
	if u.WalletBalance.LessThan(total) {
		return nil, refuse(http.StatusBadRequest, "Insufficient funds")
	}

	created := s.now().UTC()
	order := &models.Order{
		ID:          s.nextOrderID,
		UserID:      userID,
		Status:      models.OrderPaid,
		TotalAmount: total,
		CreatedAt:   &created,
	}
	s.nextOrderID++

	for _, l := range lines {
		t := &ticket{orderID: order.ID, userID: userID, tierID: l.tier.ID, status: models.ItemSold}
		item := models.OrderItem{
			ID:         s.nextItemID,
			TierID:     l.tier.ID,
			EventTitle: s.eventTitleLocked(l.tier.EventID),
			TierName:   l.tier.Name,
			Price:      l.tier.Price,
			Status:     models.ItemSold,
		}
		s.nextItemID++

		if l.seat != nil {
			// A seat is its own ticket.
			t.id = l.seat.ID
			t.seatID = l.seat.ID
			item.SeatLabel = l.seat.Label()
			l.seat.Status = models.SeatSold
		} else {
			t.id = s.nextTicketID
			s.nextTicketID++
			s.soldByTier[l.tier.ID]++
		}
		item.TicketID = t.id
		s.tickets[t.id] = t
		order.Items = append(order.Items, item)
	}

	u.WalletBalance = u.WalletBalance.Sub(total)
	s.orders[order.ID] = order
	s.orderOwner[order.ID] = userID
	if key != "" {
		s.idempotent[idemKey] = order.ID
	}
	return s.orderResponseLocked(order, u), nil
}

func (s *store) activate(userID, ticketID int64) (*ticket, *apiError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[ticketID]
	if !ok || t.userID != userID {
		return nil, refuse(http.StatusNotFound, "Ticket not found")
	}
	if t.status != models.ItemSold {
		return nil, refuse(http.StatusBadRequest, "Ticket is %s and cannot be activated", t.status)
	}

	t.status = models.ItemActivated
	s.setItemStatusLocked(t, models.ItemActivated)
	if seat, ok := s.seats[t.seatID]; ok {
		seat.Status = models.SeatActivated
	}
	return t, nil
}

func (s *store) refund(userID, orderID int64) (*apiclient.RefundResponse, *apiError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok || s.orderOwner[orderID] != userID {
		return nil, refuse(http.StatusNotFound, "Order not found")
	}
	if order.Status == models.OrderRefunded {
		return nil, refuse(http.StatusBadRequest, "Order already refunded")
	}

	amount := decimal.Zero
	for i := range order.Items {
		it := &order.Items[i]
		if it.Status != models.ItemSold {
			continue
		}
		it.Status = models.ItemCanceled
		amount = amount.Add(it.Price)

		t := s.tickets[it.TicketID]
		t.status = models.ItemCanceled
		if seat, ok := s.seats[t.seatID]; ok {
			seat.Status = models.SeatAvailable
		} else {
			s.soldByTier[t.tierID]--
		}
	}
	if amount.IsZero() {
		return nil, refuse(http.StatusBadRequest, "No tickets to refund")
	}

	order.TotalAmount = decimal.Max(decimal.Zero, order.TotalAmount.Sub(amount))
	order.Status = models.OrderRefunded

	u := s.users[userID]
	u.WalletBalance = u.WalletBalance.Add(amount)

	return &apiclient.RefundResponse{
		Refunded:      true,
		Amount:        amount,
		WalletBalance: decimal.NewNullDecimal(u.WalletBalance),
	}, nil
}

func (s *store) ordersOf(userID int64) []models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Order
	for id, order := range s.orders {
		if s.orderOwner[id] == userID {
			out = append(out, order.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if out == nil {
		out = []models.Order{}
	}
	return out
}

func (s *store) setItemStatusLocked(t *ticket, st models.ItemStatus) {
	order := s.orders[t.orderID]
	for i := range order.Items {
		if order.Items[i].TicketID == t.id {
			order.Items[i].Status = st
		}
	}
}

func (s *store) eventTitleLocked(eventID int64) string {
	for _, ev := range s.events {
		if ev.ID == eventID {
			return ev.Title
		}
	}
	return ""
}

func (s *store) orderResponseLocked(order *models.Order, u *models.User) *apiclient.OrderResponse {
	return &apiclient.OrderResponse{
		Order:         order.Clone(),
		WalletBalance: decimal.NewNullDecimal(u.WalletBalance),
	}
}
