package stubserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ticket-client/internal/apiclient"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
)

const userIDKey = "user_id"

// Server is an in-memory stand-in for the remote ticketing service.
type Server struct {
	echo    *echo.Echo
	store   *store
	secret  []byte
	limiter middleware.RateLimiterStore
}

func New(f *Fixture, secret string) *Server {
	return newServer(f, secret, newWriteLimitStore(30, time.Minute))
}

func newServer(f *Fixture, secret string, limiter middleware.RateLimiterStore) *Server {
	if f == nil {
		f = DefaultFixture()
	}
	s := &Server{
		echo:    echo.New(),
		store:   newStore(f),
		secret:  []byte(secret),
		limiter: limiter,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	e := s.echo
	e.Use(requestLogger)

	e.GET("/events", s.listEvents)
	e.GET("/events/:id", s.getEvent)
	e.GET("/events/:id/min_price", s.minPrice)
	e.GET("/events/:id/tier/:tier_id/available", s.tierAvailability)
	e.GET("/events/:id/tickets", s.tierSeats)

	// Writes are limited per user after authentication.
	limit := s.limitWrites()
	e.POST("/orders", s.createOrder, s.requireUser, limit)
	e.GET("/orders/me", s.myOrders, s.requireUser)
	e.POST("/orders/:id/refund", s.refundOrder, s.requireUser, limit)
	e.POST("/tickets/:id/activate", s.activateTicket, s.requireUser, limit)
	e.GET("/users/me", s.me, s.requireUser)
}

// Handler exposes the router, e.g. for httptest.NewServer.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// IssueToken signs an HS256 bearer token for userID.
func (s *Server) IssueToken(userID int64, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// ListenAndServe serves on addr until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("stub server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		slog.Debug("stub request",
			"method", c.Request().Method,
			"path", c.Request().URL.Path,
			"duration", time.Since(start),
			"error", err)
		return err
	}
}

func (s *Server) requireUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			return detail(c, http.StatusUnauthorized, "Not authenticated")
		}

		token, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(*jwt.Token) (any, error) {
			return s.secret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			return detail(c, http.StatusUnauthorized, "Could not validate credentials")
		}

		sub, err := token.Claims.GetSubject()
		if err != nil {
			return detail(c, http.StatusUnauthorized, "Could not validate credentials")
		}
		userID, err := strconv.ParseInt(sub, 10, 64)
		if err != nil {
			return detail(c, http.StatusUnauthorized, "Could not validate credentials")
		}

		c.Set(userIDKey, userID)
		return next(c)
	}
}

func detail(c echo.Context, code int, msg string) error {
	return c.JSON(code, map[string]any{"detail": msg})
}

func refusal(c echo.Context, err *apiError) error {
	return detail(c, err.code, err.detail)
}

func currentUser(c echo.Context) int64 {
	id, _ := c.Get(userIDKey).(int64)
	return id
}

func pathID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.PathParam(name), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}

func (s *Server) listEvents(c echo.Context) error {
	return c.JSON(http.StatusOK, s.store.listEvents())
}

func (s *Server) getEvent(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return detail(c, http.StatusUnprocessableEntity, err.Error())
	}
	ev, apiErr := s.store.event(id)
	if apiErr != nil {
		return refusal(c, apiErr)
	}
	return c.JSON(http.StatusOK, ev)
}

func (s *Server) minPrice(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return detail(c, http.StatusUnprocessableEntity, err.Error())
	}
	price, apiErr := s.store.minPrice(id)
	if apiErr != nil {
		return refusal(c, apiErr)
	}
	return c.JSON(http.StatusOK, apiclient.MinPriceResponse{MinPrice: price})
}

func (s *Server) tierAvailability(c echo.Context) error {
	eventID, err := pathID(c, "id")
	if err != nil {
		return detail(c, http.StatusUnprocessableEntity, err.Error())
	}
	tierID, err := pathID(c, "tier_id")
	if err != nil {
		return detail(c, http.StatusUnprocessableEntity, err.Error())
	}
	availability, apiErr := s.store.availability(eventID, tierID)
	if apiErr != nil {
		return refusal(c, apiErr)
	}
	return c.JSON(http.StatusOK, availability)
}

func (s *Server) tierSeats(c echo.Context) error {
	eventID, err := pathID(c, "id")
	if err != nil {
		return detail(c, http.StatusUnprocessableEntity, err.Error())
	}
	tierID, err := strconv.ParseInt(c.QueryParam("tier_id"), 10, 64)
	if err != nil {
		return detail(c, http.StatusUnprocessableEntity, "tier_id is required")
	}
	seats, apiErr := s.store.tierSeats(eventID, tierID)
	if apiErr != nil {
		return refusal(c, apiErr)
	}
	return c.JSON(http.StatusOK, seats)
}

func (s *Server) createOrder(c echo.Context) error {
	var req apiclient.OrderRequest
	if err := c.Bind(&req); err != nil {
		return detail(c, http.StatusUnprocessableEntity, "Invalid order body")
	}

	key := c.Request().Header.Get("Idempotency-Key")
	resp, apiErr := s.store.createOrder(currentUser(c), key, req.Items)
	if apiErr != nil {
		return refusal(c, apiErr)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) myOrders(c echo.Context) error {
	return c.JSON(http.StatusOK, s.store.ordersOf(currentUser(c)))
}

func (s *Server) refundOrder(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return detail(c, http.StatusUnprocessableEntity, err.Error())
	}
	resp, apiErr := s.store.refund(currentUser(c), id)
	if apiErr != nil {
		return refusal(c, apiErr)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) activateTicket(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return detail(c, http.StatusUnprocessableEntity, err.Error())
	}
	t, apiErr := s.store.activate(currentUser(c), id)
	if apiErr != nil {
		return refusal(c, apiErr)
	}
	return c.JSON(http.StatusOK, map[string]any{"id": t.id, "status": t.status})
}

func (s *Server) me(c echo.Context) error {
	u, apiErr := s.store.user(currentUser(c))
	if apiErr != nil {
		return refusal(c, apiErr)
	}
	return c.JSON(http.StatusOK, u)
}
