package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ticket-client/config"
	"ticket-client/internal/apiclient"
	"ticket-client/monitoring"
	"ticket-client/services"
	"ticket-client/utils"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// app holds every component of one ticketctl invocation.
type app struct {
	cfg     *config.Config
	redis   *redis.Client
	monitor *monitoring.Monitor

	client       *apiclient.Client
	session      *services.Session
	wallet       *services.WalletBalance
	orders       *services.OrderStore
	seats        *services.SeatService
	availability *services.AvailabilityService
	purchase     *services.PurchaseService
	actions      *services.TicketActionService
}

func newApp(ctx context.Context, cfg *config.Config, confirm services.Confirmer) (*app, error) {
	redisClient, err := utils.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}

	var monitor *monitoring.Monitor
	if cfg.EnableMetrics {
		monitor = monitoring.NewMonitor()
	}

	wallet := services.NewWalletBalance()
	session := services.NewSession(
		services.NewRedisTokenStore(redisClient, cfg.SessionProfile),
		wallet,
		cfg.SessionTTL,
	)

	breaker := utils.NewCircuitBreaker("ticket-api",
		utils.WithThreshold(uint32(cfg.BreakerMaxRequests), cfg.BreakerFailureRatio),
		utils.WithTimeout(cfg.BreakerTimeout),
		utils.WithFailureClassifier(apiclient.CountsAsFailure),
	)
	client := apiclient.New(cfg.APIBaseURL, session,
		apiclient.WithTimeout(cfg.HTTPTimeout),
		apiclient.WithBreaker(breaker),
		apiclient.WithMonitor(monitor),
	)

	orders := services.NewOrderStore(client, session)
	seats := services.NewSeatService(client)
	availability := services.NewAvailabilityService(client, cfg.AvailabilityConcurrency, monitor)

	return &app{
		cfg:          cfg,
		redis:        redisClient,
		monitor:      monitor,
		client:       client,
		session:      session,
		wallet:       wallet,
		orders:       orders,
		seats:        seats,
		availability: availability,
		purchase: services.NewPurchaseService(client, session, availability, seats, orders, wallet,
			monitor, cfg.ConfirmationDelay),
		actions: services.NewTicketActionService(client, session, orders, wallet, confirm, monitor),
	}, nil
}

func (a *app) Close() error {
	return a.redis.Close()
}

// serveMetrics exposes /metrics when enabled. It returns immediately.
func (a *app) serveMetrics(ctx context.Context) {
	if !a.cfg.EnableMetrics {
		return
	}
	serveMetrics(ctx, a.cfg.MetricsPort)
}

func serveMetrics(ctx context.Context, port string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", monitoring.Handler())
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("metrics listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server stopped", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
}

func setupLogger(cfg *config.Config) {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

type rootOptions struct {
	cfg *config.Config
	yes bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "ticketctl",
		Short:         "Browse events, buy tickets and manage orders",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			opts.cfg = config.LoadConfig()
			setupLogger(opts.cfg)
			return opts.cfg.Validate()
		},
	}
	root.PersistentFlags().BoolVarP(&opts.yes, "yes", "y", false, "confirm irreversible actions without prompting")

	root.AddCommand(
		newLoginCmd(opts),
		newLogoutCmd(opts),
		newWhoamiCmd(opts),
		newEventsCmd(opts),
		newEventCmd(opts),
		newAvailabilityCmd(opts),
		newSeatsCmd(opts),
		newBuyCmd(opts),
		newWatchCmd(opts),
		newOrdersCmd(opts),
		newActivateCmd(opts),
		newRefundCmd(opts),
		newStubServerCmd(opts),
	)
	return root
}

// withApp builds the components, resolves the session and runs fn.
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()

	confirm := services.Confirmer(services.AlwaysConfirm)
	if !opts.yes {
		confirm = stdinConfirmer{in: cmd.InOrStdin(), out: cmd.ErrOrStderr()}
	}

	a, err := newApp(ctx, opts.cfg, confirm)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.session.Resolve(ctx, a.client); err != nil {
		slog.Warn("continuing without a session", "error", err)
	}
	return fn(ctx, a)
}

// Execute runs ticketctl until it finishes or receives SIGINT/SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return err
	}
	return nil
}
