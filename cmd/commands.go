package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"ticket-client/internal/status"
	"ticket-client/internal/stubserver"
	"ticket-client/models"
	"ticket-client/services"

	"github.com/spf13/cobra"
)

type stdinConfirmer struct {
	in  io.Reader
	out io.Writer
}

func (c stdinConfirmer) Confirm(_ context.Context, prompt string) bool {
	fmt.Fprintf(c.out, "%s [y/N] ", prompt)
	answer, _ := bufio.NewReader(c.in).ReadString('\n')
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func parseID(arg, what string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", what, arg)
	}
	return id, nil
}

func newLoginCmd(opts *rootOptions) *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store an access token for this profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if err := a.session.Login(ctx, token, a.client); err != nil {
					return errors.New(status.UserMessage(err, "login failed"))
				}
				return printWhoami(cmd.OutOrStdout(), a)
			})
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "bearer token issued by the ticketing service")
	cmd.MarkFlagRequired("token")
	return cmd
}

func newLogoutCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				a.orders.Reset()
				return a.session.Logout(ctx)
			})
		},
	}
}

func newWhoamiCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user and wallet balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				return printWhoami(cmd.OutOrStdout(), a)
			})
		},
	}
}

func printWhoami(w io.Writer, a *app) error {
	user, ok := a.session.User()
	if !ok {
		fmt.Fprintln(w, "not signed in")
		return nil
	}
	fmt.Fprintf(w, "%s (%s)\n", user.Email, user.FullName)
	if balance, ok := a.wallet.Read(); ok {
		fmt.Fprintf(w, "wallet: %s\n", balance.StringFixed(2))
	}
	return nil
}

func newEventsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "events",
		Short: "List events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				events, err := a.client.ListEvents(ctx)
				if err != nil {
					return errors.New(status.UserMessage(err, "could not load events"))
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tTITLE\tSTARTS\tFROM")
				for _, ev := range events {
					from := "-"
					if price, err := a.client.MinPrice(ctx, ev.ID); err == nil && price.Valid {
						from = price.Decimal.StringFixed(2)
					}
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", ev.ID, ev.Title, ev.StartTime.Format(time.DateTime), from)
				}
				return tw.Flush()
			})
		},
	}
}

func newEventCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "event <eventID>",
		Short: "Show an event with its price tiers and availability",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eventID, err := parseID(args[0], "event id")
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				ev, err := a.client.GetEvent(ctx, eventID)
				if err != nil {
					return errors.New(status.UserMessage(err, "could not load event"))
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "%s\n%s\n", ev.Title, ev.Description)
				if ev.Venue != nil {
					fmt.Fprintf(w, "venue: %s\n", ev.Venue.Name)
				}
				fmt.Fprintf(w, "%s - %s\n\n", ev.StartTime.Format(time.DateTime), ev.EndTime.Format(time.DateTime))
				return printTiers(w, ev, a.availability.Fetch(ctx, ev.ID, ev.PriceTiers))
			})
		},
	}
}

func newAvailabilityCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "availability <eventID>",
		Short: "Show remaining tickets per price tier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eventID, err := parseID(args[0], "event id")
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				ev, err := a.client.GetEvent(ctx, eventID)
				if err != nil {
					return errors.New(status.UserMessage(err, "could not load event"))
				}
				return printTiers(cmd.OutOrStdout(), ev, a.availability.Fetch(ctx, ev.ID, ev.PriceTiers))
			})
		},
	}
}

func printTiers(w io.Writer, ev *models.Event, availability map[int64]models.TierAvailability) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIER\tNAME\tPRICE\tAVAILABLE\tSEATED")
	for _, tier := range ev.PriceTiers {
		av := availability[tier.ID]
		seated := "no"
		if av.HasSeats {
			seated = "yes"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n", tier.ID, tier.Name, tier.Price.StringFixed(2), av.Available, seated)
	}
	return tw.Flush()
}

func newSeatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seats <eventID> <tierID>",
		Short: "Show the seat map of a seated tier",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			eventID, err := parseID(args[0], "event id")
			if err != nil {
				return err
			}
			tierID, err := parseID(args[1], "tier id")
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if err := a.seats.Load(ctx, eventID, tierID); err != nil {
					return errors.New(status.UserMessage(err, "could not load seats"))
				}
				printSeatMap(cmd.OutOrStdout(), a.seats.Seats())
				return nil
			})
		},
	}
}

func printSeatMap(w io.Writer, seats []models.Seat) {
	row := ""
	for _, seat := range seats {
		if seat.RowLabel != row {
			if row != "" {
				fmt.Fprintln(w)
			}
			row = seat.RowLabel
			fmt.Fprintf(w, "%-3s", row)
		}
		mark := "x"
		if seat.Selectable() {
			mark = "o"
		}
		fmt.Fprintf(w, " %s[%d]%s", seat.Label(), seat.ID, mark)
	}
	if row != "" {
		fmt.Fprintln(w)
	}
}

func newBuyCmd(opts *rootOptions) *cobra.Command {
	var (
		tierID   int64
		quantity int
		seatIDs  []int64
	)
	cmd := &cobra.Command{
		Use:   "buy <eventID>",
		Short: "Buy tickets of one tier, by quantity or by seat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eventID, err := parseID(args[0], "event id")
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				ev, err := a.client.GetEvent(ctx, eventID)
				if err != nil {
					return errors.New(status.UserMessage(err, "could not load event"))
				}

				form := a.purchase
				if err := form.Open(ctx, *ev); err != nil {
					return err
				}
				defer form.Close()

				if tierID != 0 {
					if err := form.SelectTier(ctx, tierID); err != nil {
						return errors.New(status.UserMessage(err, "could not select tier"))
					}
				}
				for _, id := range seatIDs {
					selected, err := form.ToggleSeat(id)
					if err != nil {
						return err
					}
					if !selected {
						return fmt.Errorf("seat %d is not available", id)
					}
				}
				if len(seatIDs) == 0 {
					if err := form.SetQuantity(quantity); err != nil {
						return err
					}
				}

				fmt.Fprintf(cmd.ErrOrStderr(), "total: %s\n", form.Total().StringFixed(2))
				order, err := form.Submit(ctx)
				if err != nil {
					return errors.New(services.PurchaseFailureMessage(err))
				}

				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "order %d: %s, total %s\n", order.ID, order.Status, order.TotalAmount.StringFixed(2))
				if balance, ok := a.wallet.Read(); ok {
					fmt.Fprintf(w, "wallet: %s\n", balance.StringFixed(2))
				}
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&tierID, "tier", 0, "price tier id (defaults to the first tier)")
	cmd.Flags().IntVar(&quantity, "qty", 1, "number of tickets for a tier without a seat map")
	cmd.Flags().Int64SliceVar(&seatIDs, "seat", nil, "seat id to buy, repeatable")
	cmd.MarkFlagsMutuallyExclusive("qty", "seat")
	return cmd
}

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch <eventID>",
		Short: "Keep an event's availability on screen, refreshed on inventory changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eventID, err := parseID(args[0], "event id")
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				ev, err := a.client.GetEvent(ctx, eventID)
				if err != nil {
					return errors.New(status.UserMessage(err, "could not load event"))
				}
				a.serveMetrics(ctx)

				form := a.purchase
				if err := form.Open(ctx, *ev); err != nil {
					return err
				}
				defer form.Close()

				if a.cfg.RealtimeEnabled() {
					pn := services.NewPubNub(a.cfg.PubNubSubscribeKey, a.cfg.PubNubPublishKey,
						a.cfg.PubNubSecretKey, a.cfg.PubNubUserID)
					notifier := services.NewInventoryNotifier(pn, a.cfg.PubNubChannel, form)
					go notifier.Run(ctx)
				}

				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				w := cmd.OutOrStdout()
				for {
					v := form.View()
					fmt.Fprintf(w, "-- %s @ %s\n", ev.Title, time.Now().Format(time.TimeOnly))
					printTiers(w, ev, v.Availability)

					select {
					case <-ctx.Done():
						return nil
					case <-ticker.C:
						if err := form.RefreshAvailability(ctx); err != nil {
							return err
						}
					}
				}
			})
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 30*time.Second, "poll interval between refreshes")
	return cmd
}

func newOrdersCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "orders",
		Short: "List your orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if err := a.orders.Load(ctx); err != nil {
					return errors.New(status.UserMessage(err, "could not load orders"))
				}
				printOrders(cmd.OutOrStdout(), a.orders.Orders())
				return nil
			})
		},
	}
}

func printOrders(w io.Writer, orders []models.Order) {
	if len(orders) == 0 {
		fmt.Fprintln(w, "no orders")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, o := range orders {
		fmt.Fprintf(tw, "order %d\t%s\ttotal %s\n", o.ID, o.Status, o.TotalAmount.StringFixed(2))
		for _, it := range o.Items {
			seat := it.SeatLabel
			if seat == "" {
				seat = "-"
			}
			fmt.Fprintf(tw, "  ticket %d\t%s / %s\tseat %s\t%s\t%s\n",
				it.TicketID, it.EventTitle, it.TierName, seat, it.Price.StringFixed(2), it.Status)
		}
	}
	tw.Flush()
}

func newActivateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "activate <ticketID>",
		Short: "Activate a ticket; this cannot be undone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ticketID, err := parseID(args[0], "ticket id")
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if err := a.orders.Load(ctx); err != nil {
					return errors.New(status.UserMessage(err, "could not load orders"))
				}
				if err := a.actions.Activate(ctx, ticketID); err != nil {
					if errors.Is(err, status.ErrActionDeclined) {
						return nil
					}
					return errors.New(status.UserMessage(err, services.ActivationFailedMessage))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ticket %d activated\n", ticketID)
				return nil
			})
		},
	}
}

func newRefundCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "refund <orderID>",
		Short: "Refund every ticket of an order that is not activated",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orderID, err := parseID(args[0], "order id")
			if err != nil {
				return err
			}
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if err := a.orders.Load(ctx); err != nil {
					return errors.New(status.UserMessage(err, "could not load orders"))
				}
				amount, err := a.actions.Refund(ctx, orderID)
				if err != nil {
					if errors.Is(err, status.ErrActionDeclined) {
						return nil
					}
					return errors.New(status.UserMessage(err, services.RefundFailedMessage))
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "order %d refunded: %s\n", orderID, amount.StringFixed(2))
				if balance, ok := a.wallet.Read(); ok {
					fmt.Fprintf(w, "wallet: %s\n", balance.StringFixed(2))
				}
				return nil
			})
		},
	}
}

func newStubServerCmd(opts *rootOptions) *cobra.Command {
	var (
		addr        string
		fixturePath string
		secret      string
		tokenFor    int64
	)
	cmd := &cobra.Command{
		Use:   "stub-server",
		Short: "Run an in-memory ticketing service for local development",
		RunE: func(cmd *cobra.Command, args []string) error {
			fixture := stubserver.DefaultFixture()
			if fixturePath != "" {
				f, err := stubserver.LoadFixture(fixturePath)
				if err != nil {
					return err
				}
				fixture = f
			}
			if addr == "" {
				addr = opts.cfg.StubServerAddr
			}

			srv := stubserver.New(fixture, secret)
			if tokenFor != 0 {
				token, err := srv.IssueToken(tokenFor, opts.cfg.SessionTTL)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "token for user %d: %s\n", tokenFor, token)
			}

			if opts.cfg.EnableMetrics {
				serveMetrics(cmd.Context(), opts.cfg.MetricsPort)
			}
			return srv.ListenAndServe(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to STUB_SERVER_ADDR)")
	cmd.Flags().StringVar(&fixturePath, "fixture", "", "JSON fixture with users, events and seats")
	cmd.Flags().StringVar(&secret, "secret", "stub-secret", "HS256 signing secret for bearer tokens")
	cmd.Flags().Int64Var(&tokenFor, "token-for", 1, "print a bearer token for this user id (0 to skip)")
	return cmd
}
